// Package actor assembles one vehicle from a definition and advances it
// through the per-tick pipeline: driving aids, engine, drivetrain, forces,
// contact, slide-nodes and integration.
package actor

import (
	"github.com/beamsim/beamsim/internal/affector"
	"github.com/beamsim/beamsim/internal/aids"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/driveline"
	"github.com/beamsim/beamsim/internal/hook"
	"github.com/beamsim/beamsim/internal/slidenode"
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// SpawnParams place a new actor.
type SpawnParams struct {
	Position mgl32.Vec3
	// Rotation is applied to the definition shape before translation. The
	// zero quaternion means no rotation.
	Rotation mgl32.Quat
	Config   string
	State    core.ActorState
	// StartRunning overrides the definition's engine start state when set.
	StartRunning *bool
}

// Env is the world state an actor reads during its step. It is shared
// between actors and not written during a tick.
type Env struct {
	Forces      softbody.Environment
	Terrain     contact.Terrain
	Geometry    *contact.StaticGeometry
	Friction    *contact.FrictionTable
	Contact     contact.Params
	NodeContact contact.NodeContact
	Dt          float32
}

// Actor is one vehicle or deformable object.
type Actor struct {
	ID    core.ActorID
	Name  string
	Kind  definition.Kind
	State core.ActorState
	// Broken is set when the actor was frozen by a numerical failure.
	Broken bool

	Body      softbody.Body
	Engine    *driveline.Engine
	Drive     driveline.Drivetrain
	Aids      aids.Set
	Hooks     hook.Set
	Slides    slidenode.System
	Affectors affector.Set

	// Triangles are the contact triangles other actors collide against.
	Triangles []contact.Tri
	self      *contact.SelfCollider

	Input core.InputSnapshot
	prev  core.InputSnapshot

	// Parking is the latched parking brake.
	Parking bool
	Lights  bool
	Beacon  bool
	Horn    bool

	// FreezeTicks is the number of upcoming ticks that skip integration.
	FreezeTicks int

	spawnState core.ActorState
	startRun   bool
	hookToggle bool
	pumping    bool
	lastGear   int

	// shape is the definition's node layout before the spawn pose.
	shape []mgl32.Vec3
	// ref holds the rear and front reference nodes for heading and pitch.
	ref [2]int

	forces *softbody.ForceBuilder
	events []core.Event

	wheelSpeeds []float32
	driven      []bool
	braked      []bool
}

// Position returns the average node position.
func (a *Actor) Position() mgl32.Vec3 { return a.Body.AvgPosition }

// Heading returns the yaw in radians, measured from +Z toward +X.
func (a *Actor) Heading() float32 { return a.Body.Heading(a.ref[0], a.ref[1]) }

// Pitch returns the nose-up angle in radians.
func (a *Actor) Pitch() float32 { return a.Body.Pitch(a.ref[0], a.ref[1]) }

// Velocity returns the mass-weighted mean velocity.
func (a *Actor) Velocity() mgl32.Vec3 {
	m := a.Body.TotalMass()
	if m == 0 {
		return mgl32.Vec3{}
	}
	return a.Body.Momentum().Mul(1 / m)
}

// GroundSpeed is the chassis speed along its heading in m/s.
func (a *Actor) GroundSpeed() float32 {
	h := a.Heading()
	dir := mgl32.Vec3{math32.Sin(h), 0, math32.Cos(h)}
	return a.Velocity().Dot(dir)
}

// WheelSpeed is the mean propelled wheel speed in m/s.
func (a *Actor) WheelSpeed() float32 { return a.Drive.Speed }

// Running reports whether the engine runs. Actors without an engine never do.
func (a *Actor) Running() bool { return a.Engine != nil && a.Engine.Running() }

// Simulated reports whether Step integrates this actor.
func (a *Actor) Simulated() bool { return a.State == core.StateLocalSimulated }

// SetInput replaces the control record used from the next step on.
func (a *Actor) SetInput(in core.InputSnapshot) { a.Input = in.Clamped() }

// TakeHookToggle reports and clears a pending hook toggle request.
func (a *Actor) TakeHookToggle() bool {
	t := a.hookToggle
	a.hookToggle = false
	return t
}

// Events returns the events buffered since the last call and clears the
// buffer. The slice is valid until the next step.
func (a *Actor) Events() []core.Event {
	ev := a.events
	a.events = a.events[:0]
	return ev
}

func (a *Actor) emit(kind core.EventKind, index int, msg string) {
	a.events = append(a.events, core.Event{Kind: kind, Actor: a.ID, Index: index, Message: msg})
}

// Emit buffers an event raised on behalf of the actor by another stage.
func (a *Actor) Emit(e core.Event) {
	e.Actor = a.ID
	a.events = append(a.events, e)
}

// Reset restores the spawn shape: initial positions, zero velocities,
// unbroken beams, re-attached slide-nodes, unlocked hooks and the spawn
// engine state. Affectors are kept. Applying it twice equals applying it
// once.
func (a *Actor) Reset() {
	a.Body.Reset()
	a.Slides.Attach(&a.Body)
	a.Hooks.Reset()
	if a.Engine != nil {
		a.Engine.Off()
		if a.startRun {
			a.Engine.Start()
		}
	}
	a.Drive.Reset()
	a.Aids.Reset()
	if a.self != nil {
		a.self.Invalidate()
	}
	a.Parking = false
	a.FreezeTicks = 0
	a.Broken = false
	a.pumping = false
	a.hookToggle = false
	a.State = a.spawnState
	a.lastGear = a.gear()
	a.emit(core.EventResetApplied, 0, "")
}

// Reposition resets the actor and places its spawn shape upright at pos,
// facing yaw radians from +Z toward +X.
func (a *Actor) Reposition(pos mgl32.Vec3, yaw float32) {
	for i := range a.Body.Nodes {
		a.Body.Nodes[i].InitialPosition = a.shape[i]
	}
	a.Body.Transform(mgl32.Vec3{}, pos, mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0}))
	a.Reset()
}

// Destroy breaks every beam and freezes the actor.
func (a *Actor) Destroy() {
	for i := range a.Body.Beams {
		a.Body.Beams[i].Break()
	}
	a.Affectors.Clear()
	a.Hooks.Reset()
	a.State = core.StateFrozen
}

// SetNodePositions moves a remote or replayed actor to externally supplied
// positions. Simulated actors ignore it.
func (a *Actor) SetNodePositions(pos []mgl32.Vec3, dt float32) {
	if a.Simulated() {
		return
	}
	a.Body.SetPositions(pos, dt)
}

// Fill writes the published view of the actor into dst, reusing its slices.
func (a *Actor) Fill(dst *core.ActorSnapshot) {
	dst.ID = a.ID
	dst.State = a.State
	dst.Broken = a.Broken
	nodes := a.Body.Nodes
	if cap(dst.Nodes) < len(nodes) {
		dst.Nodes = make([]core.NodeState, len(nodes))
	}
	dst.Nodes = dst.Nodes[:len(nodes)]
	for i := range nodes {
		dst.Nodes[i] = core.NodeState{Position: nodes[i].SmoothedPosition, Velocity: nodes[i].Velocity}
	}
	wheels := a.Drive.Wheels
	dst.WheelRPM = dst.WheelRPM[:0]
	dst.WheelAngle = dst.WheelAngle[:0]
	for i := range wheels {
		dst.WheelRPM = append(dst.WheelRPM, wheels[i].RPM())
		dst.WheelAngle = append(dst.WheelAngle, wheels[i].DeltaRotation)
	}
	dst.EngineRPM, dst.Gear, dst.Running = 0, 0, false
	if a.Engine != nil {
		dst.EngineRPM = a.Engine.RPM
		dst.Gear = a.Engine.Gear
		dst.Running = a.Engine.Running()
	}
	dst.BoundsMin = a.Body.BoundsMin
	dst.BoundsMax = a.Body.BoundsMax
}

func (a *Actor) gear() int {
	if a.Engine == nil {
		return 0
	}
	return a.Engine.Gear
}
