package core

import "github.com/go-gl/mathgl/mgl32"

// SpawnRequest asks the world to create an actor at the next tick boundary.
type SpawnRequest struct {
	Definition string
	// Config selects a named section/variant of the definition.
	Config   string
	Position mgl32.Vec3
	Rotation mgl32.Quat
	State    ActorState
	// StartRunning overrides the definition's engine start state when set.
	StartRunning *bool
}

// AffectorKind is the closed set of external force sources.
type AffectorKind uint8

const (
	AffectorMousePin AffectorKind = iota
	AffectorExternalPin
	AffectorScriptedForce
)

func (k AffectorKind) String() string {
	switch k {
	case AffectorMousePin:
		return "mouse_pin"
	case AffectorExternalPin:
		return "external_pin"
	case AffectorScriptedForce:
		return "scripted_force"
	}
	return "unknown"
}

// AffectorRequest describes a pinned spring or a scripted force.
type AffectorRequest struct {
	Kind  AffectorKind
	Actor ActorID
	Nodes []int
	// Pin is the world-space anchor for pin kinds.
	Pin mgl32.Vec3
	// Force is the constant world-space force for scripted kinds.
	Force    mgl32.Vec3
	Spring   float32
	Damping  float32
	MinForce float32
	MaxForce float32
	// Ramp is the time in seconds over which the force fades in.
	Ramp float32
	// Duration limits scripted forces; zero means until removed.
	Duration float32
}
