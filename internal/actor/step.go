package actor

import (
	"github.com/beamsim/beamsim/internal/aids"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/driveline"
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
)

var defaultFriction = contact.DefaultFrictionTable()

func rose(cur, prev bool) bool { return cur && !prev }

// Step advances a simulated actor by env.Dt. Inter-actor coupling (hooks and
// node-triangle contact between actors) is left to the caller.
//
// A numerical failure does not fail the step: the actor is frozen, marked
// broken and an ActorFrozen event is buffered. The only error returned is a
// terrain miss, which the caller resolves by removing the actor.
func (a *Actor) Step(env *Env) error {
	if !a.Simulated() {
		return nil
	}
	dt := env.Dt
	b := &a.Body
	in := a.Input
	prev := a.prev
	a.prev = in

	a.Drive.Measure(b.Nodes, dt)
	st := a.aidState(env, in)
	a.handleInput(in, prev, st, dt)
	st.GearChanged = a.gear() != a.lastGear
	a.lastGear = a.gear()
	st.ParkingBrake = a.Parking

	out, cruiseOff := a.Aids.Update(st)
	if cruiseOff {
		a.emit(core.EventCruiseDisengaged, 0, "")
	}

	var torque float32
	if e := a.Engine; e != nil {
		e.SetAcc(out.Throttle)
		e.SetManualClutch(in.Clutch)
		e.SetWheelSpin(a.Drive.SpinRPM())
		e.Prime = a.pumping
		if e.Update(dt) {
			a.emit(core.EventEngineStalled, 0, "")
		}
		torque = e.OutputTorque()
	}
	a.drive(torque, out, st, dt)

	a.buildForces(env, in, dt)

	catastrophic, err := a.collide(env, dt)
	if err != nil {
		return err
	}
	if catastrophic {
		if env.Terrain != nil {
			contact.Surface(b, env.Terrain, env.Contact)
		}
		a.FreezeTicks = 1
		a.emit(core.EventActorFrozen, 0, "hard penetration")
	}

	for _, i := range a.Slides.Update(b, dt) {
		a.emit(core.EventSlideBroken, i, "")
	}

	if a.FreezeTicks > 0 {
		a.FreezeTicks--
		b.PostTick()
		return nil
	}
	err = a.forces.Check(b)
	if err == nil {
		err = b.Integrate(dt)
	}
	if err != nil {
		a.State = core.StateFrozen
		a.Broken = true
		a.emit(core.EventActorFrozen, 0, err.Error())
		return nil
	}
	b.PostTick()
	return nil
}

// handleInput applies the toggles on their rising edge and the held
// controls for this tick.
func (a *Actor) handleInput(in, prev core.InputSnapshot, st aids.State, dt float32) {
	if rose(in.CruiseControl, prev.CruiseControl) {
		a.Aids.Cruise.Toggle(st)
	}
	if rose(in.SpeedLimiter, prev.SpeedLimiter) {
		a.Aids.Limiter.Enabled = !a.Aids.Limiter.Enabled
	}
	if rose(in.ParkingBrake, prev.ParkingBrake) {
		a.Parking = !a.Parking
	}
	if rose(in.Hooks, prev.Hooks) {
		a.hookToggle = true
	}
	if rose(in.Ties, prev.Ties) {
		a.Body.ToggleTies()
	}
	if rose(in.AntiLock, prev.AntiLock) {
		a.Aids.ABS.Enabled = !a.Aids.ABS.Enabled
	}
	if rose(in.Traction, prev.Traction) {
		a.Aids.TC.Enabled = !a.Aids.TC.Enabled
	}
	if rose(in.Lights, prev.Lights) {
		a.Lights = !a.Lights
	}
	if rose(in.Beacon, prev.Beacon) {
		a.Beacon = !a.Beacon
	}
	a.Horn = in.Horn

	if c := &a.Aids.Cruise; c.Enabled {
		if in.CruiseAccel {
			c.Accelerate(st, a.Aids.Limiter, dt)
		}
		if in.CruiseDecel {
			c.Decelerate(st, dt)
		}
		if rose(in.CruiseReadjust, prev.CruiseReadjust) {
			c.Readjust(st, a.Aids.Limiter)
		}
	}

	e := a.Engine
	if e == nil {
		return
	}
	if rose(in.Contact, prev.Contact) {
		e.ToggleContact()
	}
	if in.Gear != core.GearNone && (in.Gear != prev.Gear || in.TargetGear != prev.TargetGear) {
		e.HandleGear(in.Gear, in.TargetGear)
	}
	e.Starter = in.Starter
}

func (a *Actor) aidState(env *Env, in core.InputSnapshot) aids.State {
	st := aids.State{
		Throttle:     in.Throttle,
		Brake:        in.Brake,
		Clutch:       in.Clutch,
		WheelSpeed:   a.Drive.Speed,
		GroundSpeed:  a.GroundSpeed(),
		ParkingBrake: a.Parking,
		Mass:         a.Body.TotalMass(),
		Gravity:      -env.Forces.Gravity.Y(),
		Pitch:        a.Pitch(),
	}
	e := a.Engine
	if e == nil {
		return st
	}
	st.RPM = e.RPM
	st.MinRPM = e.Spec.MinRPM
	st.MaxRPM = e.Spec.MaxRPM
	st.Gear = e.Gear
	st.Forward = e.Gear > 0
	st.Reverse = e.Gear < 0
	st.Running = e.Running()
	st.Contact = e.Contact
	st.Power = e.Power()
	if r := a.Drive.Radius(); r > 0 {
		st.DriveForce = e.OutputTorque() / r
	}
	return st
}

// drive distributes engine torque and brakes through the traction control
// and ABS coefficients.
func (a *Actor) drive(torque float32, out aids.Output, st aids.State, dt float32) {
	d := &a.Drive
	for i := range d.Wheels {
		w := &d.Wheels[i]
		a.wheelSpeeds[i] = w.Speed
		a.driven[i] = w.Propulsion != driveline.PropNone && out.Throttle > 0
		a.braked[i] = w.Braking != driveline.BrakeNone && out.Brake > 0
	}
	tc := a.Aids.TC.Update(st.GroundSpeed, a.wheelSpeeds, a.driven, dt)
	abs := a.Aids.ABS.Update(st.GroundSpeed, a.wheelSpeeds, a.braked, dt)
	for i := range d.Wheels {
		d.Wheels[i].DriveCoef = tc[i]
		d.Wheels[i].BrakeCoef = abs[i]
	}
	d.Distribute(torque, dt)
	d.Brake(out.Brake, a.Parking, dt)
}

func (a *Actor) buildForces(env *Env, in core.InputSnapshot, dt float32) {
	b := &a.Body
	fb := a.forces
	fb.Env = env.Forces
	fb.Begin(b)

	ci := softbody.CommandInput{
		Values:     in.Commands,
		Steer:      in.Steer,
		WheelSpeed: a.Drive.Speed,
		HasEngine:  a.Engine != nil,
		Running:    a.Running(),
	}
	if a.Engine != nil {
		ci.RunningFactor = a.Engine.CrankFactor()
	}
	a.pumping = b.UpdateCommands(ci, dt)
	b.UpdateHydros(ci, dt)
	b.UpdateTies(dt)

	for _, br := range fb.Beams(b) {
		a.events = append(a.events, core.Event{Kind: core.EventBeamBroken, Actor: a.ID, Index: br.Beam, Group: br.Group})
	}
	fb.Fluids(b, dt)
	a.Drive.Apply(b.Nodes)
	for _, id := range a.Affectors.Apply(b.Nodes, dt) {
		a.events = append(a.events, core.Event{Kind: core.EventPinSevered, Actor: a.ID, Affector: id})
	}
	if len(a.Triangles) > 0 {
		if a.self == nil {
			a.self = contact.NewSelfCollider(env.NodeContact, a.Triangles)
		}
		a.self.Apply(b)
	}
}

// collide resolves terrain and static geometry contact and reports a hard
// penetration.
func (a *Actor) collide(env *Env, dt float32) (bool, error) {
	table := env.Friction
	if table == nil {
		table = defaultFriction
	}
	var catastrophic bool
	if env.Terrain != nil {
		res, err := contact.Ground(&a.Body, env.Terrain, table, env.Contact, dt)
		if err != nil {
			return false, err
		}
		catastrophic = res.Catastrophic
	}
	if env.Geometry != nil {
		res := contact.Mesh(&a.Body, env.Geometry, table, env.Contact, dt)
		catastrophic = catastrophic || res.Catastrophic
	}
	return catastrophic, nil
}

// Speed returns the chassis speed magnitude in m/s.
func (a *Actor) Speed() float32 {
	v := a.Velocity()
	return math32.Sqrt(v.Dot(v))
}
