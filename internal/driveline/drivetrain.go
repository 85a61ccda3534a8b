package driveline

import "github.com/beamsim/beamsim/internal/softbody"

// Drivetrain distributes engine torque to the wheels through axle and
// inter-axle differentials and applies brakes.
type Drivetrain struct {
	Wheels []Wheel
	// Axles pair wheel indices.
	Axles []Differential
	// Transfers pair axle indices.
	Transfers []Differential

	BrakeForce     float32
	HandbrakeForce float32

	// Speed is the mean tangential speed of the propelled wheels in m/s.
	Speed float32
	// Spin is the mean angular speed of the propelled wheels in rad/s.
	Spin float32

	axleIn []float32
}

// Init computes per-wheel masses and resets state.
func (d *Drivetrain) Init(nodes []softbody.Node) {
	for i := range d.Wheels {
		w := &d.Wheels[i]
		if w.Mass == 0 {
			w.Mass = wheelMass(nodes, w)
		}
	}
	d.Reset()
}

// Reset clears wheel and differential state.
func (d *Drivetrain) Reset() {
	for i := range d.Wheels {
		d.Wheels[i].Reset()
	}
	for i := range d.Axles {
		d.Axles[i].Reset()
	}
	for i := range d.Transfers {
		d.Transfers[i].Reset()
	}
	d.Speed, d.Spin = 0, 0
}

// Propelled returns the number of driven wheels.
func (d *Drivetrain) Propelled() int {
	n := 0
	for i := range d.Wheels {
		if d.Wheels[i].Propulsion != PropNone {
			n++
		}
	}
	return n
}

// Radius returns the radius of the first propelled wheel.
func (d *Drivetrain) Radius() float32 {
	for i := range d.Wheels {
		if d.Wheels[i].Propulsion != PropNone {
			return d.Wheels[i].Radius
		}
	}
	if len(d.Wheels) > 0 {
		return d.Wheels[0].Radius
	}
	return 0
}

// Measure updates wheel speeds and the propelled averages.
func (d *Drivetrain) Measure(nodes []softbody.Node, dt float32) {
	d.Speed, d.Spin = 0, 0
	n := float32(d.Propelled())
	for i := range d.Wheels {
		w := &d.Wheels[i]
		w.Measure(nodes, dt)
		if w.Propulsion == PropNone || n == 0 {
			continue
		}
		d.Speed += w.Speed / n
		if w.Radius > 0 {
			d.Spin += w.Speed / w.Radius / n
		}
	}
}

// SpinRPM returns the propelled wheel spin in rpm.
func (d *Drivetrain) SpinRPM() float32 { return d.Spin / RPMToRadPerSec }

// Distribute sets every wheel's drive torque from the engine output torque.
func (d *Drivetrain) Distribute(torque, dt float32) {
	for i := range d.Wheels {
		d.Wheels[i].DriveTorque = 0
	}
	n := d.Propelled()
	if n == 0 {
		return
	}
	per := torque / float32(n)
	for i := range d.Wheels {
		if d.Wheels[i].Propulsion != PropNone {
			d.Wheels[i].DriveTorque = per
		}
	}
	if len(d.Axles) == 0 {
		return
	}

	if cap(d.axleIn) < len(d.Axles) {
		d.axleIn = make([]float32, len(d.Axles))
	}
	in := d.axleIn[:len(d.Axles)]
	for i := range d.Axles {
		a := &d.Axles[i]
		in[i] = d.Wheels[a.A].DriveTorque + d.Wheels[a.B].DriveTorque
	}
	for i := range d.Transfers {
		t := &d.Transfers[i]
		total := in[t.A] + in[t.B]
		in[t.A], in[t.B] = t.Split(total, d.axleSpeed(t.A), d.axleSpeed(t.B), dt)
	}
	for i := range d.Axles {
		a := &d.Axles[i]
		wa, wb := &d.Wheels[a.A], &d.Wheels[a.B]
		wa.DriveTorque, wb.DriveTorque = a.Split(in[i], wa.Speed, wb.Speed, dt)
	}
}

func (d *Drivetrain) axleSpeed(i int) float32 {
	a := &d.Axles[i]
	return (d.Wheels[a.A].Speed + d.Wheels[a.B].Speed) / 2
}

// Brake sets every braked wheel's brake torque from the pedal and parking
// brake. Each wheel's BrakeCoef scales the foot brake.
func (d *Drivetrain) Brake(pedal float32, parking bool, dt float32) {
	for i := range d.Wheels {
		w := &d.Wheels[i]
		w.BrakeTorque = 0
		if w.Braking == BrakeNone {
			continue
		}
		force := d.BrakeForce * pedal * w.BrakeCoef
		if parking && w.Braking != BrakeFootOnly {
			force += d.HandbrakeForce
		}
		w.BrakeTorque = w.brake(force, dt)
	}
}

// Apply pushes drive and brake torques into the tyre nodes.
func (d *Drivetrain) Apply(nodes []softbody.Node) {
	for i := range d.Wheels {
		w := &d.Wheels[i]
		w.ApplyTorque(nodes, w.DriveTorque*w.DriveCoef+w.BrakeTorque)
	}
}

// ToggleAxles cycles every axle differential.
func (d *Drivetrain) ToggleAxles() {
	for i := range d.Axles {
		d.Axles[i].Toggle()
	}
}

// ToggleTransfers cycles every inter-axle differential.
func (d *Drivetrain) ToggleTransfers() {
	for i := range d.Transfers {
		d.Transfers[i].Toggle()
	}
}
