package driveline

import (
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Propulsion tells whether and how a wheel is driven.
type Propulsion uint8

const (
	PropNone Propulsion = iota
	PropForward
	PropReversed
)

// Braking tells which brakes act on a wheel.
type Braking uint8

const (
	BrakeNone Braking = iota
	BrakeFootHand
	BrakeFootOnly
)

// Wheel is a ring of tyre nodes rotating about two axis nodes.
type Wheel struct {
	Nodes      []int
	Axis       [2]int
	Arm        int
	Radius     float32
	Mass       float32
	Propulsion Propulsion
	Braking    Braking

	// Speed is the mean tangential speed in m/s.
	Speed         float32
	DeltaRotation float32

	DriveTorque float32
	BrakeTorque float32
	// DriveCoef and BrakeCoef are set by traction control and ABS.
	DriveCoef float32
	BrakeCoef float32
}

// RPM returns the wheel's rotational speed.
func (w *Wheel) RPM() float32 {
	if w.Radius == 0 {
		return 0
	}
	return w.Speed / w.Radius / RPMToRadPerSec
}

// Measure updates Speed from node velocities and accumulates rotation.
func (w *Wheel) Measure(nodes []softbody.Node, dt float32) {
	if len(w.Nodes) == 0 {
		w.Speed = 0
		return
	}
	axis := nodes[w.Axis[1]].AbsPosition.Sub(nodes[w.Axis[0]].AbsPosition)
	if axis.Len() == 0 {
		return
	}
	axis = axis.Normalize()
	var sum float32
	for j, ni := range w.Nodes {
		outer, inner := &nodes[ni], &nodes[w.Axis[j%2]]
		r := w.radius(outer, inner)
		l := r.Len()
		if l == 0 {
			continue
		}
		dir := axis.Cross(r).Mul(1 / l)
		sum += outer.Velocity.Sub(inner.Velocity).Dot(dir)
	}
	w.Speed = sum / float32(len(w.Nodes))
	if w.Radius > 0 {
		w.DeltaRotation += w.Speed / w.Radius * dt
	}
}

func (w *Wheel) radius(outer, inner *softbody.Node) (r mgl32.Vec3) {
	r = outer.AbsPosition.Sub(inner.AbsPosition)
	if w.Propulsion == PropReversed {
		r = r.Mul(-1)
	}
	return r
}

// ApplyTorque turns torque into tangential tyre node forces with the
// reaction on the axis nodes.
func (w *Wheel) ApplyTorque(nodes []softbody.Node, torque float32) {
	if len(w.Nodes) == 0 || torque == 0 {
		return
	}
	axis := nodes[w.Axis[1]].AbsPosition.Sub(nodes[w.Axis[0]].AbsPosition)
	if axis.Len() == 0 {
		return
	}
	axis = axis.Normalize()
	per := torque / float32(len(w.Nodes))
	for j, ni := range w.Nodes {
		outer, inner := &nodes[ni], &nodes[w.Axis[j%2]]
		r := w.radius(outer, inner)
		l2 := r.Dot(r)
		if l2 == 0 {
			continue
		}
		f := axis.Cross(r).Mul(per / l2)
		outer.AddForce(f)
		inner.AddForce(f.Mul(-1))
	}
}

// brake computes the brake torque for force, limited to what stops the
// wheel within one tick so it never reverses rotation.
func (w *Wheel) brake(force, dt float32) float32 {
	if force <= 0 || w.Radius <= 0 || dt <= 0 {
		return 0
	}
	stop := -w.Speed * w.Radius * w.Mass / dt
	if w.Speed > 0 {
		return clamp(stop, -force, 0)
	}
	return clamp(stop, 0, force)
}

// Reset clears rotation state.
func (w *Wheel) Reset() {
	w.Speed, w.DeltaRotation = 0, 0
	w.DriveTorque, w.BrakeTorque = 0, 0
	w.DriveCoef, w.BrakeCoef = 1, 1
}

// wheelMass sums the tyre node masses.
func wheelMass(nodes []softbody.Node, w *Wheel) float32 {
	var m float32
	for _, ni := range w.Nodes {
		m += nodes[ni].Mass
	}
	return math32.Max(m, 1e-3)
}
