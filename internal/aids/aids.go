// Package aids implements the driving aids: cruise control, speed limiter,
// anti-rollback, ABS and traction control. Every aid is a per-tick
// controller over an observed State and the previous Output.
package aids

import "github.com/chewxy/math32"

// State is what the aids observe of the vehicle for one tick.
type State struct {
	Throttle float32
	Brake    float32
	Clutch   float32

	// WheelSpeed is the signed mean propelled wheel speed in m/s.
	WheelSpeed float32
	// GroundSpeed is the chassis speed along its heading in m/s.
	GroundSpeed float32

	RPM    float32
	MinRPM float32
	MaxRPM float32

	Gear int
	// Forward and Reverse tell the drive direction the gearbox selects.
	Forward bool
	Reverse bool

	Running      bool
	Contact      bool
	ParkingBrake bool
	GearChanged  bool

	Mass    float32
	Power   float32
	Gravity float32
	// Pitch is the chassis pitch in radians, positive nose up.
	Pitch float32
	// DriveForce is the engine force at the wheel rims in N.
	DriveForce float32
}

// Output is what the aids drive: accelerator and brake pedal.
type Output struct {
	Throttle float32
	Brake    float32
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}

// Set bundles the aids of one vehicle and applies them in order.
type Set struct {
	Cruise   Cruise
	Limiter  Limiter
	Rollback AntiRollback
	ABS      Pulsed
	TC       Pulsed
}

// NewSet returns aids with default tuning, all disabled.
func NewSet() Set {
	return Set{
		Cruise:   NewCruise(),
		Rollback: NewAntiRollback(),
		ABS:      NewABS(),
		TC:       NewTC(),
	}
}

// Reset disables the controllers that hold targets.
func (s *Set) Reset() {
	s.Cruise.Enabled = false
	s.ABS.reset()
	s.TC.reset()
}

// Update runs cruise control, limiter and anti-rollback. It reports
// whether cruise control disengaged.
func (s *Set) Update(st State) (Output, bool) {
	out := Output{Throttle: st.Throttle, Brake: st.Brake}
	var off bool
	if s.Cruise.Enabled {
		out, off = s.Cruise.Update(st, out)
	}
	if s.Limiter.Enabled {
		out = s.Limiter.Apply(st, out)
	}
	if s.Rollback.Enabled {
		out = s.Rollback.Apply(st, out)
	}
	return out, off
}
