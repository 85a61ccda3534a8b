package aids

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cruising(speed float32) State {
	return State{
		WheelSpeed: speed,
		Gear:       3,
		Forward:    true,
		Running:    true,
		Contact:    true,
		Mass:       1000,
		Power:      100e3,
		Gravity:    9.81,
		MaxRPM:     3000,
		MinRPM:     800,
	}
}

// roll advances a longitudinal plant with rolling and air resistance.
func roll(v, throttle, brake, mass, power, dt float32) float32 {
	drive := throttle * power / math32.Max(v, 0.1)
	resist := 50 + 0.5*v*v + brake*5000
	return v + (drive-resist)/mass*dt
}

func TestCruiseHoldsTargetSpeed(t *testing.T) {
	const dt = 0.01
	s := NewSet()
	s.Cruise.Enabled = true
	s.Cruise.TargetSpeed = 20

	v := float32(19)
	for i := 0; i < 500; i++ {
		st := cruising(v)
		out, off := s.Update(st)
		require.False(t, off)
		v = roll(v, out.Throttle, out.Brake, st.Mass, st.Power, dt)
	}
	assert.Less(t, math32.Abs(v-20), float32(0.5))

	st := cruising(v)
	st.Brake = 0.3
	_, off := s.Update(st)
	assert.True(t, off)
	assert.False(t, s.Cruise.Enabled)
}

func TestCruiseDisengages(t *testing.T) {
	for name, mutate := range map[string]func(*State){
		"clutch":      func(s *State) { s.Clutch = 0.1 },
		"gear change": func(s *State) { s.GearChanged = true },
		"stalled":     func(s *State) { s.Running = false },
		"no contact":  func(s *State) { s.Contact = false },
		"parking":     func(s *State) { s.ParkingBrake = true },
	} {
		t.Run(name, func(t *testing.T) {
			c := NewCruise()
			c.Toggle(cruising(15))
			require.True(t, c.Enabled)
			st := cruising(15)
			mutate(&st)
			_, off := c.Update(st, Output{})
			assert.True(t, off)
		})
	}
}

func TestCruiseBelowLowerLimit(t *testing.T) {
	c := NewCruise()
	c.LowerLimit = 5
	c.Toggle(cruising(3))
	_, off := c.Update(cruising(3), Output{})
	assert.True(t, off)
}

func TestCruiseNeutralHoldsRPM(t *testing.T) {
	c := NewCruise()
	st := cruising(0)
	st.Gear = 0
	st.RPM = 1500
	c.Toggle(st)
	st.RPM = 1450
	out, off := c.Update(st, Output{})
	require.False(t, off)
	assert.InDelta(t, 0.5, out.Throttle, 1e-5)
}

func TestCruiseTargetAdjust(t *testing.T) {
	c := NewCruise()
	c.TargetSpeed = 20
	c.Accelerate(cruising(20), Limiter{}, 0.1)
	assert.InDelta(t, 21, c.TargetSpeed, 1e-5, "exponential step beats the floor")

	c.TargetSpeed = 2
	c.Accelerate(cruising(2), Limiter{}, 0.1)
	assert.InDelta(t, 2.25, c.TargetSpeed, 1e-5, "floor")

	c.TargetSpeed = 20
	c.Accelerate(cruising(20), Limiter{Enabled: true, Limit: 20.5}, 0.1)
	assert.Equal(t, float32(20.5), c.TargetSpeed)

	c.TargetSpeed = 20
	c.Decelerate(cruising(20), 0.1)
	assert.InDelta(t, 19, c.TargetSpeed, 1e-5)

	c.Readjust(cruising(25), Limiter{})
	assert.Equal(t, float32(25), c.TargetSpeed)
}

func TestCruiseCanBrake(t *testing.T) {
	c := NewCruise()
	c.Enabled = true
	c.CanBrake = true
	c.TargetSpeed = 20
	out, _ := c.Update(cruising(22), Output{})
	assert.InDelta(t, 1, out.Brake, 1e-6)
	out, _ = c.Update(cruising(20.4), Output{})
	assert.Zero(t, out.Brake)
}

func TestSpeedLimiter(t *testing.T) {
	l := Limiter{Enabled: true, Limit: 10}
	out := l.Apply(cruising(9.8), Output{Throttle: 1})
	assert.InDelta(t, 0.4, out.Throttle, 1e-5)
	out = l.Apply(cruising(12), Output{Throttle: 1})
	assert.Zero(t, out.Throttle)

	st := cruising(12)
	st.Gear = 0
	out = l.Apply(st, Output{Throttle: 1})
	assert.Equal(t, float32(1), out.Throttle, "neutral is not limited")
}

func TestAntiRollbackOnSlope(t *testing.T) {
	a := NewAntiRollback()
	a.Enabled = true
	st := cruising(0.01)
	st.Pitch = 5 * math32.Pi / 180

	want := math32.Sqrt(1) * (1 - 0.01/0.5)
	assert.InDelta(t, want, a.Brake(st), 1e-6)

	st.DriveForce = 0.5 * math32.Sin(st.Pitch) * st.Mass * st.Gravity
	assert.InDelta(t, math32.Sqrt(0.5)*(1-0.01/0.5), a.Brake(st), 1e-5)

	st.DriveForce = 10 * math32.Sin(st.Pitch) * st.Mass * st.Gravity
	assert.Zero(t, a.Brake(st), "never negative")

	st.DriveForce = 0
	st.Pitch = 1 * math32.Pi / 180
	assert.Zero(t, a.Brake(st), "flat enough")

	st.Pitch = 5 * math32.Pi / 180
	st.WheelSpeed = 1
	assert.Zero(t, a.Brake(st), "outside the window")
}

func TestAntiRollbackReverse(t *testing.T) {
	a := NewAntiRollback()
	st := cruising(-0.1)
	st.Forward, st.Reverse = false, true
	st.Pitch = -5 * math32.Pi / 180
	assert.InDelta(t, 0.8, a.Brake(st), 1e-5)

	out := a.Apply(st, Output{Brake: 0.9})
	assert.Equal(t, float32(0.9), out.Brake, "driver brake wins when stronger")
}

func TestABSReleasesLockingWheel(t *testing.T) {
	p := NewABS()
	p.Enabled = true
	coefs := p.Update(10, []float32{5, 10}, []bool{true, true}, 0.001)
	assert.InDelta(t, 0.5, coefs[0], 1e-6)
	assert.Equal(t, float32(1), coefs[1])
	assert.True(t, p.Active())

	coefs = p.Update(0.3, []float32{0}, []bool{true}, 0.001)
	assert.Equal(t, float32(1), coefs[0], "below minimum speed")
}

func TestTCLimitsSpinningWheel(t *testing.T) {
	p := NewTC()
	p.Enabled = true
	coefs := p.Update(10, []float32{20, 11}, []bool{true, true}, 0.001)
	slip := float32(1 + 0.25 + 0.25*10/10)
	assert.InDelta(t, 10*slip/20, coefs[0], 1e-5)
	assert.Equal(t, float32(1), coefs[1])

	coefs = p.Update(10, []float32{20}, []bool{false}, 0.001)
	assert.Equal(t, float32(1), coefs[0], "no drive torque")
}

func TestTCAllowsLaunchFromRest(t *testing.T) {
	p := NewTC()
	p.Enabled = true
	slip := float32(1 + 0.25 + 0.25*0.5/10)

	coefs := p.Update(0, []float32{0.3, 0.6}, []bool{true, true}, 0.001)
	assert.Equal(t, float32(1), coefs[0], "creeping wheel keeps full torque")
	assert.Equal(t, float32(1), coefs[1], "within the launch allowance")
	assert.False(t, p.Active())

	coefs = p.Update(0, []float32{5}, []bool{true}, 0.001)
	assert.InDelta(t, 0.5*slip/5, coefs[0], 1e-5)
	assert.Positive(t, coefs[0])
}

func TestPulseHoldsCoefficient(t *testing.T) {
	p := NewABS()
	p.Enabled = true
	p.PulseHz = 1
	p.Update(10, []float32{5}, []bool{true}, 0.01)
	coefs := p.Update(10, []float32{8}, []bool{true}, 0.01)
	assert.InDelta(t, 0.5, coefs[0], 1e-6, "coefficient held between pulses")
}
