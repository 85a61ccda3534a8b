package aids

import "github.com/chewxy/math32"

// DefaultCruiseGain converts speed error to accelerator per unit of
// mass over power.
const DefaultCruiseGain = 200

// Cruise holds a target wheel speed in gear or a target rpm in neutral.
type Cruise struct {
	Enabled     bool
	TargetSpeed float32
	TargetRPM   float32
	LowerLimit  float32
	CanBrake    bool
	Gain        float32
}

func NewCruise() Cruise { return Cruise{Gain: DefaultCruiseGain} }

// Toggle engages on the current wheel speed and rpm, or disengages.
func (c *Cruise) Toggle(st State) {
	c.Enabled = !c.Enabled
	if c.Enabled {
		c.TargetSpeed = st.WheelSpeed
		c.TargetRPM = st.RPM
	}
}

func (c *Cruise) disengages(st State) bool {
	return st.Brake > 0.05 ||
		st.Clutch > 0.05 ||
		st.GearChanged ||
		!st.Running ||
		!st.Contact ||
		c.TargetSpeed < c.LowerLimit ||
		(st.ParkingBrake && st.Gear > 0)
}

// Update returns the adjusted output and whether cruise control turned
// itself off this tick.
func (c *Cruise) Update(st State, out Output) (Output, bool) {
	if c.disengages(st) {
		c.Enabled = false
		return out, true
	}
	switch {
	case st.Gear > 0:
		if err := c.TargetSpeed - st.WheelSpeed; err > 0 && st.Power > 0 {
			out.Throttle = math32.Max(out.Throttle, math32.Min(1, err*st.Mass*c.Gain/st.Power))
		}
	case st.Gear == 0:
		if err := c.TargetRPM - st.RPM; err > 0 {
			out.Throttle = math32.Max(out.Throttle, clamp(err*0.01, 0, 1))
		}
	}
	if c.CanBrake && st.Throttle == 0 && st.WheelSpeed > c.TargetSpeed+0.5 {
		out.Brake = math32.Max(out.Brake, math32.Min(1, (st.WheelSpeed-c.TargetSpeed)*0.5))
	}
	return out, false
}

// Accelerate raises the target exponentially with time.
func (c *Cruise) Accelerate(st State, lim Limiter, dt float32) {
	if st.Gear == 0 {
		c.TargetRPM = math32.Min(c.TargetRPM+1000*dt, st.MaxRPM)
		return
	}
	c.TargetSpeed = math32.Max(c.TargetSpeed*(1+0.5*dt), c.TargetSpeed+2.5*dt)
	c.TargetSpeed = math32.Max(c.LowerLimit, c.TargetSpeed)
	if lim.Enabled {
		c.TargetSpeed = math32.Min(c.TargetSpeed, lim.Limit)
	}
}

// Decelerate lowers the target exponentially with time.
func (c *Cruise) Decelerate(st State, dt float32) {
	if st.Gear == 0 {
		c.TargetRPM = math32.Max(c.TargetRPM-1000*dt, st.MinRPM)
		return
	}
	c.TargetSpeed = math32.Min(c.TargetSpeed*(1-0.5*dt), c.TargetSpeed-2.5*dt)
	c.TargetSpeed = math32.Max(c.LowerLimit, c.TargetSpeed)
}

// Readjust raises the target to the current wheel speed and rpm.
func (c *Cruise) Readjust(st State, lim Limiter) {
	c.TargetSpeed = math32.Max(st.WheelSpeed, c.TargetSpeed)
	if lim.Enabled {
		c.TargetSpeed = math32.Min(c.TargetSpeed, lim.Limit)
	}
	c.TargetRPM = st.RPM
}

// Limiter caps the accelerator as the wheel speed approaches Limit.
type Limiter struct {
	Enabled bool
	Limit   float32
}

func (l Limiter) Apply(st State, out Output) Output {
	if st.Gear != 0 {
		out.Throttle = math32.Min(out.Throttle, math32.Max(0, (l.Limit-math32.Abs(st.WheelSpeed))*2))
	}
	return out
}
