package aids

import "github.com/chewxy/math32"

// Anti-rollback defaults.
const (
	DefaultRollbackWindow = 0.5
	DefaultRollbackPitch  = 2 * math32.Pi / 180
)

// AntiRollback holds a vehicle that the engine cannot keep from rolling
// back down a slope.
type AntiRollback struct {
	Enabled bool
	// Window is the wheel speed below which the brake engages.
	Window   float32
	MinPitch float32
}

func NewAntiRollback() AntiRollback {
	return AntiRollback{Window: DefaultRollbackWindow, MinPitch: DefaultRollbackPitch}
}

// Brake returns the brake the aid requests, zero when it does not apply.
func (a AntiRollback) Brake(st State) float32 {
	forward := st.Forward && st.WheelSpeed < a.Window && st.Pitch > a.MinPitch
	reverse := st.Reverse && st.WheelSpeed > -a.Window && st.Pitch < -a.MinPitch
	if !forward && !reverse {
		return 0
	}
	downhill := math32.Sin(math32.Abs(st.Pitch)) * st.Mass * st.Gravity
	if downhill <= 0 {
		return 0
	}
	ratio := math32.Max(0, 1-math32.Abs(st.DriveForce)/downhill)
	proximity := clamp(1-math32.Abs(st.WheelSpeed)/a.Window, 0, 1)
	return math32.Sqrt(ratio) * proximity
}

func (a AntiRollback) Apply(st State, out Output) Output {
	out.Brake = math32.Max(out.Brake, a.Brake(st))
	return out
}
