package core

// GearChange is the discrete gearbox request carried by an input snapshot.
type GearChange uint8

const (
	GearNone GearChange = iota
	GearUp
	GearDown
	GearNeutral
	// GearSelect shifts directly to InputSnapshot.TargetGear (stick and range modes).
	GearSelect
	GearAutoUp
	GearAutoDown
	GearToggleMode
)

// InputSnapshot is the per-actor, per-tick control record. Toggle fields act on
// their rising edge: holding a toggle true across ticks toggles once.
type InputSnapshot struct {
	Steer    float32 `json:"steer"`
	Throttle float32 `json:"throttle"`
	Brake    float32 `json:"brake"`
	Clutch   float32 `json:"clutch"`

	Gear       GearChange `json:"gear"`
	TargetGear int        `json:"targetGear"`

	// Commands is indexed by command key.
	Commands []float32 `json:"commands,omitempty"`

	// Starter is level-triggered: the motor cranks while it is held.
	Starter bool `json:"starter"`

	Contact        bool `json:"contact"`
	Lights         bool `json:"lights"`
	Beacon         bool `json:"beacon"`
	Horn           bool `json:"horn"`
	CruiseControl  bool `json:"cruise"`
	CruiseAccel    bool `json:"cruiseAccel"`
	CruiseDecel    bool `json:"cruiseDecel"`
	CruiseReadjust bool `json:"cruiseReadjust"`
	SpeedLimiter   bool `json:"speedLimiter"`
	ParkingBrake   bool `json:"parkingBrake"`
	Hooks          bool `json:"hooks"`
	Ties           bool `json:"ties"`
	AntiLock       bool `json:"abs"`
	Traction       bool `json:"tc"`
}

// Clamped returns a copy with every analog field forced into its legal range.
func (in InputSnapshot) Clamped() InputSnapshot {
	in.Steer = clamp(in.Steer, -1, 1)
	in.Throttle = clamp(in.Throttle, 0, 1)
	in.Brake = clamp(in.Brake, 0, 1)
	in.Clutch = clamp(in.Clutch, 0, 1)
	if len(in.Commands) > 0 {
		cmds := make([]float32, len(in.Commands))
		for i, v := range in.Commands {
			cmds[i] = clamp(v, 0, 1)
		}
		in.Commands = cmds
	}
	return in
}

// Command returns the value for a command key or 0 when absent.
func (in *InputSnapshot) Command(key int) float32 {
	if key < 0 || key >= len(in.Commands) {
		return 0
	}
	return in.Commands[key]
}

func clamp(v, lo, hi float32) float32 {
	if v != v {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
