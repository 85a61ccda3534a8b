package driveline

import (
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
)

// EngineState is the engine's combustion state.
type EngineState uint8

const (
	EngineOff EngineState = iota
	EngineStarting
	EngineRunning
	EngineStalled
)

func (s EngineState) String() string {
	switch s {
	case EngineOff:
		return "off"
	case EngineStarting:
		return "starting"
	case EngineRunning:
		return "running"
	case EngineStalled:
		return "stalled"
	}
	return "unknown"
}

// GearboxMode selects who operates clutch and gear lever.
type GearboxMode uint8

const (
	Automatic GearboxMode = iota
	SemiAuto
	Manual
	ManualStick
	ManualRanges
)

// Automated reports whether the clutch is operated by the gearbox.
func (m GearboxMode) Automated() bool { return m <= SemiAuto }

// AutoSelect is the selector position of an automatic gearbox.
type AutoSelect uint8

const (
	AutoRear AutoSelect = iota
	AutoNeutral
	AutoDrive
	AutoTwo
	AutoOne
	AutoManual
)

// Forward reports whether the selector drives forward.
func (a AutoSelect) Forward() bool { return a == AutoDrive || a == AutoTwo || a == AutoOne }

// RPMToRadPerSec converts rpm to rad/s.
const RPMToRadPerSec = 2 * math32.Pi / 60

// Turbo configures an optional turbocharger.
type Turbo struct {
	MaxPSI  float32 `json:"maxPsi"`
	Inertia float32 `json:"inertia"`
	Torque  float32 `json:"torque"`
}

// EngineSpec describes an engine as it comes from a definition. Zero fields
// take defaults.
type EngineSpec struct {
	MinRPM    float32 `json:"minRpm"`
	MaxRPM    float32 `json:"maxRpm"`
	MaxTorque float32 `json:"maxTorque"`
	DiffRatio float32 `json:"diffRatio"`
	// Gears holds reverse, neutral, then forward ratios as positive numbers.
	Gears []float32 `json:"gears"`

	Inertia         float32 `json:"inertia"`
	ClutchForce     float32 `json:"clutchForce"`
	ClutchTime      float32 `json:"clutchTime"`
	ShiftTime       float32 `json:"shiftTime"`
	PostShiftTime   float32 `json:"postShiftTime"`
	IdleRPM         float32 `json:"idleRpm"`
	StallRPM        float32 `json:"stallRpm"`
	MinIdleMixture  float32 `json:"minIdleMixture"`
	MaxIdleMixture  float32 `json:"maxIdleMixture"`
	ShiftUpRPM      float32 `json:"shiftUpRpm"`
	ShiftDownRPM    float32 `json:"shiftDownRpm"`
	ShiftHysteresis float32 `json:"shiftHysteresis"`

	Mode  GearboxMode `json:"mode"`
	Curve TorqueCurve `json:"curve"`
	Turbo *Turbo      `json:"turbo,omitempty"`
}

func orDefault(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// WithDefaults fills zero fields.
func (s EngineSpec) WithDefaults() EngineSpec {
	s.MinRPM = math32.Abs(s.MinRPM)
	s.MaxRPM = math32.Abs(s.MaxRPM)
	s.DiffRatio = orDefault(s.DiffRatio, 1)
	s.Inertia = orDefault(s.Inertia, 10)
	s.ClutchForce = orDefault(s.ClutchForce, 10000)
	s.ClutchTime = orDefault(s.ClutchTime, 0.2)
	s.ShiftTime = orDefault(s.ShiftTime, 0.5)
	s.PostShiftTime = orDefault(s.PostShiftTime, 0.2)
	s.IdleRPM = orDefault(s.IdleRPM, math32.Min(s.MinRPM, 800))
	s.StallRPM = orDefault(s.StallRPM, 300)
	s.MaxIdleMixture = orDefault(s.MaxIdleMixture, 0.1)
	s.ShiftUpRPM = orDefault(s.ShiftUpRPM, s.MaxRPM-100)
	s.ShiftDownRPM = orDefault(s.ShiftDownRPM, s.MinRPM)
	s.ShiftHysteresis = orDefault(s.ShiftHysteresis, 0.25)
	if len(s.Gears) < 3 {
		s.Gears = append(s.Gears, make([]float32, 3-len(s.Gears))...)
	}
	return s
}

// Engine is a combustion engine coupled to a gearbox through a clutch.
type Engine struct {
	Spec EngineSpec

	// ratios are [reverse, neutral, 1..N] premultiplied by the diff ratio
	// with the reverse ratio negated.
	ratios []float32

	State   EngineState
	Contact bool
	Starter bool
	// Prime is set while a hydraulic pump draws on the engine.
	Prime bool

	RPM          float32
	Clutch       float32
	ClutchTorque float32
	WheelRPM     float32
	TurboPSI     float32

	Gear   int
	Range  int
	Select AutoSelect

	acc       float32
	autoAcc   float32
	manual    float32
	startRun  bool
	shifting  bool
	shiftVal  int
	shiftTime float32
	post      bool
	postTime  float32
}

// NewEngine builds an engine from spec. The engine starts off.
func NewEngine(spec EngineSpec) *Engine {
	spec = spec.WithDefaults()
	e := &Engine{Spec: spec}
	e.ratios = make([]float32, len(spec.Gears))
	for i, r := range spec.Gears {
		e.ratios[i] = r * spec.DiffRatio
	}
	e.ratios[0] = -e.ratios[0]
	e.Off()
	return e
}

// Gears returns the number of forward gears.
func (e *Engine) Gears() int { return len(e.ratios) - 2 }

// Ratio returns the total ratio of gear g, zero in neutral.
func (e *Engine) Ratio(g int) float32 {
	if g < -1 || g > e.Gears() {
		return 0
	}
	return e.ratios[g+1]
}

// Running reports whether the engine produces torque.
func (e *Engine) Running() bool { return e.State == EngineRunning }

// Acc returns the effective accelerator of the last update.
func (e *Engine) Acc() float32 { return e.acc }

// Power returns the peak mechanical power in watts.
func (e *Engine) Power() float32 {
	return e.Spec.MaxTorque * e.Spec.MaxRPM * RPMToRadPerSec
}

// Start brings the engine to idle immediately, with contact on and the
// first gear engaged on automated gearboxes.
func (e *Engine) Start() {
	switch e.Spec.Mode {
	case Automatic:
		e.Gear = 1
		e.Select = AutoDrive
	case SemiAuto:
		e.Gear = 1
		e.Select = AutoManual
	default:
		e.Gear = 0
		e.Select = AutoManual
	}
	e.Clutch = 0
	e.RPM = e.Spec.IdleRPM
	e.ClutchTorque = 0
	e.TurboPSI = 0
	e.State = EngineRunning
	e.Contact = true
	e.startRun = true
	e.clearShift()
}

// Off stops the engine, switches contact off and selects neutral.
func (e *Engine) Off() {
	e.Gear = 0
	e.Clutch = 0
	e.Select = AutoNeutral
	if !e.Spec.Mode.Automated() || e.Spec.Mode == SemiAuto {
		e.Select = AutoManual
	}
	e.RPM = 0
	e.ClutchTorque = 0
	e.TurboPSI = 0
	e.State = EngineOff
	e.Contact = false
	e.Starter = false
	e.startRun = false
	e.clearShift()
}

// Reset restores the spawn state.
func (e *Engine) Reset() {
	run := e.startRun
	e.Off()
	if run {
		e.Start()
	}
}

func (e *Engine) clearShift() {
	e.shifting, e.shiftVal, e.shiftTime = false, 0, 0
	e.post, e.postTime = false, 0
	e.acc, e.autoAcc = 0, 0
}

// SetAcc sets the accelerator input. Automated gearboxes hold it at zero
// while shifting.
func (e *Engine) SetAcc(v float32) {
	e.autoAcc = clamp(v, 0, 1)
	if !e.shifting {
		e.acc = e.autoAcc
	}
}

// SetManualClutch sets the clutch pedal for manual gearboxes. 1 is fully
// depressed.
func (e *Engine) SetManualClutch(v float32) {
	e.manual = clamp(v, 0, 1)
	if !e.Spec.Mode.Automated() {
		e.Clutch = 1 - e.manual
	}
}

// SetWheelSpin feeds back the averaged driven wheel rpm.
func (e *Engine) SetWheelSpin(rpm float32) { e.WheelRPM = rpm }

// ToggleContact flips the ignition.
func (e *Engine) ToggleContact() { e.Contact = !e.Contact }

// CrankFactor scales hydraulic command speed with engine rpm.
func (e *Engine) CrankFactor() float32 {
	minWorking := e.Spec.IdleRPM * 1.1
	span := e.Spec.MaxRPM - minWorking
	if span <= 0 {
		return 0
	}
	return 5 * clamp((e.RPM-minWorking)/span, 0, 1)
}

// TorqueAt returns full-throttle torque at rpm.
func (e *Engine) TorqueAt(rpm float32) float32 {
	return e.Spec.MaxTorque * e.Spec.Curve.At(rpm)
}

func (e *Engine) braking() float32 { return -e.Spec.MaxTorque / 5 }

// IdleMixture returns the accelerator needed to hold idle.
func (e *Engine) IdleMixture() float32 {
	if e.RPM >= e.Spec.IdleRPM {
		return 0
	}
	var hold float32
	if p := e.TorqueAt(e.RPM); p > 0 {
		hold = -e.braking() * math32.Min(e.RPM/(e.Spec.MaxRPM*1.25), 1) / p
	}
	mix := math32.Max(0.06, hold) * (1 + (e.Spec.IdleRPM-e.RPM)/100)
	return clamp(mix, e.Spec.MinIdleMixture, e.Spec.MaxIdleMixture)
}

// PrimeMixture returns the extra mixture requested by hydraulic priming.
func (e *Engine) PrimeMixture() float32 {
	if !e.Prime {
		return 0
	}
	switch c := e.CrankFactor(); {
	case c < 0.9:
		return 1
	case c < 1:
		return 10 * (1 - c)
	}
	return 0
}

// OutputTorque is the torque delivered to the driven wheels.
func (e *Engine) OutputTorque() float32 { return e.ClutchTorque }

// Update advances the engine by dt and reports whether it stalled.
func (e *Engine) Update(dt float32) (stalled bool) {
	s := &e.Spec
	acc := math32.Max(e.acc, math32.Max(e.IdleMixture(), e.PrimeMixture()))
	if e.State != EngineRunning {
		acc = e.acc
	}

	switch e.State {
	case EngineOff, EngineStalled:
		if e.Contact && e.Starter {
			e.State = EngineStarting
		}
	case EngineStarting:
		if !e.Contact || !e.Starter {
			e.State = EngineOff
		}
	case EngineRunning:
		if !e.Contact {
			e.State = EngineOff
		}
	}

	var total float32
	if e.Contact {
		total += e.braking() * e.RPM / s.MaxRPM
	} else {
		total += 10 * e.braking() * e.RPM / s.MaxRPM
	}
	if e.State == EngineStarting {
		total += s.MaxTorque*math32.Exp(-2.7*e.RPM/s.IdleRPM) - e.braking()
	}
	if e.State == EngineRunning && e.RPM < s.MaxRPM*1.25 {
		t := e.TorqueAt(e.RPM) * acc
		if e.post {
			t /= 1 + s.ShiftHysteresis
		}
		total += t + e.turbo(acc, dt)
	}

	if r := e.Ratio(e.Gear); r != 0 {
		total -= e.ClutchTorque / r
	}
	e.RPM = math32.Max(0, e.RPM+dt*total/s.Inertia)

	switch {
	case e.State == EngineStarting && e.RPM >= s.IdleRPM:
		e.State = EngineRunning
	case e.State == EngineRunning && e.RPM < s.StallRPM:
		e.State = EngineStalled
		stalled = true
	}

	e.updateClutchTorque()
	if s.Mode.Automated() {
		e.updateShift(dt)
		e.autoClutch(acc)
	}
	if s.Mode == Automatic && !e.shifting && !e.post {
		e.autoShift()
	}
	return stalled
}

func (e *Engine) turbo(acc, dt float32) float32 {
	t := e.Spec.Turbo
	if t == nil || t.MaxPSI <= 0 {
		return 0
	}
	target := acc * t.MaxPSI
	if t.Inertia > 0 {
		e.TurboPSI += (target - e.TurboPSI) * (1 - math32.Exp(-dt/t.Inertia))
	} else {
		e.TurboPSI = target
	}
	return t.Torque * e.TurboPSI / t.MaxPSI
}

func (e *Engine) updateClutchTorque() {
	r := e.Ratio(e.Gear)
	if r == 0 {
		e.ClutchTorque = 0
		return
	}
	delta := e.RPM/r - e.WheelRPM
	t := delta * e.Clutch * e.Spec.ClutchForce
	limit := 1.5 * e.Spec.MaxTorque * math32.Abs(e.Ratio(1))
	t = clamp(t, -limit, limit)
	e.ClutchTorque = t * (1 - math32.Exp(-math32.Abs(delta)))
}

func (e *Engine) updateShift(dt float32) {
	s := &e.Spec
	if e.shifting {
		e.shiftTime += dt
		switch {
		case e.shiftTime < s.ClutchTime:
			e.Clutch = 1 - e.shiftTime/s.ClutchTime
		case e.shiftTime > s.ShiftTime-s.ClutchTime:
			e.Clutch = 1 - (s.ShiftTime-e.shiftTime)/s.ClutchTime
		default:
			e.Clutch = 0
		}
		if e.shiftVal != 0 && e.shiftTime > s.ShiftTime/2 {
			e.Gear = clampInt(e.Gear+e.shiftVal, -1, e.Gears())
			e.shiftVal = 0
		}
		if e.shiftTime > s.ShiftTime {
			e.shifting = false
			e.acc = e.autoAcc
			e.Clutch = 1
			e.post, e.postTime = true, 0
		}
		return
	}
	if e.post {
		e.postTime += dt
		if e.postTime > s.PostShiftTime {
			e.post = false
		}
	}
}

// autoClutch engages between the declutch rpm and idle.
func (e *Engine) autoClutch(acc float32) {
	if e.shifting {
		if e.RPM < e.Spec.StallRPM*1.2 {
			e.Clutch = 0
		}
		return
	}
	declutch := 0.75*e.Spec.IdleRPM + 0.25*e.Spec.StallRPM
	span := e.Spec.IdleRPM - declutch
	if span <= 0 {
		e.Clutch = 1
		return
	}
	e.Clutch = clamp((e.RPM-declutch)/span, 0, 1)
}

func (e *Engine) autoShift() {
	if e.Gear <= 0 || !e.Select.Forward() {
		return
	}
	limit := e.Gears()
	switch e.Select {
	case AutoTwo:
		limit = min(2, limit)
	case AutoOne:
		limit = 1
	}
	switch {
	case e.Gear > limit:
		e.Shift(limit - e.Gear)
	case e.RPM > e.Spec.ShiftUpRPM && e.Gear < limit:
		e.Shift(1)
	case e.RPM < e.Spec.ShiftDownRPM && e.Gear > 1 &&
		e.WheelRPM*e.Ratio(e.Gear-1) < e.Spec.ShiftUpRPM:
		e.Shift(-1)
	}
}

// Shifting reports whether a timed shift or its post-shift window is active.
func (e *Engine) Shifting() bool { return e.shifting || e.post }

// Shift moves the gear by delta. Automated gearboxes run a timed sequence;
// manual gearboxes shift only with the clutch depressed.
func (e *Engine) Shift(delta int) bool {
	target := e.Gear + delta
	if delta == 0 || target < -1 || target > e.Gears() {
		return false
	}
	if e.Spec.Mode.Automated() {
		e.shiftVal = delta
		e.shifting = true
		e.shiftTime = 0
		e.acc = 0
		return true
	}
	if e.Clutch > 0.25 {
		return false
	}
	e.Gear = target
	return true
}

// ShiftTo selects gear g.
func (e *Engine) ShiftTo(g int) bool { return e.Shift(g - e.Gear) }

// SetRange selects gear range k for ManualRanges gearboxes, keeping the
// position within the range.
func (e *Engine) SetRange(k int) bool {
	if e.Spec.Mode != ManualRanges || k < 0 || 6*k+1 > e.Gears() {
		return false
	}
	e.Range = k
	if e.Gear > 0 {
		g := min(6*k+(e.Gear-1)%6+1, e.Gears())
		return e.ShiftTo(g)
	}
	return true
}

// SetSelect moves the automatic selector and picks the matching gear.
func (e *Engine) SetSelect(a AutoSelect) {
	if e.Spec.Mode != Automatic || a > AutoOne {
		return
	}
	e.Select = a
	switch a {
	case AutoRear:
		e.Gear = -1
	case AutoNeutral:
		e.Gear = 0
	case AutoOne:
		e.Gear = 1
	default:
		g := 1
		for g < e.Gears() && e.WheelRPM > 0 && e.WheelRPM*e.Ratio(g) > e.Spec.MaxRPM-100 {
			g++
		}
		if a == AutoTwo {
			g = min(g, 2)
		}
		e.Gear = g
	}
}

// SelectUp moves the selector toward rear.
func (e *Engine) SelectUp() {
	if e.Select != AutoRear && e.Select <= AutoOne {
		e.SetSelect(e.Select - 1)
	}
}

// SelectDown moves the selector toward one.
func (e *Engine) SelectDown() {
	if e.Select < AutoOne {
		e.SetSelect(e.Select + 1)
	}
}

// ToggleMode cycles the gearbox mode.
func (e *Engine) ToggleMode() {
	e.Spec.Mode = (e.Spec.Mode + 1) % (ManualRanges + 1)
	e.clearShift()
	switch e.Spec.Mode {
	case Automatic:
		e.Select = AutoDrive
		if e.Gear < 0 {
			e.Select = AutoRear
		} else if e.Gear == 0 {
			e.Select = AutoNeutral
		}
	default:
		e.Select = AutoManual
	}
}

// HandleGear applies a gear request and reports whether the gear or
// selector changed.
func (e *Engine) HandleGear(change core.GearChange, target int) bool {
	before, sel := e.Gear, e.Select
	switch change {
	case core.GearUp:
		if e.Spec.Mode == Automatic {
			e.SelectUp()
		} else {
			e.Shift(1)
		}
	case core.GearDown:
		if e.Spec.Mode == Automatic {
			e.SelectDown()
		} else {
			e.Shift(-1)
		}
	case core.GearNeutral:
		if e.Spec.Mode == Automatic {
			e.SetSelect(AutoNeutral)
		} else {
			e.ShiftTo(0)
		}
	case core.GearSelect:
		switch e.Spec.Mode {
		case ManualRanges:
			if target > 0 {
				e.SetRange((target - 1) / 6)
			}
			e.ShiftTo(target)
		case Automatic:
		default:
			e.ShiftTo(target)
		}
	case core.GearAutoUp:
		e.SelectUp()
	case core.GearAutoDown:
		e.SelectDown()
	case core.GearToggleMode:
		e.ToggleMode()
		return true
	default:
		return false
	}
	return e.Gear != before || e.Select != sel || e.shifting
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
