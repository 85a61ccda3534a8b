package softbody

import "github.com/chewxy/math32"

// CommandBeam binds a beam to a command in one direction.
type CommandBeam struct {
	Beam   int
	Extend bool
}

// Command drives the rest length of a group of beams from one input key.
type Command struct {
	Key         int
	Description string
	Beams       []CommandBeam
	NeedsEngine bool
	// Coupling is the exponent applied to the engine running factor.
	Coupling float32
	// Speed is the base movement rate in reference lengths per second.
	Speed float32
	// StartRate and StopRate limit how fast the effective input may rise and
	// fall, per second. Zero disables the limit.
	StartRate float32
	StopRate  float32

	value float32
}

// Value is the effective, rate-limited input of the last tick.
func (c *Command) Value() float32 { return c.value }

func (c *Command) slew(in, dt float32) float32 {
	switch {
	case in > c.value && c.StartRate > 0:
		c.value = math32.Min(in, c.value+c.StartRate*dt)
	case in < c.value && c.StopRate > 0:
		c.value = math32.Max(in, c.value-c.StopRate*dt)
	default:
		c.value = in
	}
	return c.value
}

// CommandInput is what commands, hydros and ties read each tick.
type CommandInput struct {
	Values []float32
	Steer  float32
	// WheelSpeed is the vehicle's average wheel speed in m/s.
	WheelSpeed float32
	HasEngine  bool
	Running    bool
	// RunningFactor is the engine crank factor while running.
	RunningFactor float32
}

func (in *CommandInput) value(key int) float32 {
	if key < 0 || key >= len(in.Values) {
		return 0
	}
	return in.Values[key]
}

func (in *CommandInput) factor(coupling float32) float32 {
	if !in.HasEngine {
		return 1
	}
	if !in.Running {
		return math32.Pow(0, coupling)
	}
	return math32.Pow(in.RunningFactor, coupling)
}

// UpdateCommands moves command beam rest lengths toward their targets. It
// reports whether any engine-coupled command is moving, which asks the engine
// to prime for hydraulic load.
func (b *Body) UpdateCommands(in CommandInput, dt float32) (pumping bool) {
	for i := range b.Beams {
		if a := b.Beams[i].Command; a != nil {
			a.extend, a.contract, a.rate = 0, 0, 0
		}
	}
	for ci := range b.Commands {
		cmd := &b.Commands[ci]
		v := cmd.slew(in.value(cmd.Key), dt)
		rate := cmd.Speed * in.factor(cmd.Coupling)
		if cmd.NeedsEngine && in.HasEngine && !in.Running {
			rate = 0
		}
		if v > 0 && rate > 0 && cmd.Coupling > 0 {
			pumping = true
		}
		for _, cb := range cmd.Beams {
			if cb.Beam < 0 || cb.Beam >= len(b.Beams) {
				continue
			}
			a := b.Beams[cb.Beam].Command
			if a == nil {
				continue
			}
			if cb.Extend {
				a.extend = math32.Max(a.extend, v)
			} else {
				a.contract = math32.Max(a.contract, v)
			}
			a.rate = math32.Max(a.rate, rate)
		}
	}
	for i := range b.Beams {
		bm := &b.Beams[i]
		a := bm.Command
		if a == nil || bm.Broken {
			continue
		}
		target := bm.RefLength * (1 + a.extend*(a.RatioLong-1) - a.contract*(1-a.RatioShort))
		lo, hi := bm.RefLength*a.RatioShort, bm.RefLength*a.RatioLong
		target = math32.Max(lo, math32.Min(hi, target))
		bm.RestLength = approach(bm.RestLength, target, a.rate*bm.RefLength*dt)
	}
	return pumping
}

// approach moves v toward target by at most step.
func approach(v, target, step float32) float32 {
	if step <= 0 {
		return v
	}
	d := target - v
	switch {
	case math32.Abs(d) <= step:
		return target
	case d > 0:
		return v + step
	}
	return v - step
}

// HydroRate is the steering slew rate in units per second at wheel speed ws.
func HydroRate(ws float32) float32 {
	return math32.Max(1.2, 30/(10+math32.Abs(ws)/2))
}

// UpdateHydros slews the steering state and sets hydro rest lengths.
func (b *Body) UpdateHydros(in CommandInput, dt float32) {
	b.HydroState = approach(b.HydroState, in.Steer, HydroRate(in.WheelSpeed)*dt)
	coupled := b.HydroState * math32.Max(0, (12-math32.Abs(in.WheelSpeed))/12)
	for i := range b.Beams {
		bm := &b.Beams[i]
		h := bm.Hydro
		if h == nil || bm.Broken {
			continue
		}
		state := b.HydroState
		if h.SpeedCoupled {
			state = coupled
		}
		bm.RestLength = math32.Max(MinBeamLength, h.Length*(1+state*h.Ratio))
	}
}

// ToggleTies starts tightening idle ties and releases active ones.
func (b *Body) ToggleTies() {
	for i := range b.Beams {
		bm := &b.Beams[i]
		t := bm.Tie
		if t == nil || bm.Broken {
			continue
		}
		if t.Active {
			t.Active = false
			t.Tying = false
			bm.Disabled = true
			bm.RestLength = bm.RefLength
			continue
		}
		t.Active = true
		t.Tying = true
		bm.Disabled = false
	}
}

// UpdateTies shortens tightening ties until they reach their short limit or
// the tension exceeds MaxStress.
func (b *Body) UpdateTies(dt float32) {
	for i := range b.Beams {
		bm := &b.Beams[i]
		t := bm.Tie
		if t == nil || !t.Tying || !bm.Active() {
			continue
		}
		if t.MaxStress > 0 && math32.Abs(bm.Stress) > t.MaxStress {
			t.Tying = false
			continue
		}
		short := math32.Max(MinBeamLength, t.Short*bm.RefLength)
		bm.RestLength = approach(bm.RestLength, short, t.Speed*bm.RefLength*dt)
		if bm.RestLength <= short {
			t.Tying = false
		}
	}
}
