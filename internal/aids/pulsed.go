package aids

import "github.com/chewxy/math32"

// Pulsed is a per-wheel slip controller. As ABS it scales brake torque of
// wheels turning slower than the ground; as TC it scales drive torque of
// wheels turning faster.
type Pulsed struct {
	Enabled bool
	Ratio   float32
	PulseHz float32
	// MinSpeed gates ABS below a ground speed.
	MinSpeed float32
	// WheelSlip and Fade shape the TC slip allowance.
	WheelSlip float32
	Fade      float32
	// LaunchSpeed floors the ground speed TC compares against so a car can
	// pull away from rest.
	LaunchSpeed float32

	traction bool
	timer    float32
	pulse    bool
	coefs    []float32
	active   bool
}

func NewABS() Pulsed {
	return Pulsed{Ratio: 1, PulseHz: 10, MinSpeed: 0.5}
}

func NewTC() Pulsed {
	return Pulsed{Ratio: 1, PulseHz: 10, WheelSlip: 0.25, Fade: 10, LaunchSpeed: 0.5, traction: true}
}

// Active reports whether the controller intervened on the last update.
func (p *Pulsed) Active() bool { return p.active }

func (p *Pulsed) reset() {
	p.timer, p.pulse, p.active = 0, false, false
	for i := range p.coefs {
		p.coefs[i] = 1
	}
}

func (p *Pulsed) tick(dt float32) {
	p.timer += dt
	if p.PulseHz > 0 && p.timer >= 1/p.PulseHz {
		p.timer = 0
		p.pulse = !p.pulse
	}
}

// Update returns per-wheel torque coefficients in [0,1]. speeds are the
// wheel speeds; engaged reports brake input for ABS or drive torque for TC
// per wheel. The returned slice is reused.
func (p *Pulsed) Update(ground float32, speeds []float32, engaged []bool, dt float32) []float32 {
	if cap(p.coefs) < len(speeds) {
		p.coefs = make([]float32, len(speeds))
		for i := range p.coefs {
			p.coefs[i] = 1
		}
	}
	p.coefs = p.coefs[:len(speeds)]
	p.tick(dt)
	p.active = false
	cur := math32.Abs(ground)
	for i, ws := range speeds {
		ws = math32.Abs(ws)
		if !p.Enabled || !engaged[i] {
			p.coefs[i] = 1
			continue
		}
		if p.traction {
			ref := math32.Max(cur, p.LaunchSpeed)
			slip := 1 + p.WheelSlip
			if p.Fade > 0 {
				slip += p.WheelSlip * ref / p.Fade
			}
			if ws <= ref*slip {
				p.coefs[i] = 1
				continue
			}
			if p.pulse || p.coefs[i] == 1 {
				p.coefs[i] = math32.Pow(ref*slip/ws, p.Ratio)
			}
		} else {
			if cur <= ws || cur <= p.MinSpeed {
				p.coefs[i] = 1
				continue
			}
			if p.pulse || p.coefs[i] == 1 {
				p.coefs[i] = math32.Pow(ws/cur, p.Ratio)
			}
		}
		p.active = true
	}
	return p.coefs
}
