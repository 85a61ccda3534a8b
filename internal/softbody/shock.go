package softbody

import "github.com/chewxy/math32"

// Shock holds the progressive coefficients and travel state of a shock2 or
// shock3 beam. Shock1 beams only use the bound coefficients.
type Shock struct {
	Beam int

	SpringIn, DampIn           float32
	ProgSpringIn, ProgDampIn   float32
	SpringOut, DampOut         float32
	ProgSpringOut, ProgDampOut float32

	// Shock3 split damping.
	SplitVelIn, SlowDampIn, FastDampIn    float32
	SplitVelOut, SlowDampOut, FastDampOut float32

	// BoundSpring and BoundDamp act past the travel limits.
	BoundSpring float32
	BoundDamp   float32

	// Lockup is set while the shock sits beyond a travel limit.
	Lockup bool
	// Packet is +1 while extending and -1 while compressing.
	Packet   int8
	LastDiff float32
}

// NewShock returns a shock with a stiff default bump stop.
func NewShock(beam int) Shock {
	return Shock{Beam: beam, BoundSpring: DefaultSpring, BoundDamp: 12000}
}

func (s *Shock) reset() {
	s.Lockup = false
	s.Packet = 0
	s.LastDiff = 0
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// shock1 blends toward the bump-stop coefficients past the travel limits.
func shock1(b *Beam, s *Shock, diff float32) (k, d float32) {
	k, d = b.K, b.D
	long := b.LongBound * b.RestLength
	short := -b.ShortBound * b.RestLength
	var over float32
	switch {
	case diff > long:
		over = diff - long
	case diff < short:
		over = short - diff
	default:
		if s != nil {
			s.Lockup = false
		}
		return k, d
	}
	bs, bd := float32(DefaultSpring), float32(12000)
	if s != nil {
		bs, bd = s.BoundSpring, s.BoundDamp
		s.Lockup = true
	}
	t := clamp01(over)
	return k + (bs-k)*t, d + (bd-d)*t
}

// shock2 applies progressive out/in curves inside the travel and the bump
// stop outside it.
func shock2(b *Beam, s *Shock, diff float32) (k, d float32) {
	long := b.LongBound * b.RestLength
	short := b.ShortBound * b.RestLength
	if diff > long || diff < -short {
		s.Lockup = true
		return s.BoundSpring, s.BoundDamp
	}
	s.Lockup = false
	if diff >= 0 {
		s.Packet = 1
		var loga float32
		if long > 0 {
			loga = math32.Min(sq(diff/long), 1)
		}
		k = s.SpringOut + s.ProgSpringOut*s.SpringOut*loga
		d = s.DampOut + s.ProgDampOut*s.DampOut*loga
		return k, d
	}
	s.Packet = -1
	var loga float32
	if short > 0 {
		loga = math32.Min(sq(-diff/short), 1)
	}
	k = s.SpringIn + s.ProgSpringIn*s.SpringIn*loga
	d = s.DampIn + s.ProgDampIn*s.DampIn*loga
	return k, d
}

// shock3 uses split slow/fast damping keyed on the relative velocity.
func shock3(b *Beam, s *Shock, diff, vrel float32) (k, d float32) {
	long := b.LongBound * b.RestLength
	short := b.ShortBound * b.RestLength
	if diff > long || diff < -short {
		s.Lockup = true
		return s.BoundSpring, s.BoundDamp
	}
	s.Lockup = false
	v := math32.Max(0.15, math32.Min(math32.Abs(vrel), 20))
	if vrel >= 0 {
		s.Packet = 1
		return s.SpringOut, splitDamp(v, s.SplitVelOut, s.SlowDampOut, s.FastDampOut)
	}
	s.Packet = -1
	return s.SpringIn, splitDamp(v, s.SplitVelIn, s.SlowDampIn, s.FastDampIn)
}

// splitDamp returns the effective damping coefficient so that the damping
// force is slow*v below the split velocity and continues with the fast slope
// above it.
func splitDamp(v, split, slow, fast float32) float32 {
	if v <= split || split <= 0 {
		return slow
	}
	return (slow*split + fast*(v-split)) / v
}

func sq(v float32) float32 { return v * v }
