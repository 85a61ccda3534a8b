package softbody

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnstable is returned when forces or state leave the finite range.
var ErrUnstable = errors.New("numerical instability")

// Environment carries the world parameters the force builder reads.
type Environment struct {
	Gravity mgl32.Vec3
	// Water enables buoyancy and water drag below WaterLevel.
	Water      bool
	WaterLevel float32
	// AirDrag scales the quadratic air drag of every node by its SurfaceCoef.
	AirDrag       float32
	ForceSentinel float32
}

// DefaultEnvironment is Earth gravity, no water.
func DefaultEnvironment() Environment {
	return Environment{
		Gravity:       mgl32.Vec3{0, -9.81, 0},
		AirDrag:       DefaultDrag,
		ForceSentinel: DefaultForceSentinel,
	}
}

// ForceBuilder accumulates the internal and environmental forces of a body
// for one tick. It keeps scratch space between ticks and is not safe for
// concurrent use; each worker owns its own builder.
type ForceBuilder struct {
	Env    Environment
	breaks []Break
}

// NewForceBuilder returns a builder for env.
func NewForceBuilder(env Environment) *ForceBuilder {
	return &ForceBuilder{Env: env}
}

// Begin zeroes every accumulator to the node's weight.
func (fb *ForceBuilder) Begin(b *Body) {
	g := fb.Env.Gravity
	for i := range b.Nodes {
		n := &b.Nodes[i]
		n.Forces = g.Mul(n.Mass)
	}
}

// Beams applies every active beam and returns the beams that broke this tick.
// The returned slice is reused on the next call.
func (fb *ForceBuilder) Beams(b *Body) []Break {
	fb.breaks = fb.breaks[:0]
	for i := range b.Beams {
		bm := &b.Beams[i]
		if !bm.Active() {
			continue
		}
		n1, n2 := &b.Nodes[bm.P1], &b.Nodes[bm.P2]
		u, l := direction(b.Nodes, bm)
		bm.Length = l
		if l < 1e-6 {
			bm.Stress = 0
			continue
		}
		vrel := n2.Velocity.Sub(n1.Velocity).Dot(u)
		diff := l - bm.RestLength

		k, d := bm.K, bm.D
		snapped := false
		switch bm.Bounded {
		case BoundedShock1:
			k, d = shock1(bm, fb.shock(b, bm), diff)
		case BoundedShock2:
			if s := fb.shock(b, bm); s != nil {
				k, d = shock2(bm, s, diff)
			}
		case BoundedShock3:
			if s := fb.shock(b, bm); s != nil {
				k, d = shock3(bm, s, diff, vrel)
			}
		case BoundedSupport:
			if diff > 0 {
				k = 0
				d *= 0.1
				if bm.LongBound > 0 && diff > bm.LongBound*bm.RefLength {
					snapped = true
				}
			}
		case BoundedRope:
			if diff < 0 {
				k = 0
				d *= 0.1
			}
		}

		stress := k*diff + d*vrel
		bm.Stress = stress
		if bm.deformable() {
			deform(bm, l, stress)
		}
		if snapped || math32.Abs(stress) > bm.Strength {
			fb.breaks = append(fb.breaks, Break{Beam: i, Group: bm.DetacherGroup})
			b.BreakBeam(i)
			continue
		}

		f := u.Mul(stress)
		n1.Forces = n1.Forces.Add(f)
		n2.Forces = n2.Forces.Sub(f)
	}
	return fb.breaks
}

func (fb *ForceBuilder) shock(b *Body, bm *Beam) *Shock {
	if bm.Shock < 0 || bm.Shock >= len(b.Shocks) {
		return nil
	}
	return &b.Shocks[bm.Shock]
}

// deform moves the rest length toward the current length once the yield
// stress of either direction is exceeded. Elongation weakens the beam.
func deform(bm *Beam, l, stress float32) {
	switch {
	case stress > bm.MaxPosStress:
		old := bm.RestLength
		bm.RestLength = math32.Max(MinBeamLength, old+bm.PlasticCoef*(l-old))
		if bm.RestLength > old {
			bm.Strength -= (bm.RestLength - old) * bm.K
			bm.MaxNegStress *= old / bm.RestLength
		}
	case stress < bm.MaxNegStress:
		old := bm.RestLength
		bm.RestLength = math32.Max(MinBeamLength, old+bm.PlasticCoef*(l-old))
		if bm.RestLength < old {
			bm.MaxPosStress *= old / bm.RestLength
		}
	}
}

// Fluids applies air drag, buoyancy and water drag, and advances each
// node's wet state.
func (fb *ForceBuilder) Fluids(b *Body, dt float32) {
	env := &fb.Env
	for i := range b.Nodes {
		n := &b.Nodes[i]
		speed := n.Velocity.Len()
		if env.AirDrag > 0 && n.SurfaceCoef > 0 && speed > 0 {
			n.Forces = n.Forces.Sub(n.Velocity.Mul(env.AirDrag * n.SurfaceCoef * speed))
		}
		if env.Water && n.AbsPosition.Y() < env.WaterLevel {
			depth := env.WaterLevel - n.AbsPosition.Y()
			n.Forces[1] += n.Buoyancy * math32.Min(1, depth/0.2)
			if speed > 0 {
				n.Forces = n.Forces.Sub(n.Velocity.Mul(DefaultWaterDrag * speed))
			}
			n.Contact.State = Wet
			n.Contact.SubmergedTime += dt
			n.Contact.DripTime = DrippingTime
			continue
		}
		n.Contact.SubmergedTime = 0
		switch n.Contact.State {
		case Wet:
			n.Contact.State = Dripping
		case Dripping:
			n.Contact.DripTime -= dt
			if n.Contact.DripTime <= 0 {
				n.Contact.State = Dry
			}
		}
	}
}

// Check rejects non-finite accumulators and forces beyond the sentinel.
func (fb *ForceBuilder) Check(b *Body) error {
	limit := fb.Env.ForceSentinel
	if limit <= 0 {
		limit = DefaultForceSentinel
	}
	for i := range b.Nodes {
		f := b.Nodes[i].Forces
		if !finite(f) || f.Len() > limit {
			return fmt.Errorf("node %d force %v: %w", i, f, ErrUnstable)
		}
	}
	return nil
}

func finite(v mgl32.Vec3) bool {
	for _, c := range v {
		if math32.IsNaN(c) || math32.IsInf(c, 0) {
			return false
		}
	}
	return true
}
