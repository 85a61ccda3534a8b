package softbody

import "github.com/go-gl/mathgl/mgl32"

// BeamType selects how a beam is drawn and whether its rest length is steered.
// Virtual and invisible beams differ only in rendering and behave identically here.
type BeamType uint8

const (
	BeamNormal BeamType = iota
	BeamHydro
	BeamVirtual
	BeamMarked
	BeamInvisible
	BeamInvisibleHydro
)

// IsHydro reports whether the rest length follows the steering input.
func (t BeamType) IsHydro() bool {
	return t == BeamHydro || t == BeamInvisibleHydro
}

// BoundedMode selects the force law of a beam.
type BoundedMode uint8

const (
	BoundedNone BoundedMode = iota
	BoundedShock1
	BoundedShock2
	BoundedShock3
	BoundedSupport
	BoundedRope
)

// CommandAttrs are carried by beams driven by one or more commands. The
// ratios bound the rest length relative to RefLength.
type CommandAttrs struct {
	RatioShort float32
	RatioLong  float32

	extend   float32
	contract float32
	rate     float32
}

// HydroAttrs are carried by steering hydros.
type HydroAttrs struct {
	Ratio        float32
	Length       float32
	SpeedCoupled bool
}

// TieAttrs are carried by tie beams.
type TieAttrs struct {
	MaxStress float32
	// Speed is the tightening rate in reference lengths per second.
	Speed  float32
	Short  float32
	Active bool
	Tying  bool
}

// Beam is a directed spring-damper between two nodes of the same actor.
type Beam struct {
	P1, P2 int

	Disabled bool
	Broken   bool

	K, D       float32
	RestLength float32
	RefLength  float32
	Length     float32
	Stress     float32

	MaxPosStress float32
	MaxNegStress float32
	Strength     float32
	PlasticCoef  float32

	ShortBound float32
	LongBound  float32

	Type    BeamType
	Bounded BoundedMode

	Command *CommandAttrs
	Hydro   *HydroAttrs
	Tie     *TieAttrs
	// Shock indexes Body.Shocks, or -1.
	Shock int

	DetacherGroup int

	initial beamInitial
}

type beamInitial struct {
	k, d         float32
	restLength   float32
	strength     float32
	maxPosStress float32
	maxNegStress float32
	disabled     bool
}

// NewBeam builds a normal beam between p1 and p2 with rest length equal to
// their current distance.
func NewBeam(nodes []Node, p1, p2 int, k, d float32) Beam {
	l := nodes[p2].RelPosition.Sub(nodes[p1].RelPosition).Len()
	return Beam{
		P1:           p1,
		P2:           p2,
		K:            k,
		D:            d,
		RestLength:   l,
		RefLength:    l,
		Length:       l,
		MaxPosStress: DefaultDeform,
		MaxNegStress: -DefaultDeform,
		Strength:     DefaultStrength,
		PlasticCoef:  DefaultPlasticCoef,
		Shock:        -1,
	}
}

// Seal records the current state as the repair baseline.
func (b *Beam) Seal() {
	b.initial = beamInitial{
		k:            b.K,
		d:            b.D,
		restLength:   b.RestLength,
		strength:     b.Strength,
		maxPosStress: b.MaxPosStress,
		maxNegStress: b.MaxNegStress,
		disabled:     b.Disabled,
	}
}

// Repair restores the sealed baseline and clears breakage.
func (b *Beam) Repair() {
	b.Broken = false
	b.Disabled = b.initial.disabled
	b.K = b.initial.k
	b.D = b.initial.d
	b.RestLength = b.initial.restLength
	b.Strength = b.initial.strength
	b.MaxPosStress = b.initial.maxPosStress
	b.MaxNegStress = b.initial.maxNegStress
	b.Stress = 0
	if b.Tie != nil {
		b.Tie.Active = false
		b.Tie.Tying = false
	}
}

// Active reports whether the beam contributes force this tick.
func (b *Beam) Active() bool { return !b.Broken && !b.Disabled }

// Break marks the beam broken. Broken beams are also disabled.
func (b *Beam) Break() {
	b.Broken = true
	b.Disabled = true
	b.Stress = 0
}

// deformable beams change rest length under plastic load; steered and
// bounded beams keep theirs.
func (b *Beam) deformable() bool {
	return b.Bounded == BoundedNone && b.Command == nil && b.Hydro == nil && b.Tie == nil && !b.Type.IsHydro()
}

// direction returns the unit vector from p1 to p2 and the distance.
func direction(nodes []Node, b *Beam) (mgl32.Vec3, float32) {
	dir := nodes[b.P2].RelPosition.Sub(nodes[b.P1].RelPosition)
	l := dir.Len()
	if l < 1e-6 {
		return mgl32.Vec3{}, l
	}
	return dir.Mul(1 / l), l
}
