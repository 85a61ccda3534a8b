package softbody

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBody(mass float32, positions ...mgl32.Vec3) *Body {
	b := &Body{}
	for i, p := range positions {
		b.Nodes = append(b.Nodes, NewNode(i, p, mass))
	}
	return b
}

func addBeam(b *Body, p1, p2 int, k, d float32) *Beam {
	b.Beams = append(b.Beams, NewBeam(b.Nodes, p1, p2, k, d))
	return &b.Beams[len(b.Beams)-1]
}

func weightless() Environment {
	return Environment{ForceSentinel: DefaultForceSentinel}
}

func tick(t *testing.T, b *Body, fb *ForceBuilder, dt float32) []Break {
	t.Helper()
	fb.Begin(b)
	breaks := fb.Beams(b)
	fb.Fluids(b, dt)
	require.NoError(t, fb.Check(b))
	require.NoError(t, b.Integrate(dt))
	b.PostTick()
	return breaks
}

func TestFreeFallingNode(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 10, 0})
	b.Seal()
	fb := NewForceBuilder(Environment{Gravity: mgl32.Vec3{0, -10, 0}})

	for i := 0; i < 100; i++ {
		tick(t, b, fb, 0.01)
	}

	n := b.Nodes[0]
	assert.InDelta(t, -10.0, n.Velocity.Y(), 1e-3)
	assert.InDelta(t, 5.0, n.AbsPosition.Y(), 0.05)
	assert.Zero(t, n.AbsPosition.X())
}

func TestBeamAtRestAppliesNoForce(t *testing.T) {
	for _, tc := range []struct {
		name    string
		bounded BoundedMode
	}{
		{"normal", BoundedNone},
		{"support", BoundedSupport},
		{"rope", BoundedRope},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
			bm := addBeam(b, 0, 1, 1000, 100)
			bm.Bounded = tc.bounded
			b.Seal()
			fb := NewForceBuilder(weightless())
			fb.Begin(b)
			fb.Beams(b)
			assert.Equal(t, mgl32.Vec3{}, b.Nodes[0].Forces)
			assert.Equal(t, mgl32.Vec3{}, b.Nodes[1].Forces)
			assert.Zero(t, b.Beams[0].Stress)
		})
	}
}

func TestTensileBeamSettlesToRestLength(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	addBeam(b, 0, 1, 1000, 100)
	b.Nodes[0].Pin()
	b.Seal()
	b.Nodes[1].RelPosition = mgl32.Vec3{1.1, 0, 0}
	b.Nodes[1].AbsPosition = b.Origin.Add(b.Nodes[1].RelPosition)

	fb := NewForceBuilder(weightless())
	for i := 0; i < 1000; i++ {
		tick(t, b, fb, 0.001)
	}

	assert.InDelta(t, 1.0, b.Nodes[1].AbsPosition.X(), 1e-4)
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[0].AbsPosition)
}

func TestCommandedExtension(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 100)
	bm.Command = &CommandAttrs{RatioShort: 0.5, RatioLong: 2}
	b.Commands = []Command{{Key: 0, Speed: 1, Beams: []CommandBeam{{Beam: 0, Extend: true}}}}
	b.Nodes[0].Pin()
	b.Seal()

	fb := NewForceBuilder(weightless())
	in := CommandInput{Values: []float32{1}}
	for i := 0; i < 500; i++ {
		b.UpdateCommands(in, 0.01)
		tick(t, b, fb, 0.01)
	}

	assert.InDelta(t, 2.0, b.Beams[0].RestLength, 1e-3)
	assert.InDelta(t, 0.0, b.Beams[0].Stress, 1e-3)
	assert.InDelta(t, 2.0, b.Nodes[1].AbsPosition.X(), 1e-3)
}

func TestCommandWithZeroInputKeepsLength(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1.5, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 100)
	bm.Command = &CommandAttrs{RatioShort: 0.5, RatioLong: 2}
	b.Commands = []Command{
		{Key: 0, Speed: 1, Beams: []CommandBeam{{Beam: 0, Extend: true}}},
		{Key: 1, Speed: 1, Beams: []CommandBeam{{Beam: 0, Extend: false}}},
	}
	b.Seal()

	for i := 0; i < 50; i++ {
		b.UpdateCommands(CommandInput{Values: []float32{0, 0}}, 0.01)
		assert.InDelta(t, 1.5, b.Beams[0].RestLength, 1e-5)
	}
}

func TestCommandNeedsRunningEngine(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 100)
	bm.Command = &CommandAttrs{RatioShort: 0.5, RatioLong: 2}
	b.Commands = []Command{{Key: 0, Speed: 1, NeedsEngine: true, Beams: []CommandBeam{{Beam: 0}}}}
	b.Seal()

	off := CommandInput{Values: []float32{1}, HasEngine: true}
	b.UpdateCommands(off, 0.1)
	assert.Equal(t, float32(1), b.Beams[0].RestLength)

	on := off
	on.Running = true
	on.RunningFactor = 2
	b.UpdateCommands(on, 0.1)
	assert.InDelta(t, 0.9, b.Beams[0].RestLength, 1e-6)
}

func TestCommandInertiaLimitsInput(t *testing.T) {
	c := Command{StartRate: 2, StopRate: 4}
	assert.InDelta(t, 0.2, c.slew(1, 0.1), 1e-6)
	assert.InDelta(t, 0.4, c.slew(1, 0.1), 1e-6)
	assert.InDelta(t, 0.0, c.slew(0, 0.1), 1e-6)
}

func TestBrokenBeamContributesZero(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	bm := addBeam(b, 0, 1, 1000, 10)
	bm.Strength = 50
	addBeam(b, 0, 2, 1000, 10).DetacherGroup = 3
	b.Beams[0].DetacherGroup = 3
	b.Seal()
	b.Nodes[1].RelPosition = mgl32.Vec3{1.2, 0, 0}
	b.Nodes[1].AbsPosition = b.Origin.Add(b.Nodes[1].RelPosition)

	fb := NewForceBuilder(weightless())
	breaks := tick(t, b, fb, 0.001)
	require.Len(t, breaks, 1)
	assert.Equal(t, Break{Beam: 0, Group: 3}, breaks[0])
	assert.True(t, b.Beams[0].Broken)
	assert.True(t, b.Beams[1].Broken, "detacher group breaks together")

	for i := 0; i < 10; i++ {
		fb.Begin(b)
		assert.Empty(t, fb.Beams(b))
		for _, n := range b.Nodes {
			assert.Equal(t, mgl32.Vec3{}, n.Forces)
		}
		require.NoError(t, b.Integrate(0.001))
	}

	b.Reset()
	assert.False(t, b.Beams[0].Broken)
	assert.False(t, b.Beams[1].Broken)
}

func TestPlasticDeformationShiftsRestLength(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 0)
	bm.MaxPosStress = 50
	bm.Strength = 1e6
	b.Seal()
	b.Nodes[1].RelPosition = mgl32.Vec3{1.1, 0, 0}
	b.Nodes[1].AbsPosition = b.Origin.Add(b.Nodes[1].RelPosition)

	fb := NewForceBuilder(weightless())
	fb.Begin(b)
	fb.Beams(b)

	assert.InDelta(t, 1.05, b.Beams[0].RestLength, 1e-5)
	assert.Equal(t, float32(1), b.Beams[0].RefLength)
	assert.Less(t, b.Beams[0].Strength, float32(1e6))
}

func TestSupportBeamBreaksPastLimit(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 0)
	bm.Bounded = BoundedSupport
	bm.LongBound = 0.5
	b.Seal()

	fb := NewForceBuilder(weightless())
	b.Nodes[1].RelPosition = mgl32.Vec3{1.2, 0, 0}
	fb.Begin(b)
	assert.Empty(t, fb.Beams(b))
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[1].Forces, "support beams carry no tension")

	b.Nodes[1].RelPosition = mgl32.Vec3{1.6, 0, 0}
	fb.Begin(b)
	assert.Len(t, fb.Beams(b), 1)
}

func TestRopeCarriesTensionOnly(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	addBeam(b, 0, 1, 1000, 0).Bounded = BoundedRope
	b.Seal()
	fb := NewForceBuilder(weightless())

	b.Nodes[1].RelPosition = mgl32.Vec3{0.8, 0, 0}
	fb.Begin(b)
	fb.Beams(b)
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[1].Forces)

	b.Nodes[1].RelPosition = mgl32.Vec3{1.1, 0, 0}
	fb.Begin(b)
	fb.Beams(b)
	assert.Less(t, b.Nodes[1].Forces.X(), float32(0))
}

func TestShock2Progressive(t *testing.T) {
	bm := Beam{RestLength: 1, LongBound: 0.5, ShortBound: 0.5}
	s := NewShock(0)
	s.SpringOut, s.ProgSpringOut = 100, 1
	s.SpringIn, s.ProgSpringIn = 200, 0

	k, _ := shock2(&bm, &s, 0)
	assert.Equal(t, float32(100), k)
	k, _ = shock2(&bm, &s, 0.5)
	assert.Equal(t, float32(200), k)
	k, _ = shock2(&bm, &s, -0.25)
	assert.Equal(t, float32(200), k)
	k, _ = shock2(&bm, &s, 0.6)
	assert.Equal(t, s.BoundSpring, k)
	assert.True(t, s.Lockup)
}

func TestMomentumConserved(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0.5, 0.8, 0})
	addBeam(b, 0, 1, 1e5, 50)
	addBeam(b, 1, 2, 1e5, 50)
	addBeam(b, 2, 0, 1e5, 50)
	b.Seal()
	b.Nodes[0].Velocity = mgl32.Vec3{1, 0, 0}
	b.Nodes[1].Velocity = mgl32.Vec3{0, 2, 0}
	b.Nodes[2].Velocity = mgl32.Vec3{-0.5, 0, 1}
	before := b.Momentum()

	fb := NewForceBuilder(weightless())
	for i := 0; i < 10000; i++ {
		tick(t, b, fb, 0.001)
	}

	drift := b.Momentum().Sub(before).Len() / b.TotalMass()
	assert.LessOrEqual(t, drift, float32(1e-3))
}

func TestResetIsIdempotent(t *testing.T) {
	build := func() *Body {
		b := newBody(1, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 0})
		addBeam(b, 0, 1, 1000, 10)
		b.Seal()
		fb := NewForceBuilder(Environment{Gravity: mgl32.Vec3{0, -9.81, 0}})
		for i := 0; i < 20; i++ {
			tick(t, b, fb, 0.002)
		}
		return b
	}
	once, twice := build(), build()
	once.Reset()
	twice.Reset()
	twice.Reset()
	assert.Equal(t, once.Nodes, twice.Nodes)
	assert.Equal(t, once.Beams, twice.Beams)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, once.Nodes[0].AbsPosition)
}

func TestCheckReportsInstability(t *testing.T) {
	b := newBody(1, mgl32.Vec3{})
	b.Seal()
	b.Nodes[0].Forces = mgl32.Vec3{math32.Inf(1), 0, 0}
	fb := NewForceBuilder(weightless())
	assert.ErrorIs(t, fb.Check(b), ErrUnstable)
}

func TestIntegrateLeavesBodyOnInstability(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	b.Seal()
	b.Nodes[0].Forces = mgl32.Vec3{0, 10, 0}
	b.Nodes[1].Forces = mgl32.Vec3{math32.Inf(1), 0, 0}
	before := append([]Node(nil), b.Nodes...)

	assert.ErrorIs(t, b.Integrate(0.01), ErrUnstable)
	assert.Equal(t, before, b.Nodes)
}

func TestHydroFollowsSteering(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 0)
	bm.Type = BeamHydro
	bm.Hydro = &HydroAttrs{Ratio: 0.2, Length: 1}
	b.Seal()

	for i := 0; i < 100; i++ {
		b.UpdateHydros(CommandInput{Steer: 1}, 0.01)
	}
	assert.InDelta(t, 1.2, b.Beams[0].RestLength, 1e-5)
}

func TestTiesTightenUntilShort(t *testing.T) {
	b := newBody(1, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
	bm := addBeam(b, 0, 1, 1000, 0)
	bm.Tie = &TieAttrs{Speed: 1, Short: 0.5, MaxStress: 1e6}
	bm.Disabled = true
	b.Seal()

	b.ToggleTies()
	require.True(t, b.Beams[0].Active())
	for i := 0; i < 100; i++ {
		b.UpdateTies(0.01)
	}
	assert.InDelta(t, 0.5, b.Beams[0].RestLength, 1e-5)
	assert.False(t, b.Beams[0].Tie.Tying)

	b.ToggleTies()
	assert.False(t, b.Beams[0].Active())
	assert.Equal(t, float32(1), b.Beams[0].RestLength)
}
