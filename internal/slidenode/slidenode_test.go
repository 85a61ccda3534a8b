package slidenode

import (
	"testing"

	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// railBody builds four pinned rail nodes along +X joined by three beams,
// plus one free node at slide.
func railBody(slide mgl32.Vec3, mass float32) *softbody.Body {
	b := &softbody.Body{}
	for i := 0; i < 4; i++ {
		n := softbody.NewNode(i, mgl32.Vec3{float32(i), 0, 0}, 10)
		n.Pin()
		b.Nodes = append(b.Nodes, n)
	}
	b.Nodes = append(b.Nodes, softbody.NewNode(4, slide, mass))
	for i := 0; i < 3; i++ {
		b.Beams = append(b.Beams, softbody.NewBeam(b.Nodes, i, i+1, 1e6, 0))
	}
	b.Seal()
	return b
}

func step(b *softbody.Body, s *System, dt float32) []int {
	fb := softbody.NewForceBuilder(softbody.Environment{ForceSentinel: softbody.DefaultForceSentinel})
	fb.Begin(b)
	broken := s.Update(b, dt)
	_ = b.Integrate(dt)
	b.PostTick()
	return broken
}

func TestSlideNodeSettlesOnRail(t *testing.T) {
	const dt = 0.002
	b := railBody(mgl32.Vec3{1.5, 0.05, 0}, 0.2)

	sn := New(4, 0)
	sn.Spring = 5000
	sn.Damping = 100
	sn.AttachThreshold = 0
	s := &System{Rails: []Rail{{ID: 0, Beams: []int{0, 1, 2}}}, Slides: []SlideNode{sn}}
	s.Attach(b)

	require.Equal(t, 1, s.Slides[0].Segment)
	assert.InDelta(t, 0.5, s.Slides[0].Ratio, 1e-6)

	prev := float32(-1)
	for i := 0; i < 200; i++ {
		assert.Empty(t, step(b, s, dt))
		f := s.Slides[0].Force.Len()
		if prev >= 0 {
			assert.LessOrEqual(t, f, prev, "tick %d", i)
		}
		prev = f
	}

	assert.Equal(t, 1, s.Slides[0].Segment)
	assert.InDelta(t, 0.5, s.Slides[0].Ratio, 1e-3)
	assert.LessOrEqual(t, s.Distance(b, 0), s.Slides[0].Threshold+1e-6)
}

func TestAttachPicksNearestRail(t *testing.T) {
	b := railBody(mgl32.Vec3{2.6, 0.2, 0}, 1)
	s := &System{
		Rails:  []Rail{{Beams: []int{0}}, {Beams: []int{2}}},
		Slides: []SlideNode{New(4, 2, 0, 1)},
	}
	s.Attach(b)
	assert.Equal(t, 1, s.Slides[0].Rail)
	assert.Equal(t, 0, s.Slides[0].Segment)
	assert.InDelta(t, 0.6, s.Slides[0].Ratio, 1e-4)
}

func TestSlideNodeWalksToNeighbour(t *testing.T) {
	b := railBody(mgl32.Vec3{0.9, 0.01, 0}, 1)
	s := &System{Rails: []Rail{{Beams: []int{0, 1, 2}}}, Slides: []SlideNode{New(4, 0)}}
	s.Attach(b)
	require.Equal(t, 0, s.Slides[0].Segment)

	b.Nodes[4].AbsPosition = mgl32.Vec3{2.5, 0.01, 0}
	b.Nodes[4].RelPosition = b.Nodes[4].AbsPosition.Sub(b.Origin)
	s.Update(b, 0.001)
	assert.Equal(t, 1, s.Slides[0].Segment, "one hop per tick")
	s.Update(b, 0.001)
	assert.Equal(t, 2, s.Slides[0].Segment)
	assert.InDelta(t, 0.5, s.Slides[0].Ratio, 1e-4)
}

func TestSlideNodeLoopedRailWraps(t *testing.T) {
	b := railBody(mgl32.Vec3{0.1, 0.01, 0}, 1)
	s := &System{Rails: []Rail{{Beams: []int{0, 1, 2}, Looped: true}}, Slides: []SlideNode{New(4, 0)}}
	s.Attach(b)
	ri, si, ok := s.neighbour(b, &s.Slides[0], -1)
	require.True(t, ok)
	assert.Equal(t, 0, ri)
	assert.Equal(t, 2, si)
}

func TestSlideNodeCrossesToSharedRail(t *testing.T) {
	b := railBody(mgl32.Vec3{0.5, 0.01, 0}, 1)
	s := &System{
		Rails:  []Rail{{Beams: []int{0, 1}}, {Beams: []int{2}}},
		Slides: []SlideNode{New(4, 0, 1)},
	}
	s.Attach(b)
	s.Slides[0].Segment = 1
	ri, si, ok := s.neighbour(b, &s.Slides[0], 1)
	require.True(t, ok)
	assert.Equal(t, 1, ri)
	assert.Equal(t, 0, si)
}

func TestSlideNodeBreaksAndStaysBroken(t *testing.T) {
	b := railBody(mgl32.Vec3{1.5, 1, 0}, 1)
	sn := New(4, 0)
	sn.AttachThreshold = 0
	sn.Spring = 1000
	sn.BreakForce = 10
	s := &System{Rails: []Rail{{Beams: []int{0, 1, 2}}}, Slides: []SlideNode{sn}}
	s.Attach(b)

	assert.Equal(t, []int{0}, step(b, s, 0.01))
	assert.True(t, s.Slides[0].Broken)
	assert.Zero(t, b.Nodes[4].Velocity.Len(), "no force in the breaking tick")

	for i := 0; i < 10; i++ {
		assert.Empty(t, step(b, s, 0.01))
	}
	assert.Equal(t, float32(1), b.Nodes[4].AbsPosition.Y())
}

func TestSlideThresholdDecaysToTolerance(t *testing.T) {
	b := railBody(mgl32.Vec3{1.5, 0, 0}, 1)
	sn := New(4, 0)
	sn.AttachThreshold = 0.5
	sn.AttachRate = 1
	sn.Tolerance = 0.1
	s := &System{Rails: []Rail{{Beams: []int{0, 1, 2}}}, Slides: []SlideNode{sn}}
	s.Attach(b)
	assert.Equal(t, float32(0.5), s.Slides[0].Threshold)

	for i := 0; i < 100; i++ {
		s.Update(b, 0.01)
	}
	assert.Equal(t, float32(0.1), s.Slides[0].Threshold)
}
