package affector

import (
	"testing"

	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes() []softbody.Node {
	return []softbody.Node{
		softbody.NewNode(0, mgl32.Vec3{0, 0, 0}, 1),
		softbody.NewNode(1, mgl32.Vec3{1, 0, 0}, 1),
	}
}

func TestPinPullsNodeTowardAnchor(t *testing.T) {
	n := nodes()
	a := New(1, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0}, Pin: mgl32.Vec3{0, 2, 0}, Spring: 10})
	assert.False(t, a.Apply(n, 0.01))
	assert.Equal(t, mgl32.Vec3{0, 20, 0}, n[0].Forces)
	assert.Zero(t, n[1].Forces.Len())
}

func TestPinDamping(t *testing.T) {
	n := nodes()
	n[0].Velocity = mgl32.Vec3{1, 0, 0}
	a := New(1, core.AffectorRequest{Kind: core.AffectorExternalPin, Nodes: []int{0}, Pin: mgl32.Vec3{}, Spring: 10, Damping: 3})
	a.Apply(n, 0.01)
	assert.Equal(t, mgl32.Vec3{-3, 0, 0}, n[0].Forces)
}

func TestPinRampsIn(t *testing.T) {
	n := nodes()
	a := New(1, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0}, Pin: mgl32.Vec3{0, 1, 0}, Spring: 100, Ramp: 1})
	a.Apply(n, 0.25)
	assert.InDelta(t, 25, n[0].Forces.Y(), 1e-4)
}

func TestPinMinForce(t *testing.T) {
	n := nodes()
	a := New(1, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0}, Pin: mgl32.Vec3{0, 0.01, 0}, Spring: 100, MinForce: 5})
	a.Apply(n, 0.01)
	assert.Zero(t, n[0].Forces.Len())
}

func TestPinSeversPastMaxForce(t *testing.T) {
	n := nodes()
	s := &Set{}
	s.Add(New(7, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0, 1}, Pin: mgl32.Vec3{0, 10, 0}, Spring: 100, MaxForce: 500}))

	severed := s.Apply(n, 0.01)
	assert.Equal(t, []core.AffectorID{7}, severed)
	assert.InDelta(t, 500, n[0].Forces.Len(), 1e-3, "clamped in the severing tick")
	assert.InDelta(t, 500, n[1].Forces.Len(), 1e-3)
	assert.Zero(t, s.Len())

	n[0].Forces = mgl32.Vec3{}
	assert.Empty(t, s.Apply(n, 0.01))
	assert.Zero(t, n[0].Forces.Len())
}

func TestPinReusesForceBuffer(t *testing.T) {
	n := nodes()
	a := New(1, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0, 1}, Pin: mgl32.Vec3{0, 1, 0}, Spring: 10})
	a.Apply(n, 0.01)
	allocs := testing.AllocsPerRun(10, func() { a.Apply(n, 0.01) })
	assert.Zero(t, allocs)
}

func TestScriptedForceExpires(t *testing.T) {
	n := nodes()
	s := &Set{}
	s.Add(New(1, core.AffectorRequest{Kind: core.AffectorScriptedForce, Nodes: []int{0, 1}, Force: mgl32.Vec3{0, 0, 5}, Duration: 0.02}))

	s.Apply(n, 0.01)
	assert.Equal(t, mgl32.Vec3{0, 0, 5}, n[1].Forces)
	require.Equal(t, 1, s.Len())
	s.Apply(n, 0.01)
	assert.Zero(t, s.Len())
}

func TestSetMoveAndRemove(t *testing.T) {
	s := &Set{}
	s.Add(New(1, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{0}}))
	s.Add(New(2, core.AffectorRequest{Kind: core.AffectorMousePin, Nodes: []int{1}}))

	require.True(t, s.Move(2, mgl32.Vec3{1, 2, 3}))
	a, ok := s.Get(2)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, a.Pin)

	assert.True(t, s.Remove(1))
	assert.False(t, s.Remove(1))
	assert.False(t, s.Move(9, mgl32.Vec3{}))
	assert.Equal(t, 1, s.Len())
}
