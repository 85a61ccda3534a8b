package softbody

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// Body owns the dense node and beam arrays of one actor together with the
// auxiliary objects that steer beam rest lengths.
type Body struct {
	Nodes    []Node
	Beams    []Beam
	Shocks   []Shock
	Commands []Command

	Origin mgl32.Vec3

	// HydroState is the slewed steering value driving hydro beams.
	HydroState float32

	BoundsMin   mgl32.Vec3
	BoundsMax   mgl32.Vec3
	AvgPosition mgl32.Vec3
	SleepTicks  int

	ticks  uint64
	groups map[int][]int
}

// Break records one beam failure in the current tick.
type Break struct {
	Beam  int
	Group int
}

// Seal captures the spawn state as the reset baseline. It must be called
// once after construction and before the first tick.
func (b *Body) Seal() {
	if len(b.Nodes) > 0 {
		b.Origin = b.Nodes[0].AbsPosition
	}
	var p0 mgl32.Vec3
	if len(b.Nodes) > 0 {
		p0 = b.Nodes[0].AbsPosition
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		n.Index = i
		n.RelPosition = n.AbsPosition.Sub(b.Origin)
		n.SmoothedPosition = n.AbsPosition
		n.InitialPosition = n.AbsPosition
		n.InitialDistanceToNode0 = n.AbsPosition.Sub(p0).Len()
	}
	b.groups = make(map[int][]int)
	for i := range b.Beams {
		b.Beams[i].Seal()
		if g := b.Beams[i].DetacherGroup; g > 0 {
			b.groups[g] = append(b.groups[g], i)
		}
	}
	b.updateBounds()
}

// Reset restores initial positions, zeroes velocities and repairs beams.
// Applying it twice is the same as applying it once.
func (b *Body) Reset() {
	b.Origin = mgl32.Vec3{}
	if len(b.Nodes) > 0 {
		b.Origin = b.Nodes[0].InitialPosition
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		n.AbsPosition = n.InitialPosition
		n.RelPosition = n.InitialPosition.Sub(b.Origin)
		n.SmoothedPosition = n.InitialPosition
		n.Velocity = mgl32.Vec3{}
		n.Forces = mgl32.Vec3{}
		n.Contact = Contact{}
	}
	for i := range b.Beams {
		b.Beams[i].Repair()
		b.Beams[i].Length = b.Beams[i].RestLength
	}
	for i := range b.Shocks {
		b.Shocks[i].reset()
	}
	for i := range b.Commands {
		b.Commands[i].value = 0
	}
	b.HydroState = 0
	b.SleepTicks = 0
	b.ticks = 0
	b.updateBounds()
}

// Transform moves the initial shape: every initial position p becomes
// rot*(p-pivot)+pos. The body is reset to the new baseline.
func (b *Body) Transform(pivot, pos mgl32.Vec3, rot mgl32.Quat) {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		n.InitialPosition = rot.Rotate(n.InitialPosition.Sub(pivot)).Add(pos)
	}
	b.Reset()
}

// DetacherGroups returns the sorted group ids present on the body.
func (b *Body) DetacherGroups() []int {
	ids := make([]int, 0, len(b.groups))
	for g := range b.groups {
		ids = append(ids, g)
	}
	sort.Ints(ids)
	return ids
}

// BreakBeam breaks a beam and every beam in its detacher group.
func (b *Body) BreakBeam(i int) {
	g := b.Beams[i].DetacherGroup
	b.Beams[i].Break()
	if g <= 0 {
		return
	}
	for _, j := range b.groups[g] {
		b.Beams[j].Break()
	}
}

// BrokenBeams counts broken beams.
func (b *Body) BrokenBeams() int {
	n := 0
	for i := range b.Beams {
		if b.Beams[i].Broken {
			n++
		}
	}
	return n
}

// Momentum returns the total linear momentum of dynamic nodes.
func (b *Body) Momentum() mgl32.Vec3 {
	var p mgl32.Vec3
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Pinned() {
			continue
		}
		p = p.Add(n.Velocity.Mul(n.Mass))
	}
	return p
}

// TotalMass sums the mass of all nodes.
func (b *Body) TotalMass() float32 {
	var m float32
	for i := range b.Nodes {
		m += b.Nodes[i].Mass
	}
	return m
}

func (b *Body) updateBounds() {
	if len(b.Nodes) == 0 {
		return
	}
	lo := b.Nodes[0].AbsPosition
	hi := lo
	var sum mgl32.Vec3
	for i := range b.Nodes {
		p := b.Nodes[i].AbsPosition
		for k := 0; k < 3; k++ {
			if p[k] < lo[k] {
				lo[k] = p[k]
			}
			if p[k] > hi[k] {
				hi[k] = p[k]
			}
		}
		sum = sum.Add(p)
	}
	b.BoundsMin = lo
	b.BoundsMax = hi
	b.AvgPosition = sum.Mul(1 / float32(len(b.Nodes)))
}
