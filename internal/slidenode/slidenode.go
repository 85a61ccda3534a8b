// Package slidenode constrains nodes to rails, polylines made of beams.
package slidenode

import (
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Defaults for slide-nodes without explicit settings.
const (
	DefaultSpring          = 9e6
	DefaultAttachRate      = 1
	DefaultAttachThreshold = 0.1
)

// Rail is an ordered polyline of beams of the owning body.
type Rail struct {
	ID     int
	Beams  []int
	Looped bool
}

// SlideNode ties a node to the nearest point of one of its candidate rails.
type SlideNode struct {
	Node int
	// Rails are indices into System.Rails this node may slide on.
	Rails []int

	Rail    int
	Segment int
	Ratio   float32

	// Threshold is the current dead-zone radius. It starts at
	// AttachThreshold and decays at AttachRate per second down to Tolerance.
	Tolerance       float32
	AttachThreshold float32
	Threshold       float32
	AttachRate      float32

	Spring     float32
	Damping    float32
	BreakForce float32

	Broken bool
	Force  mgl32.Vec3
}

// New returns a slide-node with default coupling parameters.
func New(node int, rails ...int) SlideNode {
	return SlideNode{
		Node:            node,
		Rails:           rails,
		AttachThreshold: DefaultAttachThreshold,
		Threshold:       DefaultAttachThreshold,
		AttachRate:      DefaultAttachRate,
		Spring:          DefaultSpring,
		BreakForce:      softbody.Inf(),
	}
}

// System owns the rails and slide-nodes of one body.
type System struct {
	Rails  []Rail
	Slides []SlideNode
}

// Empty reports whether there is nothing to update.
func (s *System) Empty() bool { return len(s.Slides) == 0 }

type projection struct {
	t      float32
	dist   float32
	target mgl32.Vec3
}

func project(b *softbody.Body, beam int, p mgl32.Vec3) projection {
	bm := &b.Beams[beam]
	a := b.Nodes[bm.P1].AbsPosition
	ab := b.Nodes[bm.P2].AbsPosition.Sub(a)
	l2 := ab.Dot(ab)
	var t float32
	if l2 > 0 {
		t = p.Sub(a).Dot(ab) / l2
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	target := a.Add(ab.Mul(t))
	return projection{t: t, dist: p.Sub(target).Len(), target: target}
}

// Attach selects the nearest rail segment for every slide-node by scanning
// all candidate rails, and resets thresholds.
func (s *System) Attach(b *softbody.Body) {
	for i := range s.Slides {
		sn := &s.Slides[i]
		p := b.Nodes[sn.Node].AbsPosition
		best := float32(math32.MaxFloat32)
		for _, ri := range sn.Rails {
			if ri < 0 || ri >= len(s.Rails) {
				continue
			}
			for si, beam := range s.Rails[ri].Beams {
				pr := project(b, beam, p)
				if pr.dist < best {
					best = pr.dist
					sn.Rail, sn.Segment, sn.Ratio = ri, si, pr.t
				}
			}
		}
		sn.Threshold = math32.Max(sn.Tolerance, sn.AttachThreshold)
		sn.Broken = false
		sn.Force = mgl32.Vec3{}
	}
}

// neighbour returns the segment one step in dir (+1 or -1) from (rail, seg),
// wrapping on looped rails and crossing to another candidate rail that shares
// an end node.
func (s *System) neighbour(b *softbody.Body, sn *SlideNode, dir int) (int, int, bool) {
	r := &s.Rails[sn.Rail]
	next := sn.Segment + dir
	if next >= 0 && next < len(r.Beams) {
		return sn.Rail, next, true
	}
	if r.Looped && len(r.Beams) > 1 {
		return sn.Rail, (next + len(r.Beams)) % len(r.Beams), true
	}
	cur := &b.Beams[r.Beams[sn.Segment]]
	for _, ri := range sn.Rails {
		if ri == sn.Rail || ri < 0 || ri >= len(s.Rails) || len(s.Rails[ri].Beams) == 0 {
			continue
		}
		other := s.Rails[ri].Beams
		if sharesNode(cur, &b.Beams[other[0]]) {
			return ri, 0, true
		}
		if sharesNode(cur, &b.Beams[other[len(other)-1]]) {
			return ri, len(other) - 1, true
		}
	}
	return 0, 0, false
}

func sharesNode(a, b *softbody.Beam) bool {
	return a.P1 == b.P1 || a.P1 == b.P2 || a.P2 == b.P1 || a.P2 == b.P2
}

// Update applies the slide constraint for one tick and returns the indices
// of slide-nodes that broke during it.
func (s *System) Update(b *softbody.Body, dt float32) []int {
	var broken []int
	for i := range s.Slides {
		sn := &s.Slides[i]
		if sn.Broken || sn.Rail < 0 || sn.Rail >= len(s.Rails) || len(s.Rails[sn.Rail].Beams) == 0 {
			continue
		}
		node := &b.Nodes[sn.Node]
		p := node.AbsPosition

		cur := project(b, s.Rails[sn.Rail].Beams[sn.Segment], p)
		bestRail, bestSeg, best := sn.Rail, sn.Segment, cur
		for _, dir := range [2]int{-1, 1} {
			ri, si, ok := s.neighbour(b, sn, dir)
			if !ok {
				continue
			}
			if pr := project(b, s.Rails[ri].Beams[si], p); pr.dist < best.dist {
				bestRail, bestSeg, best = ri, si, pr
			}
		}
		sn.Rail, sn.Segment, sn.Ratio = bestRail, bestSeg, best.t

		bm := &b.Beams[s.Rails[sn.Rail].Beams[sn.Segment]]
		n1, n2 := &b.Nodes[bm.P1], &b.Nodes[bm.P2]
		delta := p.Sub(best.target)
		dist := delta.Len()

		var f mgl32.Vec3
		if dist > sn.Threshold {
			vTarget := n1.Velocity.Mul(1 - sn.Ratio).Add(n2.Velocity.Mul(sn.Ratio))
			spring := delta.Sub(delta.Mul(sn.Threshold / dist)).Mul(-sn.Spring)
			damp := node.Velocity.Sub(vTarget).Mul(-sn.Damping)
			f = spring.Add(damp)
		}

		sn.Threshold = math32.Max(sn.Tolerance, sn.Threshold-sn.AttachRate*dt)

		if f.Len() > sn.BreakForce {
			sn.Broken = true
			sn.Force = mgl32.Vec3{}
			broken = append(broken, i)
			continue
		}
		sn.Force = f
		node.AddForce(f)
		n1.AddForce(f.Mul(-(1 - sn.Ratio)))
		n2.AddForce(f.Mul(-sn.Ratio))
	}
	return broken
}

// Distance returns the slide-node's current distance to its active beam.
func (s *System) Distance(b *softbody.Body, i int) float32 {
	sn := &s.Slides[i]
	return project(b, s.Rails[sn.Rail].Beams[sn.Segment], b.Nodes[sn.Node].AbsPosition).dist
}
