package contact

import (
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Tri is a contactable triangle given by node indices of its body.
type Tri struct {
	A, B, C int
}

func (t Tri) has(i int) bool { return t.A == i || t.B == i || t.C == i }

// NodeContact configures contacter-node versus triangle contact.
type NodeContact struct {
	Range    float32
	Spring   float32
	Damping  float32
	Friction float32
	// RecomputeTicks is the minimum number of ticks between candidate rebuilds.
	RecomputeTicks int
}

// DefaultNodeContact returns stock inter-node contact parameters.
func DefaultNodeContact() NodeContact {
	return NodeContact{Range: 0.1, Spring: 1e5, Damping: 1e3, Friction: 0.5, RecomputeTicks: 10}
}

// candidateMargin pads triangle bounds when collecting candidates so that a
// node moving between rebuilds is still covered.
const candidateMargin = 0.3

// SelfCollider resolves contact between a body's contacter nodes and its own
// triangles, caching candidate triangles per node.
type SelfCollider struct {
	cfg        NodeContact
	tris       []Tri
	candidates map[int][]int32
	age        int
}

// NewSelfCollider returns a collider over tris.
func NewSelfCollider(cfg NodeContact, tris []Tri) *SelfCollider {
	return &SelfCollider{cfg: cfg, tris: tris, candidates: make(map[int][]int32)}
}

// Triangles returns the collider's triangle list.
func (c *SelfCollider) Triangles() []Tri { return c.tris }

// Invalidate forces a candidate rebuild on the next Apply.
func (c *SelfCollider) Invalidate() { c.age = 0 }

func (c *SelfCollider) rebuild(b *softbody.Body) {
	for k := range c.candidates {
		delete(c.candidates, k)
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if !n.Contacter {
			continue
		}
		for ti, t := range c.tris {
			if t.has(i) {
				continue
			}
			lo, hi := triNodeBounds(b, t)
			if inBounds(n.AbsPosition, lo, hi, candidateMargin) {
				c.candidates[i] = append(c.candidates[i], int32(ti))
			}
		}
	}
}

// Apply adds self-contact forces and returns the number of contacts.
func (c *SelfCollider) Apply(b *softbody.Body) int {
	if len(c.tris) == 0 {
		return 0
	}
	if c.age <= 0 {
		c.rebuild(b)
		c.age = c.cfg.RecomputeTicks
	}
	c.age--
	contacts := 0
	for i := range b.Nodes {
		list := c.candidates[i]
		if len(list) == 0 {
			continue
		}
		n := &b.Nodes[i]
		for _, ti := range list {
			t := c.tris[ti]
			f, w, ok := nodeTriangle(n, &b.Nodes[t.A], &b.Nodes[t.B], &b.Nodes[t.C], c.cfg)
			if !ok {
				continue
			}
			contacts++
			n.AddForce(f)
			b.Nodes[t.A].AddForce(f.Mul(-w[0]))
			b.Nodes[t.B].AddForce(f.Mul(-w[1]))
			b.Nodes[t.C].AddForce(f.Mul(-w[2]))
		}
	}
	return contacts
}

// Overlap reports whether two bodies' bounds overlap within margin.
func Overlap(a, b *softbody.Body, margin float32) bool {
	for k := 0; k < 3; k++ {
		if a.BoundsMax[k]+margin < b.BoundsMin[k] || b.BoundsMax[k]+margin < a.BoundsMin[k] {
			return false
		}
	}
	return true
}

// Pair resolves contacter nodes of a against triangles of b after
// integration, as velocity impulses over dt. It returns the contact count.
func Pair(a, b *softbody.Body, trisB []Tri, cfg NodeContact, dt float32) int {
	contacts := 0
	for i := range a.Nodes {
		n := &a.Nodes[i]
		if !n.Contacter || !inBounds(n.AbsPosition, b.BoundsMin, b.BoundsMax, cfg.Range) {
			continue
		}
		for _, t := range trisB {
			na, nb, nc := &b.Nodes[t.A], &b.Nodes[t.B], &b.Nodes[t.C]
			lo, hi := triNodeBounds(b, t)
			if !inBounds(n.AbsPosition, lo, hi, cfg.Range) {
				continue
			}
			f, w, ok := nodeTriangle(n, na, nb, nc, cfg)
			if !ok {
				continue
			}
			contacts++
			impulse(n, f, dt)
			impulse(na, f.Mul(-w[0]), dt)
			impulse(nb, f.Mul(-w[1]), dt)
			impulse(nc, f.Mul(-w[2]), dt)
		}
	}
	return contacts
}

func impulse(n *softbody.Node, f mgl32.Vec3, dt float32) {
	if n.InvMass == 0 {
		return
	}
	dv := f.Mul(n.InvMass * dt)
	n.Velocity = n.Velocity.Add(dv)
	n.RelPosition = n.RelPosition.Add(dv.Mul(dt))
	n.AbsPosition = n.AbsPosition.Add(dv.Mul(dt))
}

// nodeTriangle computes the penalty force on node n from triangle (a,b,c)
// and the barycentric weights for distributing the reaction.
func nodeTriangle(n, a, b, c *softbody.Node, cfg NodeContact) (mgl32.Vec3, [3]float32, bool) {
	var w [3]float32
	pa, pb, pc := a.AbsPosition, b.AbsPosition, c.AbsPosition
	normal := pb.Sub(pa).Cross(pc.Sub(pa))
	l := normal.Len()
	if l < 1e-9 {
		return mgl32.Vec3{}, w, false
	}
	normal = normal.Mul(1 / l)
	s := n.AbsPosition.Sub(pa).Dot(normal)
	if math32.Abs(s) >= cfg.Range {
		return mgl32.Vec3{}, w, false
	}
	q := n.AbsPosition.Sub(normal.Mul(s))
	if !insideTriangle(q, pa, pb, pc, normal) {
		return mgl32.Vec3{}, w, false
	}
	w[0], w[1], w[2] = barycentric(q, pa, pb, pc)
	dir := normal
	if s < 0 {
		dir = normal.Mul(-1)
	}
	depth := cfg.Range - math32.Abs(s)
	vt := a.Velocity.Mul(w[0]).Add(b.Velocity.Mul(w[1])).Add(c.Velocity.Mul(w[2]))
	vrel := n.Velocity.Sub(vt)
	vn := vrel.Dot(dir)
	fn := cfg.Spring*depth - cfg.Damping*vn
	if fn <= 0 {
		return mgl32.Vec3{}, w, false
	}
	f := dir.Mul(fn)
	tang := vrel.Sub(dir.Mul(vn))
	if sl := tang.Len(); sl > 1e-6 && cfg.Friction > 0 {
		f = f.Sub(tang.Mul(cfg.Friction * fn / sl))
	}
	return f, w, true
}

func triNodeBounds(b *softbody.Body, t Tri) (lo, hi mgl32.Vec3) {
	return triBounds(Triangle{A: b.Nodes[t.A].AbsPosition, B: b.Nodes[t.B].AbsPosition, C: b.Nodes[t.C].AbsPosition})
}

func inBounds(p, lo, hi mgl32.Vec3, margin float32) bool {
	for k := 0; k < 3; k++ {
		if p[k] < lo[k]-margin || p[k] > hi[k]+margin {
			return false
		}
	}
	return true
}
