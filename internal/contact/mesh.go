package contact

import (
	"encoding/binary"

	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/zeebo/xxh3"
)

// DefaultCellSize is the edge length of a spatial hash cell in metres.
const DefaultCellSize = 4

// maxDepth is how far behind a triangle a node still counts as touching it.
const maxDepth = 0.5

// Triangle is one face of a static collision mesh. Vertices are wound
// counter-clockwise seen from the solid side's outside.
type Triangle struct {
	A, B, C  mgl32.Vec3
	Material string

	normal mgl32.Vec3
}

// Box is an axis-aligned static collision box.
type Box struct {
	Min, Max mgl32.Vec3
	Material string
}

// Hit describes the contact found for a query point.
type Hit struct {
	// Depth is positive when the point is behind the surface.
	Depth    float32
	Normal   mgl32.Vec3
	Material string
}

// StaticGeometry indexes boxes and triangle soups in a spatial hash. It is
// immutable after construction.
type StaticGeometry struct {
	cell  float32
	tris  []Triangle
	boxes []Box
	grid  map[uint64][]int32
	bgrid map[uint64][]int32
}

// NewStaticGeometry builds the spatial hash. Degenerate triangles are dropped.
func NewStaticGeometry(tris []Triangle, boxes []Box, cellSize float32) *StaticGeometry {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	g := &StaticGeometry{
		cell:  cellSize,
		grid:  make(map[uint64][]int32),
		bgrid: make(map[uint64][]int32),
	}
	for _, t := range tris {
		n := t.B.Sub(t.A).Cross(t.C.Sub(t.A))
		if n.Len() < 1e-9 {
			continue
		}
		t.normal = n.Normalize()
		idx := int32(len(g.tris))
		g.tris = append(g.tris, t)
		lo, hi := triBounds(t)
		g.insert(g.grid, lo.Sub(mgl32.Vec3{maxDepth, maxDepth, maxDepth}), hi.Add(mgl32.Vec3{maxDepth, maxDepth, maxDepth}), idx)
	}
	for _, b := range boxes {
		idx := int32(len(g.boxes))
		g.boxes = append(g.boxes, b)
		g.insert(g.bgrid, b.Min, b.Max, idx)
	}
	return g
}

// Empty reports whether there is nothing to collide with.
func (g *StaticGeometry) Empty() bool {
	return g == nil || (len(g.tris) == 0 && len(g.boxes) == 0)
}

func (g *StaticGeometry) cellOf(p mgl32.Vec3) [3]int32 {
	return [3]int32{
		int32(math32.Floor(p.X() / g.cell)),
		int32(math32.Floor(p.Y() / g.cell)),
		int32(math32.Floor(p.Z() / g.cell)),
	}
}

func cellKey(c [3]int32) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(c[0]))
	binary.LittleEndian.PutUint32(buf[4:], uint32(c[1]))
	binary.LittleEndian.PutUint32(buf[8:], uint32(c[2]))
	return xxh3.Hash(buf[:])
}

func (g *StaticGeometry) insert(grid map[uint64][]int32, lo, hi mgl32.Vec3, idx int32) {
	a, b := g.cellOf(lo), g.cellOf(hi)
	for x := a[0]; x <= b[0]; x++ {
		for y := a[1]; y <= b[1]; y++ {
			for z := a[2]; z <= b[2]; z++ {
				k := cellKey([3]int32{x, y, z})
				grid[k] = append(grid[k], idx)
			}
		}
	}
}

// Query returns the contact for point p within skin range of a surface. For
// triangles the nearest penetrated face wins; boxes push out along the axis
// of least penetration.
func (g *StaticGeometry) Query(p mgl32.Vec3, skin float32) (Hit, bool) {
	if g.Empty() {
		return Hit{}, false
	}
	key := cellKey(g.cellOf(p))
	var best Hit
	found := false
	for _, i := range g.bgrid[key] {
		if h, ok := boxHit(&g.boxes[i], p, skin); ok && (!found || h.Depth < best.Depth) {
			best, found = h, true
		}
	}
	for _, i := range g.grid[key] {
		t := &g.tris[i]
		s := p.Sub(t.A).Dot(t.normal)
		if s > skin || s < -maxDepth {
			continue
		}
		q := p.Sub(t.normal.Mul(s))
		if !insideTriangle(q, t.A, t.B, t.C, t.normal) {
			continue
		}
		h := Hit{Depth: -s, Normal: t.normal, Material: t.Material}
		if !found || h.Depth < best.Depth {
			best, found = h, true
		}
	}
	return best, found
}

func boxHit(b *Box, p mgl32.Vec3, skin float32) (Hit, bool) {
	for k := 0; k < 3; k++ {
		if p[k] < b.Min[k]-skin || p[k] > b.Max[k]+skin {
			return Hit{}, false
		}
	}
	best := Hit{Depth: math32.MaxFloat32, Material: b.Material}
	for k := 0; k < 3; k++ {
		if d := b.Max[k] - p[k]; d < best.Depth {
			var n mgl32.Vec3
			n[k] = 1
			best.Depth, best.Normal = d, n
		}
		if d := p[k] - b.Min[k]; d < best.Depth {
			var n mgl32.Vec3
			n[k] = -1
			best.Depth, best.Normal = d, n
		}
	}
	return best, true
}

func triBounds(t Triangle) (lo, hi mgl32.Vec3) {
	lo, hi = t.A, t.A
	for _, v := range [2]mgl32.Vec3{t.B, t.C} {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], v[k])
			hi[k] = math32.Max(hi[k], v[k])
		}
	}
	return lo, hi
}

// insideTriangle tests a point already projected onto the triangle's plane.
func insideTriangle(q, a, b, c, n mgl32.Vec3) bool {
	return b.Sub(a).Cross(q.Sub(a)).Dot(n) >= 0 &&
		c.Sub(b).Cross(q.Sub(b)).Dot(n) >= 0 &&
		a.Sub(c).Cross(q.Sub(c)).Dot(n) >= 0
}

// barycentric returns the weights of q (on the triangle plane) for a, b, c.
func barycentric(q, a, b, c mgl32.Vec3) (float32, float32, float32) {
	v0, v1, v2 := b.Sub(a), c.Sub(a), q.Sub(a)
	d00, d01, d11 := v0.Dot(v0), v0.Dot(v1), v1.Dot(v1)
	d20, d21 := v2.Dot(v0), v2.Dot(v1)
	den := d00*d11 - d01*d01
	if den == 0 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3
	}
	v := (d11*d20 - d01*d21) / den
	w := (d00*d21 - d01*d20) / den
	return 1 - v - w, v, w
}

// Mesh resolves static geometry contact for every node of b.
func Mesh(b *softbody.Body, geom *StaticGeometry, table *FrictionTable, p Params, dt float32) Result {
	var res Result
	if geom.Empty() {
		return res
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.NoGroundContact {
			continue
		}
		hit, ok := geom.Query(n.AbsPosition, p.CollisionRange)
		if !ok {
			continue
		}
		if hit.Depth > p.HardPenetration {
			res.Catastrophic = true
			continue
		}
		if applyContact(n, hit.Normal, hit.Depth, table.Get(hit.Material), p, dt) {
			res.Contacts++
		}
	}
	return res
}
