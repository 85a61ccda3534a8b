package contact

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoTerrain is returned when a node is outside the terrain's data.
var ErrNoTerrain = errors.New("no terrain data")

// Terrain samples ground height. ok is false outside the covered area.
type Terrain interface {
	Height(x, z float32) (y float32, ok bool)
}

// MaterialTerrain is implemented by terrains that know the ground model
// under a point.
type MaterialTerrain interface {
	Terrain
	Material(x, z float32) string
}

// FlatTerrain is an infinite plane at height Y.
type FlatTerrain struct {
	Y       float32
	Surface string
}

func (t FlatTerrain) Height(float32, float32) (float32, bool) { return t.Y, true }

func (t FlatTerrain) Material(float32, float32) string { return t.Surface }

// HeightGrid is a regular grid of samples interpolated bilinearly. Heights
// is row-major with Width samples per row along X.
type HeightGrid struct {
	OriginX, OriginZ float32
	Spacing          float32
	Width, Depth     int
	Heights          []float32
	Surface          string
}

func (g *HeightGrid) Height(x, z float32) (float32, bool) {
	if g.Spacing <= 0 || g.Width < 2 || g.Depth < 2 {
		return 0, false
	}
	fx := (x - g.OriginX) / g.Spacing
	fz := (z - g.OriginZ) / g.Spacing
	if fx < 0 || fz < 0 || fx > float32(g.Width-1) || fz > float32(g.Depth-1) {
		return 0, false
	}
	ix := int(math32.Floor(fx))
	iz := int(math32.Floor(fz))
	if ix >= g.Width-1 {
		ix = g.Width - 2
	}
	if iz >= g.Depth-1 {
		iz = g.Depth - 2
	}
	tx := fx - float32(ix)
	tz := fz - float32(iz)
	h00 := g.Heights[iz*g.Width+ix]
	h10 := g.Heights[iz*g.Width+ix+1]
	h01 := g.Heights[(iz+1)*g.Width+ix]
	h11 := g.Heights[(iz+1)*g.Width+ix+1]
	a := h00 + (h10-h00)*tx
	b := h01 + (h11-h01)*tx
	return a + (b-a)*tz, true
}

func (g *HeightGrid) Material(float32, float32) string { return g.Surface }

// Normal estimates the terrain normal by central differences.
func Normal(t Terrain, x, z float32) mgl32.Vec3 {
	const e = 0.1
	hx0, ok1 := t.Height(x-e, z)
	hx1, ok2 := t.Height(x+e, z)
	hz0, ok3 := t.Height(x, z-e)
	hz1, ok4 := t.Height(x, z+e)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return mgl32.Vec3{0, 1, 0}
	}
	n := mgl32.Vec3{hx0 - hx1, 2 * e, hz0 - hz1}
	return n.Normalize()
}
