package contact

import (
	"testing"

	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func body(positions ...mgl32.Vec3) *softbody.Body {
	b := &softbody.Body{}
	for i, p := range positions {
		b.Nodes = append(b.Nodes, softbody.NewNode(i, p, 10))
	}
	b.Seal()
	return b
}

func TestGroundPushesPenetratingNodeUp(t *testing.T) {
	b := body(mgl32.Vec3{0, -0.01, 0}, mgl32.Vec3{5, 1, 0})
	res, err := Ground(b, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Contacts)
	assert.Greater(t, b.Nodes[0].Forces.Y(), float32(0))
	assert.True(t, b.Nodes[0].Contact.InContact)
	assert.Equal(t, DefaultGroundModelName, b.Nodes[0].Contact.GroundModel)
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[1].Forces)
	assert.False(t, b.Nodes[1].Contact.InContact)
}

func TestGroundNeverAdheres(t *testing.T) {
	b := body(mgl32.Vec3{0, -0.001, 0})
	b.Nodes[0].Velocity = mgl32.Vec3{0, 5, 0}
	res, err := Ground(b, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Zero(t, res.Contacts)
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[0].Forces)
}

func TestGroundFrictionOpposesSlip(t *testing.T) {
	b := body(mgl32.Vec3{0, -0.01, 0})
	b.Nodes[0].Velocity = mgl32.Vec3{3, 0, 0}
	_, err := Ground(b, FlatTerrain{Surface: "asphalt"}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)

	f := b.Nodes[0].Forces
	assert.Less(t, f.X(), float32(0))
	assert.Zero(t, f.Z())
	assert.Equal(t, "asphalt", b.Nodes[0].Contact.GroundModel)
	assert.LessOrEqual(t, -f.X(), 3*b.Nodes[0].Mass/0.002)
}

func TestGroundSkipsNoContactNodes(t *testing.T) {
	b := body(mgl32.Vec3{0, -0.2, 0})
	b.Nodes[0].NoGroundContact = true
	res, err := Ground(b, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Zero(t, res.Contacts)
	assert.Equal(t, mgl32.Vec3{}, b.Nodes[0].Forces)
}

func TestGroundWithoutDataFails(t *testing.T) {
	grid := &HeightGrid{Spacing: 1, Width: 2, Depth: 2, Heights: make([]float32, 4)}
	b := body(mgl32.Vec3{10, 0, 10})
	_, err := Ground(b, grid, DefaultFrictionTable(), DefaultParams(), 0.002)
	assert.ErrorIs(t, err, ErrNoTerrain)
}

func TestCatastrophicPenetration(t *testing.T) {
	b := body(mgl32.Vec3{0, -2, 0})
	res, err := Ground(b, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.True(t, res.Catastrophic)
	assert.InDelta(t, 2, res.Deepest, 1e-6)

	Surface(b, FlatTerrain{}, DefaultParams())
	assert.Zero(t, b.Nodes[0].AbsPosition.Y())
}

func TestFluidGroundSinksWithDrag(t *testing.T) {
	b := body(mgl32.Vec3{0, -0.1, 0})
	b.Nodes[0].Velocity = mgl32.Vec3{0, -1, 0}
	b.Nodes[0].Volume = 0.001
	_, err := Ground(b, FlatTerrain{Surface: "mud"}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Greater(t, b.Nodes[0].Forces.Y(), float32(0))
	assert.Equal(t, "mud", b.Nodes[0].Contact.GroundModel)
}

func TestHeightGridBilinear(t *testing.T) {
	g := &HeightGrid{Spacing: 2, Width: 2, Depth: 2, Heights: []float32{0, 2, 0, 2}}
	h, ok := g.Height(1, 1)
	require.True(t, ok)
	assert.InDelta(t, 1, h, 1e-6)
	_, ok = g.Height(-0.1, 0)
	assert.False(t, ok)

	n := Normal(g, 1, 1)
	assert.Less(t, n.X(), float32(0))
	assert.InDelta(t, 1, n.Len(), 1e-5)
}

func TestFrictionTable(t *testing.T) {
	table := DefaultFrictionTable()
	assert.Equal(t, "ice", table.Get("ice").Name)
	assert.Equal(t, DefaultGroundModelName, table.Get("lava").Name)
	assert.Contains(t, table.Names(), "mud")

	_, err := NewFrictionTable([]GroundModel{{Name: "a"}}, "b")
	assert.Error(t, err)
}

func TestFrictionCoefStribeck(t *testing.T) {
	m := DefaultFrictionTable().Get("concrete")
	assert.Zero(t, frictionCoef(m, 0))
	static := frictionCoef(m, m.VA*0.5)
	assert.Less(t, static, m.MS)
	fast := frictionCoef(m, 20)
	assert.InDelta(t, m.MC+m.T2*20, fast, 1e-4)

	// past the adhesion speed but below VS the Stribeck branch applies
	mid := frictionCoef(m, 0.5)
	want := m.MC + (m.MS-m.MC)*math32.Exp(-math32.Pow(0.5/m.VS, m.Alpha)) + m.T2*0.5
	assert.InDelta(t, want, mid, 1e-5)
}

func TestGroundContactBand(t *testing.T) {
	resting := body(mgl32.Vec3{0, 0.01, 0})
	res, err := Ground(resting, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Zero(t, res.Contacts, "hovering inside the range without closing speed")

	falling := body(mgl32.Vec3{0, 0.01, 0})
	falling.Nodes[0].Velocity = mgl32.Vec3{0, -5, 0}
	res, err = Ground(falling, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Contacts)
	assert.Positive(t, falling.Nodes[0].Forces.Y())

	above := body(mgl32.Vec3{0, 0.05, 0})
	above.Nodes[0].Velocity = mgl32.Vec3{0, -5, 0}
	res, err = Ground(above, FlatTerrain{}, DefaultFrictionTable(), DefaultParams(), 0.002)
	require.NoError(t, err)
	assert.Zero(t, res.Contacts, "outside the collision range")
}

func TestStaticGeometryTriangle(t *testing.T) {
	floor := []Triangle{
		{A: mgl32.Vec3{-10, 1, -10}, B: mgl32.Vec3{-10, 1, 10}, C: mgl32.Vec3{10, 1, -10}, Material: "concrete"},
	}
	g := NewStaticGeometry(floor, nil, 0)

	hit, ok := g.Query(mgl32.Vec3{-5, 0.95, -5}, 0.02)
	require.True(t, ok)
	assert.InDelta(t, 0.05, hit.Depth, 1e-5)
	assert.InDelta(t, 1, hit.Normal.Y(), 1e-6)
	assert.Equal(t, "concrete", hit.Material)

	_, ok = g.Query(mgl32.Vec3{-5, 2, -5}, 0.02)
	assert.False(t, ok)
	_, ok = g.Query(mgl32.Vec3{9, 0.95, 9}, 0.02)
	assert.False(t, ok, "outside the triangle")
}

func TestStaticGeometryBox(t *testing.T) {
	g := NewStaticGeometry(nil, []Box{{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{2, 1, 2}, Material: "concrete"}}, 0)
	hit, ok := g.Query(mgl32.Vec3{1, 0.9, 1}, 0.02)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, hit.Normal)
	assert.InDelta(t, 0.1, hit.Depth, 1e-5)

	b := body(mgl32.Vec3{1, 0.9, 1})
	res := Mesh(b, g, DefaultFrictionTable(), DefaultParams(), 0.002)
	assert.Equal(t, 1, res.Contacts)
	assert.Greater(t, b.Nodes[0].Forces.Y(), float32(0))
}

func TestSelfContactRepelsNode(t *testing.T) {
	b := body(
		mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0},
		mgl32.Vec3{0.2, 0.05, 0.2},
	)
	b.Nodes[3].Contacter = true
	c := NewSelfCollider(DefaultNodeContact(), []Tri{{A: 0, B: 1, C: 2}})

	assert.Equal(t, 1, c.Apply(b))
	assert.Greater(t, b.Nodes[3].Forces.Y(), float32(0))
	var sum mgl32.Vec3
	for _, n := range b.Nodes {
		sum = sum.Add(n.Forces)
	}
	assert.InDelta(t, 0, sum.Len(), 1e-2, "reaction balances")
}

func TestPairContactImpulses(t *testing.T) {
	a := body(mgl32.Vec3{0.2, 0.05, 0.2})
	a.Nodes[0].Contacter = true
	b := body(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0})
	require.True(t, Overlap(a, b, 0.1))

	n := Pair(a, b, []Tri{{A: 0, B: 1, C: 2}}, DefaultNodeContact(), 0.002)
	assert.Equal(t, 1, n)
	assert.Greater(t, a.Nodes[0].Velocity.Y(), float32(0))
	assert.Less(t, b.Nodes[0].Velocity.Y(), float32(0))
}
