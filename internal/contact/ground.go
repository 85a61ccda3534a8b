package contact

import (
	"fmt"

	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Params configures the penalty contact law.
type Params struct {
	Stiffness float32
	Damping   float32
	// CollisionRange is the contact skin above a surface.
	CollisionRange float32
	// HardPenetration marks a step as catastrophic.
	HardPenetration float32
	Gravity         float32
}

// DefaultParams returns the stock ground contact parameters.
func DefaultParams() Params {
	return Params{
		Stiffness:       2e6,
		Damping:         2e4,
		CollisionRange:  softbody.DefaultCollisionRange,
		HardPenetration: 1,
		Gravity:         9.81,
	}
}

// Result summarizes one contact pass over a body.
type Result struct {
	Contacts int
	// Catastrophic is set when any node penetrated past HardPenetration.
	Catastrophic bool
	Deepest      float32
}

// Ground resolves terrain contact for every node of b. A node outside the
// terrain data aborts the pass with ErrNoTerrain.
func Ground(b *softbody.Body, terrain Terrain, table *FrictionTable, p Params, dt float32) (Result, error) {
	var res Result
	mt, hasMaterial := terrain.(MaterialTerrain)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		n.Contact.InContact = false
		if n.NoGroundContact {
			continue
		}
		x, z := n.AbsPosition.X(), n.AbsPosition.Z()
		h, ok := terrain.Height(x, z)
		if !ok {
			return res, fmt.Errorf("node %d at (%.1f, %.1f): %w", i, x, z, ErrNoTerrain)
		}
		y := n.AbsPosition.Y()
		if y > h+p.CollisionRange {
			continue
		}
		model := table.Default()
		if hasMaterial {
			model = table.Get(mt.Material(x, z))
		}
		depth := h - y
		if depth > p.HardPenetration {
			res.Catastrophic = true
			if depth > res.Deepest {
				res.Deepest = depth
			}
			continue
		}
		normal := Normal(terrain, x, z)
		if model.IsFluid() {
			if depth <= model.SolidLevel {
				applyFluid(n, model, normal, depth, p)
				continue
			}
			depth -= model.SolidLevel
		}
		if applyContact(n, normal, depth*normal.Y(), model, p, dt) {
			res.Contacts++
		}
	}
	return res, nil
}

// Surface places nodes that sank past the hard limit back on the terrain and
// stops them. It is the recovery half of a catastrophic freeze.
func Surface(b *softbody.Body, terrain Terrain, p Params) {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.NoGroundContact {
			continue
		}
		h, ok := terrain.Height(n.AbsPosition.X(), n.AbsPosition.Z())
		if !ok || h-n.AbsPosition.Y() <= p.HardPenetration {
			continue
		}
		n.AbsPosition[1] = h
		n.RelPosition = n.AbsPosition.Sub(b.Origin)
		n.Velocity = mgl32.Vec3{}
	}
}

// applyContact adds the normal reaction and friction for a node penetrating
// a surface by depth along normal. It reports whether a force was applied.
func applyContact(n *softbody.Node, normal mgl32.Vec3, depth float32, m *GroundModel, p Params, dt float32) bool {
	vn := n.Velocity.Dot(normal)
	fn := p.Stiffness*depth - p.Damping*vn
	if fn <= 0 {
		return false
	}
	n.Forces = n.Forces.Add(normal.Mul(fn))
	n.Contact.InContact = true
	n.Contact.GroundModel = m.Name

	vt := n.Velocity.Sub(normal.Mul(vn))
	slip := vt.Len()
	mu := frictionCoef(m, slip)
	n.Contact.Friction = mu
	if slip < 1e-6 {
		return true
	}
	dirT := vt.Mul(1 / slip)
	if m.Anisotropy > 0 {
		mu *= 1 - m.Anisotropy*sq(dirT.X())
	}
	ff := mu * fn * m.Strength * n.Friction
	if m.MaxFriction > 0 {
		ff = math32.Min(ff, m.MaxFriction*fn)
	}
	// friction may stop the node within a tick but never reverse it
	if n.InvMass > 0 && dt > 0 {
		ff = math32.Min(ff, slip*n.Mass/dt)
	}
	n.Forces = n.Forces.Sub(dirT.Mul(ff))
	return true
}

// frictionCoef is the Stribeck law with adhesion at low slip.
func frictionCoef(m *GroundModel, slip float32) float32 {
	if slip < m.VA {
		return m.MS * (1 - math32.Exp(-slip/m.VA))
	}
	g := m.MC + (m.MS-m.MC)*math32.Exp(-math32.Pow(slip/m.VS, m.Alpha))
	return g + math32.Min(m.T2*slip, 5)
}

// applyFluid models a node sunk into a fluid layer with power-law drag and
// buoyancy.
func applyFluid(n *softbody.Node, m *GroundModel, normal mgl32.Vec3, depth float32, p Params) {
	n.Contact.InContact = true
	n.Contact.GroundModel = m.Name
	if depth > 0 && n.Volume > 0 {
		n.Forces = n.Forces.Add(normal.Mul(m.FluidDensity * p.Gravity * n.Volume))
	}
	speed := n.Velocity.Len()
	if speed < 1e-6 {
		return
	}
	drag := m.FlowConsistency * math32.Pow(speed, m.FlowBehavior)
	dir := n.Velocity.Mul(1 / speed)
	f := dir.Mul(-drag)
	if m.DragAnisotropy > 0 {
		vn := dir.Dot(normal)
		// movement along the surface is damped less than movement into it
		tangential := f.Sub(normal.Mul(f.Dot(normal)))
		f = normal.Mul(-drag * vn).Add(tangential.Mul(1 - m.DragAnisotropy))
	}
	n.Forces = n.Forces.Add(f)
}

func sq(v float32) float32 { return v * v }
