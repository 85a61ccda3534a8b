package softbody

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Integrate advances every dynamic node by one semi-implicit Euler step.
// Pinned nodes keep their position. Every node is checked before any is
// moved, so a non-finite result returns ErrUnstable with the body as it
// was.
func (b *Body) Integrate(dt float32) error {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.InvMass == 0 {
			continue
		}
		v, rel := n.advance(dt)
		if !finite(v) || !finite(rel) {
			assertFinite(fmt.Sprintf("node %d diverged: v=%v p=%v", i, v, rel))
			return fmt.Errorf("node %d: %w", i, ErrUnstable)
		}
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.InvMass == 0 {
			continue
		}
		v, rel := n.advance(dt)
		old := n.AbsPosition
		n.Velocity = v
		n.RelPosition = rel
		n.AbsPosition = b.Origin.Add(rel)
		n.SmoothedPosition = old.Add(n.AbsPosition.Sub(old).Mul(smoothing))
	}
	return nil
}

func (n *Node) advance(dt float32) (v, rel mgl32.Vec3) {
	v = n.Velocity.Add(n.Forces.Mul(n.InvMass * dt))
	return v, n.RelPosition.Add(v.Mul(dt))
}

// PostTick updates bounds, the average position and the sleep counter, and
// periodically moves the origin to node 0.
func (b *Body) PostTick() {
	var vmax float32
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if s := n.Velocity.Len(); s > vmax {
			vmax = s
		}
	}
	b.updateBounds()
	if vmax < SleepVelocity {
		b.SleepTicks++
	} else {
		b.SleepTicks = 0
	}
	b.ticks++
	if b.ticks%RecenterInterval == 0 {
		b.Recenter()
	}
}

// Recenter moves the local origin to node 0 to keep relative positions small.
func (b *Body) Recenter() {
	if len(b.Nodes) == 0 {
		return
	}
	delta := b.Nodes[0].AbsPosition.Sub(b.Origin)
	b.Origin = b.Nodes[0].AbsPosition
	for i := range b.Nodes {
		b.Nodes[i].RelPosition = b.Nodes[i].RelPosition.Sub(delta)
	}
}

// SetPositions overwrites node positions from an external source, for
// replayed or remote actors. Velocities are derived from the displacement.
func (b *Body) SetPositions(pos []mgl32.Vec3, dt float32) {
	for i := range b.Nodes {
		if i >= len(pos) {
			break
		}
		n := &b.Nodes[i]
		if dt > 0 {
			n.Velocity = pos[i].Sub(n.AbsPosition).Mul(1 / dt)
		}
		n.SmoothedPosition = n.AbsPosition.Add(pos[i].Sub(n.AbsPosition).Mul(smoothing))
		n.AbsPosition = pos[i]
		n.RelPosition = pos[i].Sub(b.Origin)
	}
	b.PostTick()
}

// Heading returns the horizontal yaw in radians of the vector from node a to
// node b, measured from +Z toward +X.
func (b *Body) Heading(a, c int) float32 {
	if a < 0 || c < 0 || a >= len(b.Nodes) || c >= len(b.Nodes) {
		return 0
	}
	d := b.Nodes[c].AbsPosition.Sub(b.Nodes[a].AbsPosition)
	return math32.Atan2(d.X(), d.Z())
}

// Pitch returns the elevation angle in radians of the vector from node a to
// node c. Positive means c is higher than a.
func (b *Body) Pitch(a, c int) float32 {
	if a < 0 || c < 0 || a >= len(b.Nodes) || c >= len(b.Nodes) {
		return 0
	}
	d := b.Nodes[c].AbsPosition.Sub(b.Nodes[a].AbsPosition)
	h := math32.Hypot(d.X(), d.Z())
	return math32.Atan2(d.Y(), h)
}
