package softbody

import "github.com/go-gl/mathgl/mgl32"

// WetState tracks a node's exposure to water.
type WetState uint8

const (
	Dry WetState = iota
	Dripping
	Wet
)

// Contact is the per-node contact descriptor, refreshed every tick.
type Contact struct {
	State     WetState
	InContact bool
	// Friction is the effective friction coefficient of the last contact.
	Friction      float32
	GroundModel   string
	SubmergedTime float32
	DripTime      float32
}

// Node is a point mass. Index is the node's position in its actor's array;
// ID is the number it carried in the definition.
type Node struct {
	ID    int
	Index int

	AbsPosition      mgl32.Vec3
	RelPosition      mgl32.Vec3
	SmoothedPosition mgl32.Vec3
	Velocity         mgl32.Vec3
	Forces           mgl32.Vec3

	Mass    float32
	InvMass float32

	Contact     Contact
	Friction    float32
	Buoyancy    float32
	Volume      float32
	SurfaceCoef float32

	WheelID         int
	LockGroup       int
	NoGroundContact bool
	Contacter       bool

	InitialPosition        mgl32.Vec3
	InitialDistanceToNode0 float32
}

// NewNode returns a node at rest with sane defaults.
func NewNode(index int, pos mgl32.Vec3, mass float32) Node {
	n := Node{
		ID:               index,
		Index:            index,
		AbsPosition:      pos,
		RelPosition:      pos,
		SmoothedPosition: pos,
		InitialPosition:  pos,
		Friction:         1,
		WheelID:          -1,
		LockGroup:        -1,
	}
	n.SetMass(mass)
	return n
}

// SetMass sets mass and its reciprocal. A non-positive mass pins the node.
func (n *Node) SetMass(m float32) {
	if m <= 0 {
		n.Mass = 0
		n.InvMass = 0
		return
	}
	n.Mass = m
	n.InvMass = 1 / m
}

// Pin fixes the node in place while keeping its mass for force bookkeeping.
func (n *Node) Pin() {
	n.InvMass = 0
	n.Velocity = mgl32.Vec3{}
}

// Pinned reports whether the node never moves.
func (n *Node) Pinned() bool { return n.InvMass == 0 }

// AddForce accumulates f for the current tick.
func (n *Node) AddForce(f mgl32.Vec3) {
	n.Forces = n.Forces.Add(f)
}
