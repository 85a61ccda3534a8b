package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/zeebo/xxh3"
)

// NodeState is the published view of one node.
type NodeState struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
}

// ActorSnapshot is the published view of one actor.
type ActorSnapshot struct {
	ID         ActorID
	State      ActorState
	Broken     bool
	Nodes      []NodeState
	WheelRPM   []float32
	WheelAngle []float32
	EngineRPM  float32
	Gear       int
	Running    bool
	BoundsMin  mgl32.Vec3
	BoundsMax  mgl32.Vec3
}

// Snapshot is an immutable view of the whole world after one tick. Node
// positions are the smoothed render positions.
type Snapshot struct {
	Tick      uint64
	Timestamp int64
	// Alpha is the unsimulated fraction of a tick left in the accumulator,
	// for interpolating between this snapshot and the next.
	Alpha  float32
	Actors []ActorSnapshot
}

// Actor finds an actor by id.
func (s *Snapshot) Actor(id ActorID) (*ActorSnapshot, bool) {
	for i := range s.Actors {
		if s.Actors[i].ID == id {
			return &s.Actors[i], true
		}
	}
	return nil, false
}

// CopyInto deep-copies s into dst, reusing dst's slices where possible.
func (s *Snapshot) CopyInto(dst *Snapshot) {
	dst.Tick = s.Tick
	dst.Timestamp = s.Timestamp
	dst.Alpha = s.Alpha
	if cap(dst.Actors) < len(s.Actors) {
		dst.Actors = make([]ActorSnapshot, len(s.Actors))
	}
	dst.Actors = dst.Actors[:len(s.Actors)]
	for i := range s.Actors {
		src := &s.Actors[i]
		d := &dst.Actors[i]
		nodes, rpm, angle := d.Nodes, d.WheelRPM, d.WheelAngle
		*d = *src
		d.Nodes = append(nodes[:0], src.Nodes...)
		d.WheelRPM = append(rpm[:0], src.WheelRPM...)
		d.WheelAngle = append(angle[:0], src.WheelAngle...)
	}
}

// Clone returns an independent deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{}
	s.CopyInto(c)
	return c
}

// Digest hashes every bit of simulation state in the snapshot. Two runs with
// identical inputs must produce the same digest on the same platform.
func (s *Snapshot) Digest() uint64 {
	h := xxh3.New()
	var buf [8]byte
	putU := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	putF := func(f float32) {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(f))
		_, _ = h.Write(buf[:4])
	}
	putU(s.Tick)
	for i := range s.Actors {
		a := &s.Actors[i]
		putU(uint64(a.ID))
		putU(uint64(a.State))
		for _, n := range a.Nodes {
			for k := 0; k < 3; k++ {
				putF(n.Position[k])
				putF(n.Velocity[k])
			}
		}
		for _, r := range a.WheelRPM {
			putF(r)
		}
		putF(a.EngineRPM)
		putU(uint64(int64(a.Gear)))
	}
	return h.Sum64()
}
