// Package core holds the types shared between the simulation, its hosts
// and the recording backends.
package core

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ActorID is the stable session-wide identifier of an actor.
type ActorID uint32

// AffectorID identifies an external force source.
type AffectorID uint64

// ActorState is the lifecycle state of an actor.
type ActorState uint8

const (
	StateLocalSimulated ActorState = iota
	StateNetworkedRemote
	StateReplayOnly
	StateFrozen
)

func (s ActorState) String() string {
	switch s {
	case StateLocalSimulated:
		return "local"
	case StateNetworkedRemote:
		return "remote"
	case StateReplayOnly:
		return "replay"
	case StateFrozen:
		return "frozen"
	}
	return "unknown"
}

// NodeRef addresses a node across actors. References are validated at
// dereference time since the target actor may be gone.
type NodeRef struct {
	Actor ActorID `json:"actor"`
	Node  int     `json:"node"`
}

// Session describes one simulation run for recording purposes.
type Session struct {
	ID        string
	Name      string
	StartTime time.Time
	TickRate  float32
	Gravity   mgl32.Vec3
	Tags      string
}

// UploadMetadata contains session metadata for upload to a replay server.
type UploadMetadata struct {
	SessionName string
	Duration    float64
	Ticks       uint64
	Actors      int
	Tag         string
}
