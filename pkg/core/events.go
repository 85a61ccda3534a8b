package core

import (
	"fmt"
	"time"
)

// EventKind enumerates everything the core reports to the host.
type EventKind uint8

const (
	EventBeamBroken EventKind = iota + 1
	EventHookLocked
	EventHookUnlocked
	EventWaypointReached
	EventResetApplied
	EventActorSpawned
	EventActorRemoved
	EventSpawnRejected
	EventActorFrozen
	EventResourceMiss
	EventEngineStalled
	EventSlideBroken
	EventPinSevered
	EventCruiseDisengaged
)

var eventNames = map[EventKind]string{
	EventBeamBroken:       "beam_broken",
	EventHookLocked:       "hook_locked",
	EventHookUnlocked:     "hook_unlocked",
	EventWaypointReached:  "waypoint_reached",
	EventResetApplied:     "reset_applied",
	EventActorSpawned:     "actor_spawned",
	EventActorRemoved:     "actor_removed",
	EventSpawnRejected:    "spawn_rejected",
	EventActorFrozen:      "actor_frozen",
	EventResourceMiss:     "resource_miss",
	EventEngineStalled:    "engine_stalled",
	EventSlideBroken:      "slide_broken",
	EventPinSevered:       "pin_severed",
	EventCruiseDisengaged: "cruise_disengaged",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	v, ok := ParseEventKind(string(b))
	if !ok {
		return fmt.Errorf("unknown event kind %q", b)
	}
	*k = v
	return nil
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(name string) (EventKind, bool) {
	for k, n := range eventNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// EventKinds lists every kind in declaration order.
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(eventNames))
	for k := EventBeamBroken; k <= EventCruiseDisengaged; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Event is a single notification from the physics core. Index carries the
// beam, hook, slide-node or waypoint index depending on Kind.
type Event struct {
	Kind     EventKind  `json:"kind"`
	Tick     uint64     `json:"tick"`
	Time     time.Time  `json:"time"`
	Actor    ActorID    `json:"actor"`
	Index    int        `json:"index"`
	Group    int        `json:"group,omitempty"`
	Affector AffectorID `json:"affector,omitempty"`
	Target   *NodeRef   `json:"target,omitempty"`
	Label    string     `json:"label,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// EventSink receives published events. Implementations must not block the
// physics thread for long.
type EventSink interface {
	Publish(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(e Event) { f(e) }

// DiscardEvents drops everything.
var DiscardEvents EventSink = EventSinkFunc(func(Event) {})
