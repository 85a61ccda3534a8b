// Package hook implements node-to-node hooks that search, pull in and lock
// onto nodes of other actors.
package hook

import (
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// State of a hook.
type State uint8

const (
	Unlocked State = iota
	Prelocked
	Locked
	// Releasing lasts one tick and then becomes Unlocked.
	Releasing
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Prelocked:
		return "prelocked"
	case Locked:
		return "locked"
	case Releasing:
		return "releasing"
	}
	return "unknown"
}

// NoLockGroup marks nodes that hooks never lock onto.
const NoLockGroup = 9999

// AllGroups addresses every hook of an actor.
const AllGroups = -1

// Defaults.
const (
	DefaultLockRange       = 0.4
	DefaultLockSpeed       = 0.00025
	DefaultMaxForce        = 1e7
	DefaultLockTimerPreset = 5
	DefaultSpring          = 9e6
	DefaultDamp            = 5e4
)

type Hook struct {
	Node      int
	Group     int
	LockGroup int

	LockRange       float32
	LockSpeed       float32
	MaxForce        float32
	LockTimerPreset float32

	AutoLock  bool
	NoDisable bool
	SelfLock  bool

	Spring    float32
	Damp      float32
	MinLength float32

	State      State
	Target     core.NodeRef
	RestLength float32
	// Timer counts down after an auto-lock release. Relocking waits for it.
	Timer float32

	missing int
}

// New returns an unlocked hook on node with default parameters.
func New(node int) Hook {
	return Hook{
		Node:            node,
		Group:           AllGroups,
		LockGroup:       -1,
		LockRange:       DefaultLockRange,
		LockSpeed:       DefaultLockSpeed,
		MaxForce:        DefaultMaxForce,
		LockTimerPreset: DefaultLockTimerPreset,
		Spring:          DefaultSpring,
		Damp:            DefaultDamp,
	}
}

// Candidate is one actor body a hook may lock onto.
type Candidate struct {
	Actor core.ActorID
	Body  *softbody.Body
}

// Lookup resolves an actor id to its body.
type Lookup func(core.ActorID) (*softbody.Body, bool)

// Search returns the nearest lockable node within LockRange.
func (h *Hook) Search(self core.ActorID, own *softbody.Body, candidates []Candidate) (core.NodeRef, float32, bool) {
	p := own.Nodes[h.Node].AbsPosition
	best := h.LockRange
	var found core.NodeRef
	ok := false
	for _, c := range candidates {
		if c.Body == nil || (c.Actor == self && !h.SelfLock) {
			continue
		}
		if !nearBounds(c.Body, p, h.LockRange) {
			continue
		}
		for i := range c.Body.Nodes {
			n := &c.Body.Nodes[i]
			if c.Actor == self && i == h.Node {
				continue
			}
			if n.LockGroup == NoLockGroup || (h.LockGroup >= 0 && n.LockGroup != h.LockGroup) {
				continue
			}
			if d := n.AbsPosition.Sub(p).Len(); d <= best {
				best = d
				found = core.NodeRef{Actor: c.Actor, Node: i}
				ok = true
			}
		}
	}
	return found, best, ok
}

func nearBounds(b *softbody.Body, p mgl32.Vec3, r float32) bool {
	if b.BoundsMin == b.BoundsMax {
		return true
	}
	for k := 0; k < 3; k++ {
		if p[k] < b.BoundsMin[k]-r || p[k] > b.BoundsMax[k]+r {
			return false
		}
	}
	return true
}

// Toggle locks an unlocked hook onto the nearest candidate, or releases a
// prelocked or locked one.
func (h *Hook) Toggle(self core.ActorID, own *softbody.Body, candidates []Candidate) {
	switch h.State {
	case Unlocked:
		h.tryLock(self, own, candidates)
	case Prelocked, Locked:
		h.release()
	}
}

func (h *Hook) tryLock(self core.ActorID, own *softbody.Body, candidates []Candidate) bool {
	if h.Timer > 0 {
		return false
	}
	ref, d, ok := h.Search(self, own, candidates)
	if !ok {
		return false
	}
	h.State = Prelocked
	h.Target = ref
	h.RestLength = d
	h.missing = 0
	return true
}

func (h *Hook) release() {
	h.State = Releasing
	if h.AutoLock && h.Group <= -2 {
		h.Timer = h.LockTimerPreset
	}
}

// Reset unlocks the hook and clears its timer.
func (h *Hook) Reset() {
	h.State = Unlocked
	h.Target = core.NodeRef{}
	h.RestLength = 0
	h.Timer = 0
	h.missing = 0
}

// Update advances the hook by one tick and applies its coupling as velocity
// impulses. It returns the event kind of a lock transition, or zero.
func (h *Hook) Update(self core.ActorID, own *softbody.Body, lookup Lookup, candidates []Candidate, dt float32) core.EventKind {
	if h.Timer > 0 {
		h.Timer = math32.Max(0, h.Timer-dt)
	}
	switch h.State {
	case Releasing:
		h.State = Unlocked
		return core.EventHookUnlocked
	case Unlocked:
		if h.AutoLock {
			h.tryLock(self, own, candidates)
		}
		return 0
	}

	target, ok := lookup(h.Target.Actor)
	if !ok || h.Target.Node >= len(target.Nodes) {
		h.missing++
		if h.State == Prelocked || h.missing > 1 {
			h.release()
		}
		return 0
	}
	h.missing = 0
	hn := &own.Nodes[h.Node]
	tn := &target.Nodes[h.Target.Node]
	dist := tn.AbsPosition.Sub(hn.AbsPosition).Len()

	if h.State == Prelocked {
		if dist > 2*h.LockRange {
			h.release()
			return 0
		}
		h.RestLength -= h.LockSpeed
		if h.RestLength <= h.MinLength || dist <= h.MinLength {
			h.RestLength = h.MinLength
			h.State = Locked
			couple(hn, tn, h.Spring, h.Damp, h.RestLength, dt)
			return core.EventHookLocked
		}
	}
	f := couple(hn, tn, h.Spring, h.Damp, h.RestLength, dt)
	if h.State == Locked && math32.Abs(f) > h.MaxForce && !h.NoDisable {
		h.release()
	}
	return 0
}

// couple applies a spring-damper between a and b as equal and opposite
// velocity impulses and returns the scalar force. The impulse never exceeds
// the one that closes the gap within the tick.
func couple(a, b *softbody.Node, k, d, rest, dt float32) float32 {
	delta := b.AbsPosition.Sub(a.AbsPosition)
	l := delta.Len()
	if l == 0 {
		return 0
	}
	dir := delta.Mul(1 / l)
	vrel := b.Velocity.Sub(a.Velocity).Dot(dir)
	stretch := l - rest
	f := k*stretch + d*vrel

	inv := a.InvMass + b.InvMass
	if inv == 0 || dt <= 0 {
		return f
	}
	mEff := 1 / inv
	j := f * dt
	if limit := math32.Abs(stretch/dt+vrel) * mEff; math32.Abs(j) > limit {
		j = math32.Copysign(limit, j)
	}
	a.Velocity = a.Velocity.Add(dir.Mul(j * a.InvMass))
	b.Velocity = b.Velocity.Sub(dir.Mul(j * b.InvMass))
	return f
}

// Set is the hook collection of one actor.
type Set struct {
	Hooks []Hook
}

// Toggle toggles every hook in group, or all hooks for AllGroups.
func (s *Set) Toggle(group int, self core.ActorID, own *softbody.Body, candidates []Candidate) {
	for i := range s.Hooks {
		if group == AllGroups || s.Hooks[i].Group == group {
			s.Hooks[i].Toggle(self, own, candidates)
		}
	}
}

// Update advances every hook and returns lock transition events.
func (s *Set) Update(self core.ActorID, own *softbody.Body, lookup Lookup, candidates []Candidate, dt float32) []core.Event {
	var events []core.Event
	for i := range s.Hooks {
		h := &s.Hooks[i]
		if kind := h.Update(self, own, lookup, candidates, dt); kind != 0 {
			target := h.Target
			events = append(events, core.Event{Kind: kind, Actor: self, Index: i, Group: h.Group, Target: &target})
		}
	}
	return events
}

// Reset unlocks every hook.
func (s *Set) Reset() {
	for i := range s.Hooks {
		s.Hooks[i].Reset()
	}
}

// Locked reports whether any hook is locked onto actor id.
func (s *Set) Locked(id core.ActorID) bool {
	for _, h := range s.Hooks {
		if h.State == Locked && h.Target.Actor == id {
			return true
		}
	}
	return false
}
