// Package affector applies external forces to actor nodes: spring pins
// dragged by a user or a script, and constant scripted forces.
package affector

import (
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Affector is an external force source on nodes of one actor.
type Affector struct {
	ID    core.AffectorID
	Kind  core.AffectorKind
	Actor core.ActorID
	Nodes []int

	Pin      mgl32.Vec3
	Force    mgl32.Vec3
	Spring   float32
	Damping  float32
	MinForce float32
	MaxForce float32
	Ramp     float32
	Duration float32

	Age     float32
	Severed bool

	forces []mgl32.Vec3
}

// New builds an affector from a request.
func New(id core.AffectorID, req core.AffectorRequest) Affector {
	return Affector{
		ID:       id,
		Kind:     req.Kind,
		Actor:    req.Actor,
		Nodes:    append([]int(nil), req.Nodes...),
		Pin:      req.Pin,
		Force:    req.Force,
		Spring:   req.Spring,
		Damping:  req.Damping,
		MinForce: req.MinForce,
		MaxForce: req.MaxForce,
		Ramp:     req.Ramp,
		Duration: req.Duration,
	}
}

// Done reports whether the affector no longer applies force.
func (a *Affector) Done() bool {
	if a.Severed {
		return true
	}
	return a.Kind == core.AffectorScriptedForce && a.Duration > 0 && a.Age >= a.Duration
}

// Apply adds this tick's force to the nodes and reports whether a pin was
// severed by it. A severing pin still pulls with MaxForce for that tick.
func (a *Affector) Apply(nodes []softbody.Node, dt float32) bool {
	if a.Done() {
		return false
	}
	a.Age += dt
	ramp := float32(1)
	if a.Ramp > 0 && a.Age < a.Ramp {
		ramp = a.Age / a.Ramp
	}

	if a.Kind == core.AffectorScriptedForce {
		f := a.Force.Mul(ramp)
		for _, ni := range a.Nodes {
			if ni >= 0 && ni < len(nodes) {
				nodes[ni].AddForce(f)
			}
		}
		return false
	}

	if cap(a.forces) < len(a.Nodes) {
		a.forces = make([]mgl32.Vec3, len(a.Nodes))
	}
	forces := a.forces[:len(a.Nodes)]
	for i, ni := range a.Nodes {
		forces[i] = mgl32.Vec3{}
		if ni < 0 || ni >= len(nodes) {
			continue
		}
		n := &nodes[ni]
		f := a.Pin.Sub(n.AbsPosition).Mul(a.Spring).Sub(n.Velocity.Mul(a.Damping)).Mul(ramp)
		mag := f.Len()
		if mag < a.MinForce {
			continue
		}
		if a.MaxForce > 0 && mag > a.MaxForce {
			a.Severed = true
			f = f.Mul(a.MaxForce / mag)
		}
		forces[i] = f
	}
	for i, ni := range a.Nodes {
		if ni >= 0 && ni < len(nodes) {
			nodes[ni].AddForce(forces[i])
		}
	}
	return a.Severed
}

// Set is the affector list of one actor, kept in insertion order.
type Set struct {
	items []Affector
}

// Add appends a.
func (s *Set) Add(a Affector) { s.items = append(s.items, a) }

// Len returns the number of affectors.
func (s *Set) Len() int { return len(s.items) }

// Get returns the affector with id.
func (s *Set) Get(id core.AffectorID) (*Affector, bool) {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i], true
		}
	}
	return nil, false
}

// Move replaces the pin point of id.
func (s *Set) Move(id core.AffectorID, pin mgl32.Vec3) bool {
	a, ok := s.Get(id)
	if ok {
		a.Pin = pin
	}
	return ok
}

// Remove drops id.
func (s *Set) Remove(id core.AffectorID) bool {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Apply runs every affector for one tick, drops finished ones and returns
// the ids severed during it.
func (s *Set) Apply(nodes []softbody.Node, dt float32) []core.AffectorID {
	var severed []core.AffectorID
	kept := s.items[:0]
	for i := range s.items {
		a := &s.items[i]
		if a.Apply(nodes, dt) {
			severed = append(severed, a.ID)
		}
		if !a.Done() {
			kept = append(kept, *a)
		}
	}
	s.items = kept
	return severed
}

// Clear drops every affector.
func (s *Set) Clear() { s.items = s.items[:0] }
