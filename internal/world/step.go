package world

import (
	"errors"
	"time"

	"github.com/beamsim/beamsim/internal/actor"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/hook"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
)

// Advance runs as many whole ticks as realDt seconds allow and returns how
// many ran. The fractional remainder carries to the next call and is
// published as the snapshot's Alpha. While paused, requests are still
// applied but no tick runs.
func (w *World) Advance(realDt float32) int {
	if w.paused {
		w.drain()
		if !w.paused {
			w.acc = 0
		}
		w.publish(w.deps.Clock())
		return 0
	}
	dt := w.env.Dt
	w.acc += realDt
	// the epsilon absorbs float32 rounding of exact multiples of dt
	n := int(w.acc/dt + 1e-3)
	w.acc -= float32(n) * dt
	if w.acc < 0 {
		w.acc = 0
	}
	if n > w.cfg.MaxTicksPerAdvance {
		w.log.Warn("simulation behind real time, dropping ticks",
			"dropped", n-w.cfg.MaxTicksPerAdvance, "seconds", float32(n-w.cfg.MaxTicksPerAdvance)*dt)
		n = w.cfg.MaxTicksPerAdvance
	}
	ran := 0
	for ; ran < n; ran++ {
		if w.paused {
			break
		}
		w.Step()
	}
	if w.paused {
		w.acc = 0
	}
	w.snapMu.Lock()
	w.front.Alpha = w.acc / dt
	w.snapMu.Unlock()
	return ran
}

// Step runs exactly one tick: requests, AI, actor steps, coupling,
// snapshot, events and the replay throttle.
func (w *World) Step() {
	start := time.Now()
	w.drain()
	if w.paused {
		w.publish(w.deps.Clock())
		return
	}
	w.tick++
	now := w.deps.Clock()
	dt := w.env.Dt

	for _, a := range w.actors {
		if v, ok := w.ais[a.ID]; ok {
			v.Update(a, dt)
		}
	}

	errs := w.stepActors()
	var misses []*actor.Actor
	for i, err := range errs {
		if err == nil {
			continue
		}
		a := w.actors[i]
		if errors.Is(err, contact.ErrNoTerrain) {
			w.log.Warn("actor left terrain, removing", "actor", a.ID, "error", err)
			a.Emit(core.Event{Kind: core.EventResourceMiss, Message: err.Error()})
			misses = append(misses, a)
			continue
		}
		w.log.Warn("actor step failed, freezing", "actor", a.ID, "error", err)
		a.State = core.StateFrozen
		a.Broken = true
		a.Emit(core.Event{Kind: core.EventActorFrozen, Message: err.Error()})
	}
	for _, a := range misses {
		w.remove(a)
	}

	w.couple(dt)
	w.publish(now)

	if w.deps.Recorder != nil && w.tick%w.replayEvery == 0 {
		if err := w.deps.Recorder.RecordFrame(replay.FromSnapshot(w.front)); err != nil {
			w.log.Warn("replay frame not recorded", "tick", w.tick, "error", err)
		}
	}
	w.recordInputs(now)
	w.metrics.observe(start)
}

// recordInputs hands the inputs applied this tick to an InputRecorder.
func (w *World) recordInputs(now time.Time) {
	if len(w.inputs) == 0 {
		return
	}
	inputs := w.inputs
	w.inputs = nil
	ir, ok := w.deps.Recorder.(InputRecorder)
	if !ok {
		return
	}
	if err := ir.RecordInput(replay.InputRecord{Tick: w.tick, Timestamp: now, Inputs: inputs}); err != nil {
		w.log.Warn("inputs not recorded", "tick", w.tick, "error", err)
	}
}

// stepActors runs actor.Step for every actor, in parallel when a pool is
// configured. Actors touch only their own state here, so the result does
// not depend on scheduling.
func (w *World) stepActors() []error {
	env := &w.env
	if w.cfg.Workers > 1 && w.deps.Pool != nil && len(w.actors) > 1 {
		return w.deps.Pool.Run(len(w.actors), func(i int) error {
			return w.actors[i].Step(env)
		})
	}
	errs := make([]error, len(w.actors))
	for i, a := range w.actors {
		errs[i] = a.Step(env)
	}
	return errs
}

func (w *World) candidates() []hook.Candidate {
	w.cands = w.cands[:0]
	for _, a := range w.actors {
		w.cands = append(w.cands, hook.Candidate{Actor: a.ID, Body: &a.Body})
	}
	return w.cands
}

// couple runs the inter-actor stage serially in id order: hooks, then
// node-triangle contact between actors.
func (w *World) couple(dt float32) {
	cands := w.candidates()
	for _, a := range w.actors {
		if !a.Simulated() || len(a.Hooks.Hooks) == 0 {
			continue
		}
		if a.TakeHookToggle() {
			a.Hooks.Toggle(hook.AllGroups, a.ID, &a.Body, cands)
		}
		for _, e := range a.Hooks.Update(a.ID, &a.Body, w.lookup, cands, dt) {
			a.Emit(e)
		}
	}

	nc := w.env.NodeContact
	for i, a := range w.actors {
		if !a.Simulated() {
			continue
		}
		for _, b := range w.actors[i+1:] {
			if !b.Simulated() || a.Hooks.Locked(b.ID) || b.Hooks.Locked(a.ID) {
				continue
			}
			if !contact.Overlap(&a.Body, &b.Body, nc.Range) {
				continue
			}
			if len(b.Triangles) > 0 {
				contact.Pair(&a.Body, &b.Body, b.Triangles, nc, dt)
			}
			if len(a.Triangles) > 0 {
				contact.Pair(&b.Body, &a.Body, a.Triangles, nc, dt)
			}
		}
	}
}

// publish fills the back snapshot, swaps it to the front and flushes the
// tick's events to the sink in actor id order.
func (w *World) publish(now time.Time) {
	back := w.back
	back.Tick = w.tick
	back.Timestamp = now.UnixNano()
	back.Alpha = 0
	if cap(back.Actors) < len(w.actors) {
		grown := make([]core.ActorSnapshot, len(w.actors))
		copy(grown, back.Actors[:cap(back.Actors)])
		back.Actors = grown
	}
	back.Actors = back.Actors[:len(w.actors)]
	nodes, beams := 0, 0
	for i, a := range w.actors {
		a.Fill(&back.Actors[i])
		nodes += len(a.Body.Nodes)
		beams += len(a.Body.Beams)
	}

	w.snapMu.Lock()
	w.front, w.back = back, w.front
	w.snapMu.Unlock()

	w.stats.tick.Store(w.tick)
	w.stats.actors.Store(int64(len(w.actors)))
	w.stats.nodes.Store(int64(nodes))
	w.stats.beams.Store(int64(beams))

	sink := w.deps.Sink
	emit := func(e core.Event) {
		e.Tick = w.tick
		e.Time = now
		sink.Publish(e)
	}
	for _, e := range w.pending {
		emit(e)
	}
	w.pending = w.pending[:0]
	for _, a := range w.actors {
		for _, e := range a.Events() {
			emit(e)
		}
	}
}
