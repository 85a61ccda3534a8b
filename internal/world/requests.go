package world

import (
	"fmt"

	"github.com/beamsim/beamsim/internal/actor"
	"github.com/beamsim/beamsim/internal/affector"
	"github.com/beamsim/beamsim/internal/ai"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

type requestKind uint8

const (
	reqSpawn requestKind = iota
	reqRemove
	reqReset
	reqInput
	reqAddAffector
	reqMoveAffector
	reqRemoveAffector
	reqGravity
	reqPause
	reqResume
	reqHooks
	reqAttachAI
	reqDetachAI
	reqReplayFrame
)

var requestNames = [...]string{
	reqSpawn:          "spawn",
	reqRemove:         "remove",
	reqReset:          "reset",
	reqInput:          "input",
	reqAddAffector:    "add_affector",
	reqMoveAffector:   "move_affector",
	reqRemoveAffector: "remove_affector",
	reqGravity:        "gravity",
	reqPause:          "pause",
	reqResume:         "resume",
	reqHooks:          "hooks",
	reqAttachAI:       "attach_ai",
	reqDetachAI:       "detach_ai",
	reqReplayFrame:    "replay_frame",
}

func (k requestKind) String() string { return requestNames[k] }

type request struct {
	kind  requestKind
	actor core.ActorID

	spawn    core.SpawnRequest
	def      *definition.Definition
	input    core.InputSnapshot
	affector core.AffectorRequest
	affID    core.AffectorID
	vec      mgl32.Vec3
	group    int
	ai       *ai.VehicleAI
	frame    *replay.Frame
}

func (w *World) push(r request) error {
	if w.closed.Load() || !w.requests.Push(r) {
		return ErrClosed
	}
	return nil
}

// Spawn queues an actor built from the named definition and returns the id
// it will have. A definition error surfaces as a SpawnRejected event.
func (w *World) Spawn(req core.SpawnRequest) (core.ActorID, error) {
	id := core.ActorID(w.nextActor.Add(1))
	return id, w.push(request{kind: reqSpawn, actor: id, spawn: req})
}

// SpawnDefinition is Spawn for a definition not held by the store.
func (w *World) SpawnDefinition(def *definition.Definition, req core.SpawnRequest) (core.ActorID, error) {
	id := core.ActorID(w.nextActor.Add(1))
	req.Definition = def.Name
	return id, w.push(request{kind: reqSpawn, actor: id, spawn: req, def: def})
}

// Remove unloads an actor. Inputs and affector requests queued for it
// behind the removal are dropped.
func (w *World) Remove(id core.ActorID) error {
	return w.push(request{kind: reqRemove, actor: id})
}

func (w *World) Reset(id core.ActorID) error {
	return w.push(request{kind: reqReset, actor: id})
}

func (w *World) SetInput(id core.ActorID, in core.InputSnapshot) error {
	return w.push(request{kind: reqInput, actor: id, input: in})
}

// AddAffector queues a pin or scripted force and returns its id.
func (w *World) AddAffector(req core.AffectorRequest) (core.AffectorID, error) {
	id := core.AffectorID(w.nextAffector.Add(1))
	return id, w.push(request{kind: reqAddAffector, actor: req.Actor, affector: req, affID: id})
}

// MoveAffector replaces a pin's anchor at the next tick boundary.
func (w *World) MoveAffector(actorID core.ActorID, id core.AffectorID, pin mgl32.Vec3) error {
	return w.push(request{kind: reqMoveAffector, actor: actorID, affID: id, vec: pin})
}

func (w *World) RemoveAffector(actorID core.ActorID, id core.AffectorID) error {
	return w.push(request{kind: reqRemoveAffector, actor: actorID, affID: id})
}

func (w *World) SetGravity(g mgl32.Vec3) error {
	return w.push(request{kind: reqGravity, vec: g})
}

func (w *World) Pause() error  { return w.push(request{kind: reqPause}) }
func (w *World) Resume() error { return w.push(request{kind: reqResume}) }

// ToggleHooks toggles the hooks of group, or all hooks for hook.AllGroups.
func (w *World) ToggleHooks(id core.ActorID, group int) error {
	return w.push(request{kind: reqHooks, actor: id, group: group})
}

// AttachAI hands the actor to a waypoint follower. A follower without a
// ClearSpace callback gets one that checks the other actors' bounds.
func (w *World) AttachAI(id core.ActorID, v *ai.VehicleAI) error {
	return w.push(request{kind: reqAttachAI, actor: id, ai: v})
}

func (w *World) DetachAI(id core.ActorID) error {
	return w.push(request{kind: reqDetachAI, actor: id})
}

// ApplyReplayFrame moves replay-only and remote actors to the positions of
// a decoded frame at the next tick boundary.
func (w *World) ApplyReplayFrame(f replay.Frame) error {
	return w.push(request{kind: reqReplayFrame, frame: &f})
}

// drain applies queued requests in FIFO order.
func (w *World) drain() {
	reqs := w.requests.Drain()
	var removed map[core.ActorID]bool
	for i := range reqs {
		r := &reqs[i]
		if removed[r.actor] {
			switch r.kind {
			case reqInput, reqAddAffector, reqMoveAffector, reqRemoveAffector:
				continue
			}
		}
		switch r.kind {
		case reqSpawn:
			w.spawn(r)
		case reqGravity:
			w.env.Forces.Gravity = r.vec
		case reqPause:
			w.paused = true
		case reqResume:
			w.paused = false
		case reqReplayFrame:
			w.applyFrame(r.frame)
		default:
			a, ok := w.actor(r.actor)
			if !ok {
				w.log.Warn("request for unknown actor dropped", "actor", r.actor, "request", r.kind.String())
				continue
			}
			if r.kind == reqRemove {
				if removed == nil {
					removed = make(map[core.ActorID]bool)
				}
				removed[r.actor] = true
			}
			w.apply(a, r)
		}
		*r = request{}
	}
	w.stats.paused.Store(w.paused)
}

func (w *World) spawn(r *request) {
	tmpl, err := w.template(r)
	if err != nil {
		w.reject(r, err)
		return
	}
	a, err := actor.FromTemplate(r.actor, tmpl, actor.SpawnParams{
		Position:     r.spawn.Position,
		Rotation:     r.spawn.Rotation,
		State:        r.spawn.State,
		StartRunning: r.spawn.StartRunning,
	})
	if err != nil {
		w.reject(r, err)
		return
	}
	w.insert(a)
	w.stats.spawned.Inc()
	w.pending = append(w.pending, core.Event{Kind: core.EventActorSpawned, Actor: a.ID, Label: a.Name})
	w.log.Debug("actor spawned", "actor", a.ID, "definition", a.Name, "nodes", len(a.Body.Nodes))
}

// template resolves the validated configuration of a spawn request,
// through the template cache when the definition comes from the store.
func (w *World) template(r *request) (*definition.Definition, error) {
	if r.def != nil {
		return actor.Template(r.def, r.spawn.Config)
	}
	name, config := r.spawn.Definition, r.spawn.Config
	tc := w.deps.Templates
	if tc != nil {
		if t, ok := tc.Get(name, config); ok {
			return t, nil
		}
	}
	var def *definition.Definition
	ok := false
	if w.deps.Definitions != nil {
		def, ok = w.deps.Definitions.Get(name)
	}
	if !ok {
		return nil, fmt.Errorf("definition %q: %w", name, ErrUnknownDefinition)
	}
	t, err := actor.Template(def, config)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		tc.Put(name, config, t)
	}
	return t, nil
}

func (w *World) reject(r *request, err error) {
	w.stats.rejected.Inc()
	w.log.Warn("spawn rejected", "actor", r.actor, "definition", r.spawn.Definition, "error", err)
	w.pending = append(w.pending, core.Event{
		Kind:    core.EventSpawnRejected,
		Actor:   r.actor,
		Label:   r.spawn.Definition,
		Message: err.Error(),
	})
}

// insert keeps the registry sorted by id. Ids are handed out in increasing
// order, so this is an append unless spawns raced.
func (w *World) insert(a *actor.Actor) {
	i := len(w.actors)
	for i > 0 && w.actors[i-1].ID > a.ID {
		i--
	}
	w.actors = append(w.actors, nil)
	copy(w.actors[i+1:], w.actors[i:])
	w.actors[i] = a
	w.reindex(i)
}

func (w *World) reindex(from int) {
	for j := from; j < len(w.actors); j++ {
		w.index[w.actors[j].ID] = j
	}
}

func (w *World) remove(a *actor.Actor) {
	i := w.index[a.ID]
	w.pending = append(w.pending, a.Events()...)
	a.Destroy()
	copy(w.actors[i:], w.actors[i+1:])
	w.actors[len(w.actors)-1] = nil
	w.actors = w.actors[:len(w.actors)-1]
	delete(w.index, a.ID)
	delete(w.ais, a.ID)
	w.reindex(i)
	w.pending = append(w.pending, core.Event{Kind: core.EventActorRemoved, Actor: a.ID, Label: a.Name})
}

func (w *World) apply(a *actor.Actor, r *request) {
	switch r.kind {
	case reqRemove:
		w.remove(a)
	case reqReset:
		a.Reset()
	case reqInput:
		a.SetInput(r.input)
		in := r.input
		in.Commands = append([]float32(nil), in.Commands...)
		w.inputs = append(w.inputs, replay.ActorInput{ID: a.ID, Input: in})
	case reqAddAffector:
		for _, n := range r.affector.Nodes {
			if n < 0 || n >= len(a.Body.Nodes) {
				w.log.Warn("affector on missing node dropped", "actor", a.ID, "node", n)
				return
			}
		}
		a.Affectors.Add(affector.New(r.affID, r.affector))
	case reqMoveAffector:
		if !a.Affectors.Move(r.affID, r.vec) {
			w.log.Warn("move for unknown affector dropped", "actor", a.ID, "affector", r.affID)
		}
	case reqRemoveAffector:
		if !a.Affectors.Remove(r.affID) {
			w.log.Warn("remove for unknown affector dropped", "actor", a.ID, "affector", r.affID)
		}
	case reqHooks:
		a.Hooks.Toggle(r.group, a.ID, &a.Body, w.candidates())
	case reqAttachAI:
		if r.ai.ClearSpace == nil {
			r.ai.ClearSpace = w.clearSpace
		}
		w.ais[a.ID] = r.ai
	case reqDetachAI:
		delete(w.ais, a.ID)
	}
}

func (w *World) applyFrame(f *replay.Frame) {
	for _, block := range f.Actors {
		a, ok := w.actor(block.ID)
		if !ok {
			w.log.Warn("replay frame for unknown actor", "actor", block.ID, "tick", f.Tick)
			continue
		}
		if len(block.Positions) != len(a.Body.Nodes) {
			w.log.Warn("replay frame node count mismatch", "actor", block.ID, "want", len(a.Body.Nodes), "got", len(block.Positions))
			continue
		}
		a.SetNodePositions(block.Positions, w.env.Dt)
	}
}
