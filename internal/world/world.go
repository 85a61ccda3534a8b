// Package world owns the actor registry and the fixed-step loop. Host
// goroutines talk to it through non-blocking requests that are applied at
// the next tick boundary, and read it through a double-buffered snapshot.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beamsim/beamsim/internal/actor"
	"github.com/beamsim/beamsim/internal/ai"
	"github.com/beamsim/beamsim/internal/cache"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/hook"
	"github.com/beamsim/beamsim/internal/queue"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/internal/worker"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownActor = errors.New("unknown actor")
	ErrClosed       = errors.New("world closed")
	// ErrUnknownDefinition rejects a spawn naming a definition the store
	// does not hold.
	ErrUnknownDefinition = errors.New("unknown definition")
)

// Config holds the global simulation parameters.
type Config struct {
	// TickRate is the fixed physics rate in Hz.
	TickRate float32
	Gravity  mgl32.Vec3
	// ReplayRate is the rate in Hz at which frames reach the Recorder.
	ReplayRate float32
	// MaxTicksPerAdvance caps catch-up after a stall. Excess time is dropped.
	MaxTicksPerAdvance int
	// Workers > 1 steps actors in parallel on a worker pool.
	Workers int

	Water         bool
	WaterLevel    float32
	AirDrag       float32
	ForceSentinel float32

	Contact     contact.Params
	NodeContact contact.NodeContact
}

func DefaultConfig() Config {
	env := softbody.DefaultEnvironment()
	return Config{
		TickRate:           500,
		Gravity:            env.Gravity,
		ReplayRate:         20,
		MaxTicksPerAdvance: 1000,
		Workers:            1,
		ForceSentinel:      softbody.DefaultForceSentinel,
		Contact:            contact.DefaultParams(),
		NodeContact:        contact.DefaultNodeContact(),
	}
}

// Definitions resolves definition names for spawn requests.
type Definitions interface {
	Get(name string) (*definition.Definition, bool)
}

// Recorder receives throttled replay frames on the physics goroutine.
type Recorder interface {
	RecordFrame(f replay.Frame) error
}

// InputRecorder is implemented by recorders that also keep the input log.
// RecordInput gets every tick on which at least one input was applied.
type InputRecorder interface {
	RecordInput(r replay.InputRecord) error
}

// Dependencies are the collaborators a world calls into.
type Dependencies struct {
	Terrain     contact.Terrain
	Geometry    *contact.StaticGeometry
	Friction    *contact.FrictionTable
	Clock       func() time.Time
	Sink        core.EventSink
	Recorder    Recorder
	Logger      *slog.Logger
	Definitions Definitions
	// Templates caches validated definition configurations. Optional.
	Templates *cache.TemplateCache
	// Pool is used when Config.Workers > 1. A pool is created when nil.
	Pool *worker.Pool
}

// Stats is a cheap summary readable from any goroutine.
type Stats struct {
	Tick   uint64
	Actors int
	Nodes  int
	Beams  int
	Paused bool
	// Spawned and Rejected count spawn requests since creation.
	Spawned  int
	Rejected int
}

// World is the simulation. Step and Advance must be called from a single
// goroutine; every other method is safe for concurrent use.
type World struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger
	env  actor.Env

	actors []*actor.Actor
	index  map[core.ActorID]int
	ais    map[core.ActorID]*ai.VehicleAI

	requests     *queue.Queue[request]
	nextActor    atomic.Uint32
	nextAffector atomic.Uint64
	closed       atomic.Bool

	tick        uint64
	acc         float32
	paused      bool
	replayEvery uint64
	pending     []core.Event
	cands       []hook.Candidate
	inputs      []replay.ActorInput

	snapMu      sync.RWMutex
	front, back *core.Snapshot

	stats struct {
		tick          atomic.Uint64
		actors, nodes atomic.Int64
		beams         atomic.Int64
		paused        atomic.Bool
		spawned       cache.SafeCounter
		rejected      cache.SafeCounter
	}
	metrics *metrics
	ownPool bool
}

// New creates an empty world.
func New(cfg Config, deps Dependencies) (*World, error) {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %v", cfg.TickRate)
	}
	if cfg.ReplayRate <= 0 {
		cfg.ReplayRate = def.ReplayRate
	}
	if cfg.MaxTicksPerAdvance <= 0 {
		cfg.MaxTicksPerAdvance = def.MaxTicksPerAdvance
	}
	if cfg.ForceSentinel <= 0 {
		cfg.ForceSentinel = def.ForceSentinel
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = core.DiscardEvents
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Friction == nil {
		deps.Friction = contact.DefaultFrictionTable()
	}

	w := &World{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With("component", "world"),
		index:    make(map[core.ActorID]int),
		ais:      make(map[core.ActorID]*ai.VehicleAI),
		requests: queue.New[request](),
		front:    &core.Snapshot{},
		back:     &core.Snapshot{},
	}
	w.env = actor.Env{
		Forces: softbody.Environment{
			Gravity:       cfg.Gravity,
			Water:         cfg.Water,
			WaterLevel:    cfg.WaterLevel,
			AirDrag:       cfg.AirDrag,
			ForceSentinel: cfg.ForceSentinel,
		},
		Terrain:     deps.Terrain,
		Geometry:    deps.Geometry,
		Friction:    deps.Friction,
		Contact:     cfg.Contact,
		NodeContact: cfg.NodeContact,
		Dt:          1 / cfg.TickRate,
	}
	every := uint64(cfg.TickRate/cfg.ReplayRate + 0.5)
	if every == 0 {
		every = 1
	}
	w.replayEvery = every

	if cfg.Workers > 1 && deps.Pool == nil {
		w.deps.Pool = worker.NewPool(cfg.Workers)
		w.ownPool = true
	}

	m, err := newMetrics(w)
	if err != nil {
		return nil, err
	}
	w.metrics = m
	return w, nil
}

// Dt returns the fixed tick duration in seconds.
func (w *World) Dt() float32 { return w.env.Dt }

// Tick returns the number of completed ticks. Physics goroutine only.
func (w *World) Tick() uint64 { return w.tick }

func (w *World) Stats() Stats {
	return Stats{
		Tick:     w.stats.tick.Load(),
		Actors:   int(w.stats.actors.Load()),
		Nodes:    int(w.stats.nodes.Load()),
		Beams:    int(w.stats.beams.Load()),
		Paused:   w.stats.paused.Load(),
		Spawned:  w.stats.spawned.Value(),
		Rejected: w.stats.rejected.Value(),
	}
}

// Close rejects further requests and stops an owned worker pool.
func (w *World) Close() {
	if w.closed.Swap(true) {
		return
	}
	w.requests.Close()
	if w.ownPool {
		w.deps.Pool.Close()
	}
	if w.metrics != nil {
		w.metrics.unregister()
	}
}

// Read calls fn with the latest snapshot under a read lock. fn must not
// keep the pointer.
func (w *World) Read(fn func(s *core.Snapshot)) {
	w.snapMu.RLock()
	defer w.snapMu.RUnlock()
	fn(w.front)
}

// Latest returns a deep copy of the latest snapshot.
func (w *World) Latest() *core.Snapshot {
	w.snapMu.RLock()
	defer w.snapMu.RUnlock()
	return w.front.Clone()
}

// actor returns the registered actor with id. Physics goroutine only.
func (w *World) actor(id core.ActorID) (*actor.Actor, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.actors[i], true
}

// Actor exposes a registered actor to code running on the physics
// goroutine, such as tests and replay drivers.
func (w *World) Actor(id core.ActorID) (*actor.Actor, bool) { return w.actor(id) }

// Actors returns the registered ids in ascending order. Physics goroutine
// only.
func (w *World) Actors() []core.ActorID {
	ids := make([]core.ActorID, len(w.actors))
	for i, a := range w.actors {
		ids[i] = a.ID
	}
	return ids
}

func (w *World) lookup(id core.ActorID) (*softbody.Body, bool) {
	a, ok := w.actor(id)
	if !ok {
		return nil, false
	}
	return &a.Body, true
}

// clearSpace reports whether actor self fits at pos without its bounds
// touching another actor.
func (w *World) clearSpace(self core.ActorID, pos mgl32.Vec3) bool {
	a, ok := w.actor(self)
	if !ok {
		return false
	}
	half := a.Body.BoundsMax.Sub(a.Body.BoundsMin).Mul(0.5)
	r := half.Len()
	for _, o := range w.actors {
		if o.ID == self {
			continue
		}
		lo, hi := o.Body.BoundsMin, o.Body.BoundsMax
		inside := true
		for k := 0; k < 3; k++ {
			if pos[k]+r < lo[k] || pos[k]-r > hi[k] {
				inside = false
				break
			}
		}
		if inside {
			return false
		}
	}
	return true
}
