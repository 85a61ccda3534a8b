// Package gormstorage implements storage.Backend on any gorm database. Records
// are converted and stamped with the session id on arrival, pushed to
// per-table queues and written in batches by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/model"
	"github.com/beamsim/beamsim/internal/model/convert"
	"github.com/beamsim/beamsim/internal/queue"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
	"gorm.io/gorm"
)

// DefaultInterval is the writer period when none is configured.
const DefaultInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB may be nil, in which case records only queue up. Used by tests.
	DB     *gorm.DB
	Logger *slog.Logger
	// Origin enables ActorState samples. Without it frames are stored
	// but not projected.
	Origin   *geo.Origin
	Interval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Actors      *queue.Queue[model.Actor]
	Removals    *queue.Queue[model.Actor]
	Frames      *queue.Queue[model.ReplayFrame]
	ActorStates *queue.Queue[model.ActorState]
	Events      *queue.Queue[model.EventRecord]
	Inputs      *queue.Queue[model.InputRecord]
	Performance *queue.Queue[model.PerformanceSample]
}

func newQueues() *queues {
	return &queues{
		Actors:      queue.New[model.Actor](),
		Removals:    queue.New[model.Actor](),
		Frames:      queue.New[model.ReplayFrame](),
		ActorStates: queue.New[model.ActorState](),
		Events:      queue.New[model.EventRecord](),
		Inputs:      queue.New[model.InputRecord](),
		Performance: queue.New[model.PerformanceSample](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Uint64

	samplerMu sync.Mutex
	sampler   *convert.StateSampler

	// writeMu serialises write cycles between the writer and EndSession.
	writeMu   sync.Mutex
	lastWrite atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Backend{
		deps:   deps,
		log:    deps.Logger.With("component", "storage", "backend", "gorm"),
		queues: newQueues(),
	}
}

// Init starts the background writer.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writer()
	return nil
}

// Close stops the writer and flushes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return b.flush()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB { return b.deps.DB }

// StartSession inserts the session row synchronously so later records can
// reference its id.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if b.deps.DB != nil {
		if err := b.deps.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
	} else {
		row.ID = uint(b.sessionID.Load()) + 1
	}
	b.samplerMu.Lock()
	if b.deps.Origin != nil {
		b.sampler = convert.NewStateSampler(b.deps.Origin)
	}
	b.samplerMu.Unlock()
	b.sessionID.Store(uint64(row.ID))
	b.log.Info("session started", "session", s.ID, "row", row.ID)
	return nil
}

// SessionID returns the row id of the current session, 0 outside one.
func (b *Backend) SessionID() uint { return uint(b.sessionID.Load()) }

// EndSession writes everything queued and stamps the session's end time.
func (b *Backend) EndSession() error {
	id := uint(b.sessionID.Swap(0))
	if id == 0 {
		return storage.ErrNoSession
	}
	err := b.flush()
	if b.deps.DB != nil {
		end := time.Now()
		if uerr := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Update("end_time", end).Error; uerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session: %w", uerr))
		}
	}
	return err
}

func (b *Backend) session() (uint, error) {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return 0, storage.ErrNoSession
	}
	return id, nil
}

// RecordFrame queues the encoded frame and, with an origin, one map sample
// per actor.
func (b *Backend) RecordFrame(f replay.Frame) error {
	id, err := b.session()
	if err != nil {
		return err
	}
	row := convert.CoreToReplayFrame(f)
	row.SessionID = id
	b.queues.Frames.Push(row)

	b.samplerMu.Lock()
	var states []model.ActorState
	if b.sampler != nil {
		states, err = b.sampler.Sample(&f)
	}
	b.samplerMu.Unlock()
	if err != nil {
		return err
	}
	for i := range states {
		states[i].SessionID = id
	}
	b.queues.ActorStates.Push(states...)
	return nil
}

// RecordEvent queues the event row. Spawns and removals also maintain the
// actor table.
func (b *Backend) RecordEvent(e core.Event) error {
	id, err := b.session()
	if err != nil {
		return err
	}
	row := convert.CoreToEvent(e)
	row.SessionID = id
	b.queues.Events.Push(row)

	switch e.Kind {
	case core.EventActorSpawned:
		a := convert.CoreToActor(e)
		a.SessionID = id
		b.queues.Actors.Push(a)
	case core.EventActorRemoved:
		tick := e.Tick
		b.queues.Removals.Push(model.Actor{SessionID: id, ActorID: uint32(e.Actor), RemoveTick: &tick})
		b.samplerMu.Lock()
		if b.sampler != nil {
			b.sampler.Forget(e.Actor)
		}
		b.samplerMu.Unlock()
	}
	return nil
}

func (b *Backend) RecordInput(r replay.InputRecord) error {
	id, err := b.session()
	if err != nil {
		return err
	}
	rows := convert.CoreToInputs(r)
	for i := range rows {
		rows[i].SessionID = id
	}
	b.queues.Inputs.Push(rows...)
	return nil
}

func (b *Backend) RecordPerformance(p core.PerformanceSample) error {
	id, err := b.session()
	if err != nil {
		return err
	}
	row := convert.CoreToPerformance(p)
	row.SessionID = id
	b.queues.Performance.Push(row)
	return nil
}

// QueueLengths reports the pending rows per queue.
func (b *Backend) QueueLengths() core.QueueLengths {
	return core.QueueLengths{
		Frames:       b.queues.Frames.Len(),
		Events:       b.queues.Events.Len(),
		Inputs:       b.queues.Inputs.Len(),
		ActorStates:  b.queues.ActorStates.Len(),
		Performances: b.queues.Performance.Len(),
	}
}

// LastWriteDuration returns the duration of the last write cycle.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("batch insert failed", "table", name, "rows", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// writeRemovals stamps remove ticks on already written actor rows.
func (b *Backend) writeRemovals() error {
	if b.queues.Removals.Empty() {
		return nil
	}
	var errs []error
	for _, a := range b.queues.Removals.Drain() {
		err := b.deps.DB.Model(&model.Actor{}).
			Where("session_id = ? AND actor_id = ?", a.SessionID, a.ActorID).
			Update("remove_tick", *a.RemoveTick).Error
		if err != nil {
			errs = append(errs, fmt.Errorf("actor %d removal: %w", a.ActorID, err))
		}
	}
	return errors.Join(errs...)
}

// flush runs one write cycle. Without a DB it is a no-op.
func (b *Backend) flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	db := b.deps.DB
	err := errors.Join(
		writeQueue(db, b.queues.Actors, "actors", b.log),
		b.writeRemovals(),
		writeQueue(db, b.queues.Frames, "replay frames", b.log),
		writeQueue(db, b.queues.ActorStates, "actor states", b.log),
		writeQueue(db, b.queues.Events, "events", b.log),
		writeQueue(db, b.queues.Inputs, "inputs", b.log),
		writeQueue(db, b.queues.Performance, "performance samples", b.log),
	)
	b.lastWrite.Store(int64(time.Since(start)))
	return err
}

// writer periodically drains queues into the DB.
func (b *Backend) writer() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				b.log.Warn("write cycle incomplete", "error", err)
			}
		}
	}
}

// Ensure Backend implements storage interfaces
var (
	_ storage.Backend               = (*Backend)(nil)
	_ storage.QueueReporter         = (*Backend)(nil)
	_ storage.WriteDurationReporter = (*Backend)(nil)
)
