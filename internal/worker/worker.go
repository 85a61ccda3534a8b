// Package worker moves recording work off the physics goroutine. The
// Manager subscribes the storage backend and the telemetry sink to world
// events and owns the Recorder that carries replay frames and input records
// to the backend. Pool runs per-actor steps in parallel.
package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/beamsim/beamsim/internal/channel"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/getsentry/sentry-go"
)

const (
	defaultFrameBuffer     = 1024
	defaultTelemetryBuffer = 64
)

// TelemetrySink is the part of the telemetry store the Manager feeds.
type TelemetrySink interface {
	WriteEvent(e core.Event) error
	WriteTelemetry(samples []core.ActorTelemetry) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend storage.Backend
	// Telemetry is optional.
	Telemetry TelemetrySink
	Logger    *slog.Logger
	// FrameBuffer bounds the recorder backlog per stream.
	FrameBuffer int
}

// Manager manages worker goroutines
type Manager struct {
	deps     Dependencies
	log      *slog.Logger
	recorder *Recorder

	labelsMu sync.RWMutex
	labels   map[core.ActorID]string

	telemetry channel.Channel[[]core.ActorTelemetry]
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FrameBuffer <= 0 {
		deps.FrameBuffer = defaultFrameBuffer
	}
	log := deps.Logger.With("component", "worker")
	return &Manager{
		deps:      deps,
		log:       log,
		recorder:  NewRecorder(deps.Backend, deps.FrameBuffer, log),
		labels:    make(map[core.ActorID]string),
		telemetry: channel.New[[]core.ActorTelemetry](defaultTelemetryBuffer),
	}
}

// Start launches the recorder and telemetry goroutines.
func (m *Manager) Start() {
	m.recorder.Start()
	if m.deps.Telemetry == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer sentry.Recover()
		for samples := range m.telemetry.Receive() {
			if err := m.deps.Telemetry.WriteTelemetry(samples); err != nil {
				m.log.Warn("telemetry not written", "error", err)
			}
		}
	}()
}

// Recorder is handed to the world as its frame and input recorder.
func (m *Manager) Recorder() *Recorder { return m.recorder }

// SampleTelemetry queues the drivetrain summary of s for the telemetry
// sink. It never blocks; a sample is skipped while the sink is behind.
func (m *Manager) SampleTelemetry(s *core.Snapshot) {
	if m.deps.Telemetry == nil || len(s.Actors) == 0 {
		return
	}
	if !m.telemetry.TrySend(core.Telemetry(s, m.Labels())) {
		m.log.Debug("telemetry sample skipped", "tick", s.Tick)
	}
}

// Labels returns the definition name of every live actor.
func (m *Manager) Labels() map[core.ActorID]string {
	m.labelsMu.RLock()
	defer m.labelsMu.RUnlock()
	out := make(map[core.ActorID]string, len(m.labels))
	for id, name := range m.labels {
		out[id] = name
	}
	return out
}

// QueueLengths adds the recorder backlog to the backend's own queues.
func (m *Manager) QueueLengths() core.QueueLengths {
	var q core.QueueLengths
	if r, ok := m.deps.Backend.(storage.QueueReporter); ok {
		q = r.QueueLengths()
	}
	q.Frames += m.recorder.frames.Len()
	q.Inputs += m.recorder.inputs.Len()
	return q
}

// LastWriteDuration returns the duration of the backend's last write
// cycle, 0 for backends that do not batch.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(storage.WriteDurationReporter); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// Close drains the recorder and the telemetry queue. Call it after the
// world has stopped stepping.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.recorder.Close()
		m.telemetry.Close()
		m.wg.Wait()
	})
}
