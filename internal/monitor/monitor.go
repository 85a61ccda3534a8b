// Package monitor samples the simulation loop periodically. Each sample is
// rendered to a status file, recorded through the storage backend and
// optionally sent to the telemetry store.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/beamsim/beamsim/internal/session"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
)

// StatsSource is the world.
type StatsSource interface {
	Stats() world.Stats
}

// QueueSource reports recording backlog, see worker.Manager.
type QueueSource interface {
	QueueLengths() core.QueueLengths
	LastWriteDuration() time.Duration
}

// PerformanceWriter receives every sample in addition to the backend.
type PerformanceWriter interface {
	WritePerformance(p core.PerformanceSample) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	World   StatsSource
	Session *session.Context
	Queues  QueueSource
	// Backend and Telemetry are optional.
	Backend    storage.Backend
	Telemetry  PerformanceWriter
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	log       *slog.Logger
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}

	lastTick uint64
	lastTime time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		deps: deps,
		log:  deps.Logger.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample reads the world and the queues. TickRate is the rate achieved
// since the previous Sample; the first one reports 0.
func (s *Service) Sample() core.PerformanceSample {
	now := s.deps.Clock()
	st := s.deps.World.Stats()
	p := core.PerformanceSample{
		Time:   now,
		Tick:   st.Tick,
		Actors: st.Actors,
		Nodes:  st.Nodes,
		Beams:  st.Beams,
		Paused: st.Paused,
	}
	if s.deps.Queues != nil {
		p.Queues = s.deps.Queues.QueueLengths()
		p.LastWriteDuration = s.deps.Queues.LastWriteDuration()
	}
	if !s.lastTime.IsZero() && st.Tick >= s.lastTick {
		if dt := now.Sub(s.lastTime).Seconds(); dt > 0 {
			p.TickRate = float32(float64(st.Tick-s.lastTick) / dt)
		}
	}
	s.lastTick, s.lastTime = st.Tick, now
	return p
}

// StatusLines renders a sample for the status file.
func StatusLines(sess core.Session, active bool, p core.PerformanceSample) []string {
	lines := []string{
		fmt.Sprintf("session: %s (%s) active=%t", sess.Name, sess.ID, active),
		fmt.Sprintf("tick: %d rate: %.1f Hz paused=%t", p.Tick, p.TickRate, p.Paused),
		fmt.Sprintf("actors: %d nodes: %d beams: %d", p.Actors, p.Nodes, p.Beams),
	}
	queues, err := json.MarshalIndent(p.Queues, "", "  ")
	if err != nil {
		queues = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	lines = append(lines, string(queues))
	lines = append(lines, fmt.Sprintf("last write: %s", p.LastWriteDuration))
	return lines
}

// collect takes one sample and delivers it.
func (s *Service) collect(statusFile *os.File) {
	p := s.Sample()
	var sess core.Session
	active := false
	if s.deps.Session != nil {
		sess, active = s.deps.Session.Get()
	}

	if statusFile != nil {
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		for _, line := range StatusLines(sess, active, p) {
			_, _ = statusFile.WriteString(line + "\n")
		}
	}

	if !active {
		return
	}
	if s.deps.Backend != nil {
		if err := s.deps.Backend.RecordPerformance(p); err != nil {
			s.log.Debug("performance sample not recorded", "error", err)
		}
	}
	if s.deps.Telemetry != nil {
		if err := s.deps.Telemetry.WritePerformance(p); err != nil {
			s.log.Debug("performance sample not sent", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.log.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.collect(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
