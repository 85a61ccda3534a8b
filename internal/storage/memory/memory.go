// Package memory keeps a whole session in memory and exports it on
// EndSession: a binary replay of the frames, one of the inputs, and a JSON
// summary with events, performance samples and GeoJSON tracks.
package memory

import (
	"sync"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
)

// Backend stores session data in memory and exports to files
type Backend struct {
	cfg    config.MemoryConfig
	origin *geo.Origin
	now    func() time.Time

	session *core.Session
	endTime time.Time

	frames      []replay.Frame
	inputs      []replay.InputRecord
	events      []core.Event
	performance []core.PerformanceSample

	lastExportPath string
	lastReplayPath string
	lastMeta       core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend. origin may be nil, in which case the
// export carries no tracks.
func New(cfg config.MemoryConfig, origin *geo.Origin) *Backend {
	return &Backend{cfg: cfg, origin: origin, now: time.Now}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops anything kept from
// the previous one.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.endTime = time.Time{}
	b.frames = nil
	b.inputs = nil
	b.events = nil
	b.performance = nil
	return nil
}

// EndSession writes the export files and closes the session.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.endTime = b.now()
	err := b.export()
	b.session = nil
	return err
}

// RecordFrame keeps a replay frame. Frames own their position slices.
func (b *Backend) RecordFrame(f replay.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.frames = append(b.frames, f)
	return nil
}

func (b *Backend) RecordEvent(e core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.events = append(b.events, e)
	return nil
}

func (b *Backend) RecordInput(r replay.InputRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.inputs = append(b.inputs, r)
	return nil
}

func (b *Backend) RecordPerformance(p core.PerformanceSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.performance = append(b.performance, p)
	return nil
}

// Counts returns the number of frames, inputs, events and performance
// samples held for the current session.
func (b *Backend) Counts() (frames, inputs, events, performance int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames), len(b.inputs), len(b.events), len(b.performance)
}

// GetExportedFilePath returns the path of the last JSON export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetReplayFilePath returns the path of the last binary replay export.
func (b *Backend) GetReplayFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastReplayPath
}

// GetExportMetadata describes the last export for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastMeta
}

// Ensure Backend implements storage interfaces
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Uploadable = (*Backend)(nil)
)
