// Package storage defines the session recording backends.
package storage

import (
	"errors"
	"time"

	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
)

// ErrNoSession is returned when a record arrives outside a session.
var ErrNoSession = errors.New("no active session")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording. Frames and inputs come from the physics goroutine through
	// the recorder, events through the dispatcher.
	RecordFrame(f replay.Frame) error
	RecordEvent(e core.Event) error
	RecordInput(r replay.InputRecord) error
	RecordPerformance(p core.PerformanceSample) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a replay server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// QueueReporter is implemented by backends with write queues.
type QueueReporter interface {
	QueueLengths() core.QueueLengths
}

// WriteDurationReporter is implemented by backends that write in batches.
type WriteDurationReporter interface {
	LastWriteDuration() time.Duration
}
