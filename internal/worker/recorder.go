package worker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/beamsim/beamsim/internal/channel"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/getsentry/sentry-go"
)

// ErrBacklogFull is returned when the backend has fallen behind and a
// record was dropped.
var ErrBacklogFull = errors.New("recorder backlog full")

// Recorder hands replay frames and input records from the physics
// goroutine to the backend on two writer goroutines. It implements the
// world's frame and input recorder interfaces.
type Recorder struct {
	backend storage.Backend
	log     *slog.Logger

	frames channel.Channel[replay.Frame]
	inputs channel.Channel[replay.InputRecord]

	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder creates a recorder with a backlog of size per stream.
func NewRecorder(backend storage.Backend, size int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		backend: backend,
		log:     logger,
		frames:  channel.New[replay.Frame](size),
		inputs:  channel.New[replay.InputRecord](size),
	}
}

// Start launches the writer goroutines.
func (r *Recorder) Start() {
	r.wg.Add(2)
	go forward[replay.Frame](r, "frame", r.frames, r.backend.RecordFrame)
	go forward[replay.InputRecord](r, "input", r.inputs, r.backend.RecordInput)
}

func forward[T any](r *Recorder, name string, ch channel.Receiver[T], write func(T) error) {
	defer r.wg.Done()
	defer sentry.Recover()

	failed := 0
	for v := range ch.Receive() {
		if err := write(v); err != nil {
			// first failure and then every thousandth
			if failed%1000 == 0 {
				r.log.Warn("record not written", "stream", name, "failed", failed+1, "error", err)
			}
			failed++
		}
	}
}

// RecordFrame queues f without blocking.
func (r *Recorder) RecordFrame(f replay.Frame) error {
	if !r.frames.TrySend(f) {
		r.dropped.Add(1)
		return ErrBacklogFull
	}
	return nil
}

// RecordInput queues rec without blocking.
func (r *Recorder) RecordInput(rec replay.InputRecord) error {
	if !r.inputs.TrySend(rec) {
		r.dropped.Add(1)
		return ErrBacklogFull
	}
	return nil
}

// Backlog returns the records waiting for the backend.
func (r *Recorder) Backlog() int {
	return r.frames.Len() + r.inputs.Len()
}

// Dropped returns how many records were refused on a full backlog.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting records and waits until the backlog is written.
// No Record call may run concurrently with or after Close.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.frames.Close()
		r.inputs.Close()
		r.wg.Wait()
	})
}
