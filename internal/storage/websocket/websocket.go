package websocket

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/beamsim/beamsim/pkg/streaming"
)

// DefaultAckTimeout bounds the wait for start and end acknowledgements.
const DefaultAckTimeout = 10 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL            string
	Secret         string
	ReconnectDelay time.Duration
	AckTimeout     time.Duration
}

// Backend streams session data over WebSocket to a viewer.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	link    *link
	cfg     Config
	session atomic.Pointer[core.Session]
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	return &Backend{
		link: newLink(logger.With("component", "storage", "backend", "websocket"), cfg.ReconnectDelay),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.link.close()
}

// sendEnvelope queues one message without waiting for the viewer.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	if b.session.Load() == nil {
		return storage.ErrNoSession
	}
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	b.link.enqueue(data)
	return nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	cp := *s
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: &cp})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}

	b.link.setGreeting(data)
	b.session.Store(&cp)
	return b.link.request(data, streaming.TypeStartSession, b.cfg.AckTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	s := b.session.Swap(nil)
	if s == nil {
		return storage.ErrNoSession
	}
	data, err := streaming.Marshal(streaming.TypeEndSession, streaming.EndSessionPayload{
		SessionID: s.ID,
		EndTime:   time.Now(),
	})
	if err == nil {
		err = b.link.request(data, streaming.TypeEndSession, b.cfg.AckTimeout)
	}

	b.link.setGreeting(nil)
	return err
}

func (b *Backend) RecordFrame(f replay.Frame) error {
	p := streaming.FramePayload{Tick: f.Tick, Time: f.Timestamp, Actors: make([]streaming.ActorFrame, len(f.Actors))}
	for i, a := range f.Actors {
		p.Actors[i] = streaming.ActorFrame{ID: a.ID, Positions: a.Positions}
	}
	return b.sendEnvelope(streaming.TypeFrame, p)
}

func (b *Backend) RecordEvent(e core.Event) error {
	return b.sendEnvelope(streaming.TypeEvent, e)
}

func (b *Backend) RecordInput(r replay.InputRecord) error {
	p := streaming.InputPayload{Tick: r.Tick, Time: r.Timestamp, Inputs: make([]streaming.ActorInput, len(r.Inputs))}
	for i, in := range r.Inputs {
		p.Inputs[i] = streaming.ActorInput{ID: in.ID, Input: in.Input}
	}
	return b.sendEnvelope(streaming.TypeInput, p)
}

func (b *Backend) RecordPerformance(s core.PerformanceSample) error {
	return b.sendEnvelope(streaming.TypePerformance, s)
}

// QueueLengths reports the messages waiting for the write loop as frames.
func (b *Backend) QueueLengths() core.QueueLengths {
	return core.QueueLengths{Frames: len(b.link.outbox)}
}

// Dropped returns how many messages were discarded on a full send queue.
func (b *Backend) Dropped() int64 { return b.link.dropped.Load() }

var (
	_ storage.Backend       = (*Backend)(nil)
	_ storage.QueueReporter = (*Backend)(nil)
)
