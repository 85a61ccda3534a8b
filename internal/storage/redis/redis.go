// Package redis implements storage.Backend on a Redis server. Records are
// published as streaming envelopes on per-session channels, and the latest
// frame and performance sample are kept under expiring keys for late
// subscribers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/beamsim/beamsim/pkg/streaming"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "beamsim"
	defaultTTL    = time.Hour
	opTimeout     = 2 * time.Second
)

// Keys names the channels and keys of one session.
type Keys struct {
	Sessions    string // channel: start_session and end_session envelopes
	Session     string // key: session JSON
	Frames      string // channel
	Frame       string // key: latest frame envelope
	Events      string // channel
	EventLog    string // list: every event envelope
	Inputs      string // channel
	Performance string // key: latest performance envelope
}

// KeysFor returns the names used for session id under prefix.
func KeysFor(prefix, id string) Keys {
	base := prefix + ":" + id
	return Keys{
		Sessions:    prefix + ":sessions",
		Session:     base + ":session",
		Frames:      base + ":frames",
		Frame:       base + ":frame",
		Events:      base + ":events",
		EventLog:    base + ":eventlog",
		Inputs:      base + ":inputs",
		Performance: base + ":performance",
	}
}

type sessionState struct {
	session core.Session
	keys    Keys
}

// Backend publishes session data to Redis.
type Backend struct {
	client *goredis.Client
	cfg    config.RedisConfig
	log    *slog.Logger
	state  atomic.Pointer[sessionState]
	failed atomic.Int64
}

// New creates the backend. The connection is checked by Init.
func New(cfg config.RedisConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Backend{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		cfg: cfg,
		log: logger.With("component", "storage", "backend", "redis"),
	}
}

// Init verifies the connection.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", b.cfg.Addr, err)
	}
	b.log.Info("Connected to redis", "addr", b.cfg.Addr, "db", b.cfg.DB)
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

// Keys returns the names of the current session, false outside one.
func (b *Backend) Keys() (Keys, bool) {
	s := b.state.Load()
	if s == nil {
		return Keys{}, false
	}
	return s.keys, true
}

// Failed returns how many publishes have failed since New.
func (b *Backend) Failed() int64 { return b.failed.Load() }

func (b *Backend) StartSession(s *core.Session) error {
	st := &sessionState{session: *s, keys: KeysFor(b.cfg.Prefix, s.ID)}
	session, err := json.Marshal(st.session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	msg, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: &st.session})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err = b.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, st.keys.Session, session, b.cfg.TTL)
		p.Del(ctx, st.keys.EventLog)
		p.Publish(ctx, st.keys.Sessions, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("start session %s: %w", s.ID, err)
	}
	b.state.Store(st)
	b.log.Info("session started", "session", s.ID, "channel", st.keys.Frames)
	return nil
}

func (b *Backend) EndSession() error {
	st := b.state.Swap(nil)
	if st == nil {
		return storage.ErrNoSession
	}
	msg, err := streaming.Marshal(streaming.TypeEndSession, streaming.EndSessionPayload{
		SessionID: st.session.ID,
		EndTime:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeEndSession, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, st.keys.Sessions, msg).Err(); err != nil {
		return fmt.Errorf("end session %s: %w", st.session.ID, err)
	}
	return nil
}

// publish sends one envelope on channel. With a non-empty key the envelope
// is also stored there (latest) or appended to it (list).
func (b *Backend) publish(msgType string, payload any, channel, key string, list bool) error {
	st := b.state.Load()
	if st == nil {
		return storage.ErrNoSession
	}
	msg, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err = b.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, channel, msg)
		switch {
		case key == "":
		case list:
			p.RPush(ctx, key, msg)
			p.Expire(ctx, key, b.cfg.TTL)
		default:
			p.Set(ctx, key, msg, b.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		if b.failed.Add(1) == 1 {
			b.log.Warn("redis publish failed", "type", msgType, "error", err)
		}
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

func (b *Backend) RecordFrame(f replay.Frame) error {
	st := b.state.Load()
	if st == nil {
		return storage.ErrNoSession
	}
	p := streaming.FramePayload{Tick: f.Tick, Time: f.Timestamp, Actors: make([]streaming.ActorFrame, len(f.Actors))}
	for i, a := range f.Actors {
		p.Actors[i] = streaming.ActorFrame{ID: a.ID, Positions: a.Positions}
	}
	return b.publish(streaming.TypeFrame, p, st.keys.Frames, st.keys.Frame, false)
}

func (b *Backend) RecordEvent(e core.Event) error {
	st := b.state.Load()
	if st == nil {
		return storage.ErrNoSession
	}
	return b.publish(streaming.TypeEvent, e, st.keys.Events, st.keys.EventLog, true)
}

func (b *Backend) RecordInput(r replay.InputRecord) error {
	st := b.state.Load()
	if st == nil {
		return storage.ErrNoSession
	}
	p := streaming.InputPayload{Tick: r.Tick, Time: r.Timestamp, Inputs: make([]streaming.ActorInput, len(r.Inputs))}
	for i, in := range r.Inputs {
		p.Inputs[i] = streaming.ActorInput{ID: in.ID, Input: in.Input}
	}
	return b.publish(streaming.TypeInput, p, st.keys.Inputs, "", false)
}

func (b *Backend) RecordPerformance(s core.PerformanceSample) error {
	st := b.state.Load()
	if st == nil {
		return storage.ErrNoSession
	}
	return b.publish(streaming.TypePerformance, s, st.keys.Frames, st.keys.Performance, false)
}

var _ storage.Backend = (*Backend)(nil)
