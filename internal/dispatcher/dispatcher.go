// Package dispatcher routes world events to the handlers registered for
// their kind, optionally through bounded per-handler queues so slow
// consumers stay off the physics goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNoHandler = errors.New("no handler registered")
	ErrQueueFull = errors.New("queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// HandlerFunc processes one event.
type HandlerFunc func(core.Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	name       string
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Named labels the handler in logs and metrics. Defaults to the event kind.
func Named(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

type buffer struct {
	name string
	ch   chan core.Event
}

// Dispatcher routes events to registered handlers. Register everything
// before the first Publish.
type Dispatcher struct {
	handlers map[core.EventKind][]HandlerFunc
	logger   Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
	reg       metric.Registration

	mu      sync.RWMutex
	buffers []buffer
	closed  bool
	wg      sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[core.EventKind][]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	d.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, b := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(b.ch)),
					metric.WithAttributes(attribute.String("handler", b.name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total events whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// A kind may have several handlers; they run in registration order.
func (d *Dispatcher) Register(kind core.EventKind, h HandlerFunc, opts ...Option) {
	cfg := &config{name: kind.String()}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(cfg.name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(cfg.name, cfg.bufferSize, cfg.blocking, handler)
	}

	d.handlers[kind] = append(d.handlers[kind], handler)
}

// RegisterAll registers one handler for every event kind. A buffered
// handler shares a single queue across kinds, so it sees events in
// publication order.
func (d *Dispatcher) RegisterAll(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{name: name}
	for _, opt := range opts {
		opt(cfg)
	}
	handler := h
	if cfg.logged {
		handler = d.withLogging(cfg.name, handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(cfg.name, cfg.bufferSize, cfg.blocking, handler)
	}
	for _, k := range core.EventKinds() {
		d.handlers[k] = append(d.handlers[k], handler)
	}
}

// Dispatch routes an event to its registered handlers and returns the
// joined handler errors.
func (d *Dispatcher) Dispatch(e core.Event) error {
	hs, ok := d.handlers[e.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, e.Kind)
	}
	var errs []error
	for _, h := range hs {
		if err := h(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish implements core.EventSink. Kinds without handlers are ignored;
// handler failures are logged.
func (d *Dispatcher) Publish(e core.Event) {
	if err := d.Dispatch(e); err != nil && !errors.Is(err, ErrNoHandler) {
		d.logger.Error("event not handled", "kind", e.Kind.String(), "actor", e.Actor, "error", err)
	}
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind core.EventKind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Close stops accepting buffered events and waits for the queues to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, b := range d.buffers {
		close(b.ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
	if d.reg != nil {
		_ = d.reg.Unregister()
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	ch := make(chan core.Event, size)

	d.mu.Lock()
	d.buffers = append(d.buffers, buffer{name: name, ch: ch})
	d.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("handler", name))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range ch {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, attrs)
				d.logger.Error("buffered handler failed", "handler", name, "kind", e.Kind.String(), "error", err)
			}
			d.processed.Add(context.Background(), 1, attrs)
		}
	}()

	// The read lock keeps Close from closing ch under a pending send.
	if blocking {
		return func(e core.Event) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			if d.closed {
				return ErrClosed
			}
			ch <- e
			return nil
		}
	}

	return func(e core.Event) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return ErrClosed
		}
		select {
		case ch <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, attrs)
			return fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e core.Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "handler", name, "kind", e.Kind.String(), "actor", e.Actor)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "handler", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "handler", name, "duration", time.Since(start))
		}

		return err
	}
}
