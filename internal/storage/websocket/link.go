package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beamsim/beamsim/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	outboxSize  = 10_000
	maxAttempts = 10
	maxBackoff  = 30 * time.Second
	writeWait   = 10 * time.Second
	pingPeriod  = 20 * time.Second
)

var errReaderGone = errors.New("viewer read side closed")

// link owns the connection to one viewer. A supervisor goroutine runs a
// reader and a writer per connection generation and redials when either
// side fails. Everything sent goes through outbox so only the writer
// touches the socket.
type link struct {
	endpoint string
	delay    time.Duration
	log      *slog.Logger

	outbox   chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}

	mu      sync.Mutex
	running bool
	// greeting is written first on every reconnected generation.
	greeting []byte
	waiters  map[string]chan struct{}

	dropped atomic.Int64
}

func newLink(logger *slog.Logger, delay time.Duration) *link {
	if delay <= 0 {
		delay = time.Second
	}
	return &link{
		delay:   delay,
		log:     logger,
		outbox:  make(chan []byte, outboxSize),
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
		waiters: make(map[string]chan struct{}),
	}
}

// open resolves the endpoint, dials once and hands the connection to the
// supervisor. Only the first dial is reported to the caller.
func (l *link) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	l.endpoint = u.String()

	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	go l.supervise(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(l.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) supervise(conn *ws.Conn) {
	defer close(l.exited)
	resumed := false
	for conn != nil {
		err := l.serve(conn, resumed)
		if l.stopping() {
			return
		}
		l.log.Warn("viewer connection lost", "error", err)
		conn = l.redial()
		resumed = true
	}
}

// serve runs one generation and blocks until it ends.
func (l *link) serve(conn *ws.Conn, resumed bool) error {
	var greeting []byte
	if resumed {
		l.mu.Lock()
		greeting = l.greeting
		l.mu.Unlock()
	}

	lost := make(chan struct{})
	go func() {
		defer close(lost)
		l.read(conn)
	}()

	err := l.write(conn, greeting, lost)
	_ = conn.Close()
	<-lost
	return err
}

func (l *link) write(conn *ws.Conn, greeting []byte, lost <-chan struct{}) error {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if greeting != nil {
		if err := writeText(conn, greeting); err != nil {
			return fmt.Errorf("session resume: %w", err)
		}
	}
	for {
		select {
		case <-l.stop:
			bye := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
			_ = conn.WriteControl(ws.CloseMessage, bye, time.Now().Add(time.Second))
			return nil
		case <-lost:
			return errReaderGone
		case data := <-l.outbox:
			if err := writeText(conn, data); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func writeText(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// read routes acks to their waiters until the socket fails.
func (l *link) read(conn *ws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ack streaming.AckMessage
		if json.Unmarshal(msg, &ack) != nil || ack.Type != streaming.TypeAck {
			l.log.Debug("ignoring viewer message", "size", len(msg))
			continue
		}
		l.mu.Lock()
		if ch, ok := l.waiters[ack.For]; ok {
			close(ch)
			delete(l.waiters, ack.For)
		}
		l.mu.Unlock()
	}
}

// redial retries with doubling delays. It returns nil once stopped or out
// of attempts.
func (l *link) redial() *ws.Conn {
	backoff := l.delay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		l.log.Info("reconnecting to viewer", "attempt", attempt, "backoff", backoff)
		select {
		case <-l.stop:
			return nil
		case <-time.After(backoff):
		}
		conn, err := l.dial()
		if err == nil {
			l.log.Info("viewer reconnected", "attempt", attempt)
			return conn
		}
		l.log.Warn("reconnect failed", "attempt", attempt, "error", err)
		backoff = min(backoff*2, maxBackoff)
	}
	l.log.Error("giving up on viewer", "attempts", maxAttempts)
	return nil
}

func (l *link) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *link) setGreeting(data []byte) {
	l.mu.Lock()
	l.greeting = data
	l.mu.Unlock()
}

// enqueue never blocks. A full outbox drops the message.
func (l *link) enqueue(data []byte) {
	select {
	case l.outbox <- data:
	default:
		if n := l.dropped.Add(1); n == 1 || n%1000 == 0 {
			l.log.Warn("viewer outbox full, dropping messages", "dropped", n)
		}
	}
}

// request enqueues data and waits for the viewer to ack the given type.
func (l *link) request(data []byte, kind string, timeout time.Duration) error {
	acked := make(chan struct{})
	l.mu.Lock()
	l.waiters[kind] = acked
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.waiters[kind] == acked {
			delete(l.waiters, kind)
		}
		l.mu.Unlock()
	}()

	l.enqueue(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-acked:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", kind)
	case <-l.stop:
		return fmt.Errorf("connection closed while waiting for ack of %q", kind)
	}
}

// close stops the supervisor and waits for it. Safe to call repeatedly.
func (l *link) close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if running {
		<-l.exited
	}
	return nil
}
