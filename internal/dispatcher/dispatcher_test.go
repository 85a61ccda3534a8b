package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got core.Event
	d.Register(core.EventBeamBroken, func(e core.Event) error {
		got = e
		return nil
	})

	require.NoError(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken, Actor: 3, Index: 12}))
	assert.Equal(t, core.ActorID(3), got.Actor)
	assert.Equal(t, 12, got.Index)
}

func TestDispatcher_NoHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	err := d.Dispatch(core.Event{Kind: core.EventHookLocked})
	assert.ErrorIs(t, err, ErrNoHandler)

	d.Publish(core.Event{Kind: core.EventHookLocked})
	assert.False(t, logger.contains("event not handled"))
}

func TestDispatcher_HandlersRunInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	d.Register(core.EventActorSpawned, func(core.Event) error { order = append(order, "a"); return nil })
	d.Register(core.EventActorSpawned, func(core.Event) error { order = append(order, "b"); return errors.New("b failed") })
	d.Register(core.EventActorSpawned, func(core.Event) error { order = append(order, "c"); return nil })

	err := d.Dispatch(core.Event{Kind: core.EventActorSpawned})
	assert.EqualError(t, err, "b failed")
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDispatcher_PublishLogsFailures(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(core.EventActorFrozen, func(core.Event) error { return errors.New("disk full") })

	d.Publish(core.Event{Kind: core.EventActorFrozen, Actor: 9})
	assert.True(t, logger.contains("disk full"))
}

func TestDispatcher_RegisterAll(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var kinds []core.EventKind
	d.RegisterAll("recorder", func(e core.Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	})

	for _, k := range core.EventKinds() {
		assert.True(t, d.HasHandler(k), k.String())
		require.NoError(t, d.Dispatch(core.Event{Kind: k}))
	}
	assert.Equal(t, core.EventKinds(), kinds)
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var count atomic.Int32
	d.Register(core.EventBeamBroken, func(core.Event) error {
		count.Add(1)
		return nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken, Index: i}))
	}
	d.Close()
	assert.Equal(t, int32(5), count.Load())
}

func TestDispatcher_BufferedKeepsOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var mu sync.Mutex
	var seen []int
	d.RegisterAll("ordered", func(e core.Event) error {
		mu.Lock()
		seen = append(seen, e.Index)
		mu.Unlock()
		return nil
	}, Buffered(100))

	for i := 0; i < 50; i++ {
		kind := core.EventBeamBroken
		if i%2 == 1 {
			kind = core.EventSlideBroken
		}
		d.Publish(core.Event{Kind: kind, Index: i})
	}
	d.Close()

	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(core.EventBeamBroken, func(core.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, Buffered(1))

	require.NoError(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken}))
	<-started
	require.NoError(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken}))

	err := d.Dispatch(core.Event{Kind: core.EventBeamBroken})
	assert.ErrorIs(t, err, ErrQueueFull)
	close(release)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var count atomic.Int32
	d.Register(core.EventBeamBroken, func(core.Event) error {
		time.Sleep(time.Millisecond)
		count.Add(1)
		return nil
	}, Buffered(1), Blocking())

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken}))
	}
	d.Close()
	assert.Equal(t, int32(10), count.Load())
}

func TestDispatcher_ClosedRejects(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(core.EventBeamBroken, func(core.Event) error { return nil }, Buffered(4))

	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Dispatch(core.Event{Kind: core.EventBeamBroken}), ErrClosed)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(core.EventHookLocked, func(core.Event) error { return nil }, Logged())
	d.Register(core.EventHookUnlocked, func(core.Event) error { return errors.New("boom") }, Logged(), Named("hooks"))

	require.NoError(t, d.Dispatch(core.Event{Kind: core.EventHookLocked}))
	assert.True(t, logger.contains("DEBUG: handling event"))
	assert.True(t, logger.contains("DEBUG: event complete"))

	require.Error(t, d.Dispatch(core.Event{Kind: core.EventHookUnlocked}))
	assert.True(t, logger.contains("ERROR: event failed [handler hooks"))
}

func TestDispatcher_BufferedFailureIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(core.EventPinSevered, func(core.Event) error { return errors.New("gone") }, Buffered(2))

	require.NoError(t, d.Dispatch(core.Event{Kind: core.EventPinSevered}))
	d.Close()
	assert.True(t, logger.contains("buffered handler failed"))
}
