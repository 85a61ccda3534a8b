package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedTrySend(t *testing.T) {
	b := NewBuffered[int](2)
	assert.True(t, b.TrySend(1))
	assert.True(t, b.TrySend(2))
	assert.False(t, b.TrySend(3), "full backlog rejects")
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, b.Cap())

	assert.Equal(t, 1, <-b.Receive())
	assert.True(t, b.TrySend(3))
	assert.Equal(t, 2, <-b.Receive())
	assert.Equal(t, 3, <-b.Receive())
}

func TestBufferedClose(t *testing.T) {
	b := NewBuffered[string](1)
	b.Send("last")
	b.Close()

	v, ok := <-b.Receive()
	assert.True(t, ok)
	assert.Equal(t, "last", v)
	_, ok = <-b.Receive()
	assert.False(t, ok)
}

func TestUnbufferedTrySendWithoutReceiver(t *testing.T) {
	u := NewUnbuffered[int]()
	assert.False(t, u.TrySend(1))
	assert.Zero(t, u.Len())
}

func TestUnbufferedSend(t *testing.T) {
	u := NewUnbuffered[int]()
	got := make(chan int, 1)
	go func() { got <- <-u.Receive() }()

	u.Send(7)
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("receiver did not get the value")
	}
}

func TestNewSatisfiesChannel(t *testing.T) {
	var c Channel[int] = New[int](4)
	require.NotNil(t, c)
	c.Close()
}
