package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Actor int
	Op    string
}

func TestQueue_PushPop(t *testing.T) {
	q := New[request]()
	assert.True(t, q.Empty())

	_, ok := q.Pop()
	assert.False(t, ok)

	require.True(t, q.Push(request{1, "spawn"}, request{2, "reset"}))
	assert.Equal(t, 2, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, request{1, "spawn"}, first)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DrainKeepsOrder(t *testing.T) {
	q := New[request]()
	q.Push(request{1, "a"})
	q.Push(request{2, "b"}, request{3, "c"})

	got := q.Drain()
	assert.Equal(t, []request{{1, "a"}, {2, "b"}, {3, "c"}}, got)
	assert.True(t, q.Empty())

	q.Push(request{4, "d"})
	assert.Equal(t, []request{{4, "d"}}, q.Drain())
	assert.Empty(t, q.Drain())
}

func TestQueue_RemoveFunc(t *testing.T) {
	q := New[request]()
	q.Push(request{1, "input"}, request{2, "input"}, request{1, "affector"}, request{3, "reset"})

	n := q.RemoveFunc(func(r request) bool { return r.Actor == 1 })
	assert.Equal(t, 2, n)
	assert.Equal(t, []request{{2, "input"}, {3, "reset"}}, q.Drain())

	assert.Zero(t, q.RemoveFunc(func(request) bool { return true }))
}

func TestQueue_Close(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Close()
	assert.False(t, q.Push(2))
	assert.Equal(t, []int{1}, q.Drain())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	const producers, each = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(p*each + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		for _, v := range q.Drain() {
			seen[v] = true
		}
		select {
		case <-done:
			for _, v := range q.Drain() {
				seen[v] = true
			}
			assert.Len(t, seen, producers*each)
			return
		default:
		}
	}
}
