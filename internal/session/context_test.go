package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Lifecycle(t *testing.T) {
	ctx := NewContext()
	s, ok := ctx.Get()
	assert.False(t, ok)
	assert.Equal(t, "No session", s.Name)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := ctx.Start("test drive", 500, start)
	_, err := uuid.Parse(started.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(500), started.TickRate)

	ctx.Tag("offroad")
	got, ok := ctx.Get()
	require.True(t, ok)
	assert.Equal(t, "offroad", got.Tags)
	assert.Equal(t, started.ID, got.ID)

	ended, was := ctx.End()
	assert.True(t, was)
	assert.Equal(t, started.ID, ended.ID)
	_, ok = ctx.Get()
	assert.False(t, ok)

	_, was = ctx.End()
	assert.False(t, was)
}

func TestContext_NewIDs(t *testing.T) {
	ctx := NewContext()
	a := ctx.Start("a", 500, time.Now())
	b := ctx.Start("b", 500, time.Now())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestContext_ConcurrentAccess(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx.Start("s", 500, time.Now())
		}()
		go func() {
			defer wg.Done()
			ctx.Get()
		}()
	}
	wg.Wait()
	_, ok := ctx.Get()
	assert.True(t, ok)
}
