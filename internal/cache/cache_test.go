package cache

import (
	"sync"
	"testing"

	"github.com/beamsim/beamsim/internal/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCache_GetPut(t *testing.T) {
	c := NewTemplateCache()
	box := definition.Box("crate", 1, 100)

	_, ok := c.Get("crate", "")
	assert.False(t, ok)

	c.Put("crate", "", box)
	got, ok := c.Get("crate", "")
	require.True(t, ok)
	assert.Same(t, box, got)

	_, ok = c.Get("crate", "heavy")
	assert.False(t, ok, "configurations are cached separately")

	assert.Equal(t, 1, c.Hits.Value())
	assert.Equal(t, 2, c.Misses.Value())
}

func TestTemplateCache_Invalidate(t *testing.T) {
	c := NewTemplateCache()
	c.Put("truck", "", definition.Box("truck", 2, 1000))
	c.Put("truck", "long", definition.Box("truck", 3, 1200))
	c.Put("crate", "", definition.Box("crate", 1, 100))

	c.Invalidate("truck")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("crate", "")
	assert.True(t, ok)

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestTemplateCache_Concurrent(t *testing.T) {
	c := NewTemplateCache()
	box := definition.Box("crate", 1, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put("crate", "", box)
			c.Get("crate", "")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Hits.Value()+c.Misses.Value())
}

// SafeCounter tests

func TestSafeCounter(t *testing.T) {
	c := &SafeCounter{}
	assert.Equal(t, 0, c.Value())

	c.Set(41)
	c.Inc()
	assert.Equal(t, 42, c.Value())
}

func TestSafeCounter_Concurrent(t *testing.T) {
	c := &SafeCounter{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Value())
}
