package cache

import (
	"sync"

	"github.com/beamsim/beamsim/internal/definition"
)

type templateKey struct {
	name, config string
}

// TemplateCache keeps validated, configuration-filtered definitions so
// repeated spawns of the same vehicle skip validation. Spawn latency sits
// on the physics goroutine.
type TemplateCache struct {
	m         sync.RWMutex
	templates map[templateKey]*definition.Definition

	Hits   SafeCounter
	Misses SafeCounter
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		templates: make(map[templateKey]*definition.Definition),
	}
}

func (c *TemplateCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.templates = make(map[templateKey]*definition.Definition)
}

func (c *TemplateCache) Get(name, config string) (*definition.Definition, bool) {
	c.m.RLock()
	t, ok := c.templates[templateKey{name, config}]
	c.m.RUnlock()
	if ok {
		c.Hits.Inc()
	} else {
		c.Misses.Inc()
	}
	return t, ok
}

func (c *TemplateCache) Put(name, config string, t *definition.Definition) {
	c.m.Lock()
	defer c.m.Unlock()
	c.templates[templateKey{name, config}] = t
}

// Invalidate drops every configuration of name, e.g. after a reload.
func (c *TemplateCache) Invalidate(name string) {
	c.m.Lock()
	defer c.m.Unlock()
	for k := range c.templates {
		if k.name == name {
			delete(c.templates, k)
		}
	}
}

func (c *TemplateCache) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.templates)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
