// Package session tracks the simulation run being recorded.
package session

import (
	"sync"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/google/uuid"
)

// Context holds the current session behind a lock. Readers get copies.
type Context struct {
	mu      sync.RWMutex
	session core.Session
	active  bool
}

// NewContext creates a Context with no session started.
func NewContext() *Context {
	return &Context{session: core.Session{Name: "No session"}}
}

// Start begins a new session with a fresh id and returns it.
func (c *Context) Start(name string, tickRate float32, start time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = core.Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartTime: start,
		TickRate:  tickRate,
	}
	c.active = true
	return c.session
}

// Get returns the current session and whether one is active.
func (c *Context) Get() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session, c.active
}

// End marks the session finished and returns it.
func (c *Context) End() (core.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.active
	c.active = false
	return c.session, was
}

// Tag sets the free-form session tag used on upload.
func (c *Context) Tag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Tags = tag
}
