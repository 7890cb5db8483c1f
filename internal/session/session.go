// Package session holds the authenticated identity and bearer credential of
// one browser, and the durable stores it is persisted to.
package session

import (
	"sync"

	"turnos-web/internal/domain"
)

// Session is a snapshot of the authenticated state.
type Session struct {
	Token    string          `json:"token"`
	Identity domain.Identity `json:"identity"`
}

func (s Session) Empty() bool {
	return s.Token == ""
}

// Context is the single source of truth for who is logged in. It is safe
// for concurrent use. Every write bumps the generation so deferred work
// scheduled against an older session can detect it was superseded.
type Context struct {
	mu         sync.RWMutex
	cur        Session
	generation uint64
}

func NewContext() *Context {
	return &Context{}
}

// SetAuth unconditionally replaces the current session.
func (c *Context) SetAuth(token string, identity domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = Session{Token: StripBearer(token), Identity: identity}
	c.generation++
}

// Logout clears token and identity.
func (c *Context) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = Session{}
	c.generation++
}

func (c *Context) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.Token != ""
}

func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.Token
}

func (c *Context) Identity() domain.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.Identity
}

func (c *Context) Role() domain.Role {
	return c.Identity().Role
}

func (c *Context) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

func (c *Context) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// LogoutIf clears the session only when no write happened since gen was
// observed. It reports whether the session was cleared.
func (c *Context) LogoutIf(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.cur = Session{}
	c.generation++
	return true
}
