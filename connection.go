/*
Package salesman – connection management.

A Connection logs in lazily, shares one login between concurrent callers and
logs in again once the session is older than the configured maximum.
*/
package salesman

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxConnectionTime is the session lifetime used when none is configured.
const DefaultMaxConnectionTime = 6 * time.Hour

// LoginFunc opens a new remote session.
type LoginFunc func(ctx context.Context) (Session, error)

// Connection manages a refreshable remote session.
type Connection struct {
	login             LoginFunc
	maxConnectionTime time.Duration
	now               func() time.Time

	mu            sync.Mutex
	session       Session
	initializedAt time.Time

	group singleflight.Group
}

// NewConnection wraps login. maxConnectionTime <= 0 selects DefaultMaxConnectionTime.
func NewConnection(login LoginFunc, maxConnectionTime time.Duration) *Connection {
	if maxConnectionTime <= 0 {
		maxConnectionTime = DefaultMaxConnectionTime
	}
	return &Connection{
		login:             login,
		maxConnectionTime: maxConnectionTime,
		now:               time.Now,
	}
}

// StaticConnection serves a fixed session that never expires.
func StaticConnection(s Session) *Connection {
	c := NewConnection(func(context.Context) (Session, error) { return s, nil }, 0)
	c.maxConnectionTime = time.Duration(1<<63 - 1)
	return c
}

// Session returns the current session, logging in when there is none or the
// current one is too old. A failed login leaves the connection invalid.
func (c *Connection) Session(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.validLocked() {
		s := c.session
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("login", func() (any, error) {
		c.mu.Lock()
		if c.validLocked() {
			s := c.session
			c.mu.Unlock()
			return s, nil
		}
		c.mu.Unlock()

		s, err := c.login(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.session = nil
			c.initializedAt = time.Time{}
			return nil, NewError("login failed", WithCode(ErrRemote), WithCause(err))
		}
		c.session = s
		c.initializedAt = c.now()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

// Invalidate drops the current session; the next Session call logs in again.
func (c *Connection) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializedAt = time.Time{}
}

// ConnectionLength is how long the current session has been alive.
func (c *Connection) ConnectionLength() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initializedAt.IsZero() {
		return 0
	}
	return c.now().Sub(c.initializedAt)
}

func (c *Connection) validLocked() bool {
	if c.session == nil || c.initializedAt.IsZero() {
		return false
	}
	return c.now().Sub(c.initializedAt) <= c.maxConnectionTime
}
