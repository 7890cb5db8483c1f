package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultExpiredDelay = 5 * time.Second
	DefaultMissingDelay = 1 * time.Second
	DefaultLoginRoute   = "/login"
)

// Navigator exposes the route the user is on and lets deferred work send
// them elsewhere.
type Navigator interface {
	CurrentRoute() string
	Redirect(route string)
}

// Sessions is the part of the session layer the forced logout touches.
type Sessions interface {
	Generation() uint64
	TerminateIf(ctx context.Context, gen uint64) (bool, error)
}

// AfterFunc schedules f after d and returns a function that stops it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// DeferredTask is a pending forced logout or redirect.
type DeferredTask struct {
	Route      string
	Generation uint64
	WithToken  bool

	mu        sync.Mutex
	stop      func() bool
	cancelled bool
	fired     bool
}

// Cancel prevents the task from acting. It reports whether the task was
// still pending.
func (t *DeferredTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	if t.stop != nil {
		t.stop()
	}
	return true
}

func (t *DeferredTask) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.fired = true
	return true
}

// LogoutPolicy reacts to authorization failures. It never acts
// immediately so the calling workflow can show its own message first.
//
// With a token present the session is cleared and the user sent to the
// login route after ExpiredDelay, but only if the user is still on the same
// route and no new session was established in between. Without a token the
// redirect happens after MissingDelay.
type LogoutPolicy struct {
	Sessions     Sessions
	Nav          Navigator
	Log          *zap.Logger
	LoginRoute   string
	AuthRoutes   []string
	ExpiredDelay time.Duration
	MissingDelay time.Duration
	After        AfterFunc

	mu      sync.Mutex
	pending *DeferredTask
}

func NewLogoutPolicy(sessions Sessions, nav Navigator, log *zap.Logger) *LogoutPolicy {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogoutPolicy{
		Sessions:     sessions,
		Nav:          nav,
		Log:          log,
		LoginRoute:   DefaultLoginRoute,
		AuthRoutes:   []string{"/login", "/register"},
		ExpiredDelay: DefaultExpiredDelay,
		MissingDelay: DefaultMissingDelay,
	}
}

func (p *LogoutPolicy) isAuthRoute(route string) bool {
	for _, r := range p.AuthRoutes {
		if route == r {
			return true
		}
	}
	return false
}

// Handle schedules the deferred reaction to a 401. A task that is already
// pending is kept so repeated failures do not push the deadline out.
func (p *LogoutPolicy) Handle(tokenPresent bool) *DeferredTask {
	route := p.Nav.CurrentRoute()
	if p.isAuthRoute(route) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil && p.pending.WithToken == tokenPresent && p.pending.Route == route {
		p.pending.mu.Lock()
		live := !p.pending.cancelled && !p.pending.fired
		p.pending.mu.Unlock()
		if live {
			return p.pending
		}
	}
	if p.pending != nil {
		p.pending.Cancel()
	}

	task := &DeferredTask{Route: route, Generation: p.Sessions.Generation(), WithToken: tokenPresent}
	delay := p.MissingDelay
	if tokenPresent {
		delay = p.ExpiredDelay
	}
	after := p.After
	if after == nil {
		after = timeAfterFunc
	}
	task.mu.Lock()
	task.stop = after(delay, func() { p.fire(task) })
	task.mu.Unlock()
	p.pending = task

	p.Log.Info("unauthorized response, redirect scheduled",
		zap.String("route", route),
		zap.Bool("token_present", tokenPresent),
		zap.Duration("delay", delay))
	return task
}

func (p *LogoutPolicy) fire(task *DeferredTask) {
	if !task.begin() {
		return
	}
	p.mu.Lock()
	if p.pending == task {
		p.pending = nil
	}
	p.mu.Unlock()

	if !task.WithToken {
		p.Nav.Redirect(p.LoginRoute)
		return
	}

	if p.Nav.CurrentRoute() != task.Route {
		p.Log.Debug("forced logout skipped, route changed", zap.String("route", task.Route))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cleared, err := p.Sessions.TerminateIf(ctx, task.Generation)
	if err != nil {
		p.Log.Warn("forced logout: durable session cleanup failed", zap.Error(err))
	}
	if !cleared {
		p.Log.Debug("forced logout skipped, session replaced")
		return
	}
	p.Log.Info("forced logout", zap.String("route", task.Route))
	p.Nav.Redirect(p.LoginRoute)
}

// RouteChanged cancels a pending forced logout scheduled on another route.
func (p *LogoutPolicy) RouteChanged(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil && p.pending.WithToken && p.pending.Route != route {
		p.pending.Cancel()
		p.pending = nil
	}
}

// SessionEstablished cancels any pending task; a fresh login supersedes it.
func (p *LogoutPolicy) SessionEstablished() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.pending.Cancel()
		p.pending = nil
	}
}

// Pending returns the scheduled task, if any.
func (p *LogoutPolicy) Pending() *DeferredTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
