package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"turnos-web/internal/agenda"
	"turnos-web/internal/booking"
	"turnos-web/internal/cache"
	"turnos-web/internal/calendar"
	"turnos-web/internal/gateway"
	"turnos-web/internal/resources"
	"turnos-web/internal/schedule"
	"turnos-web/internal/session"
)

// Options configure every browser workspace.
type Options struct {
	BackendURL   string
	HTTPClient   *http.Client
	Durable      session.DurableStore
	Cache        cache.Store
	CacheTTL     time.Duration
	ExpiredDelay time.Duration
	MissingDelay time.Duration
	Booking      booking.Config
	Calendar     *calendar.Publisher
	Log          *zap.Logger
	// After replaces time.AfterFunc for the forced-logout timer.
	After gateway.AfterFunc
}

// Workspace is the client state of one browser: its session, navigation,
// backend client and controllers.
type Workspace struct {
	ID        string
	Session   *session.Context
	Resolver  *session.Resolver
	Nav       *Navigator
	Policy    *gateway.LogoutPolicy
	Resources *resources.Set
	Agenda    *agenda.Service

	opts Options
	log  *zap.Logger

	mu          sync.Mutex
	bookings    map[int]*booking.Controller
	schedule    *schedule.Controller
	googleToken *oauth2.Token
	oauthState  string
	lastSeen    time.Time
}

func newWorkspace(id string, opts Options) (*Workspace, error) {
	log := opts.Log.With(zap.String("sid", shortID(id)))
	sess := session.NewContext()
	resolver := &session.Resolver{Session: sess, Durable: opts.Durable, Key: id}
	nav := &Navigator{}

	policy := gateway.NewLogoutPolicy(resolver, nav, log)
	if opts.ExpiredDelay > 0 {
		policy.ExpiredDelay = opts.ExpiredDelay
	}
	if opts.MissingDelay > 0 {
		policy.MissingDelay = opts.MissingDelay
	}
	if opts.Booking.LoginRoute != "" {
		policy.LoginRoute = opts.Booking.LoginRoute
	}
	policy.After = opts.After

	api, err := gateway.New(opts.BackendURL, opts.HTTPClient, log,
		gateway.WithRequestStage(gateway.BearerStage(resolver, log)),
		gateway.WithResponseStage(gateway.UnauthorizedStage(policy)))
	if err != nil {
		return nil, err
	}
	res := resources.New(api)

	return &Workspace{
		ID:        id,
		Session:   sess,
		Resolver:  resolver,
		Nav:       nav,
		Policy:    policy,
		Resources: res,
		Agenda: agenda.New(res.Appointments, sess,
			agenda.WithCache(opts.Cache, opts.CacheTTL),
			agenda.WithLocation(opts.Booking.Location),
			agenda.WithLogger(log)),
		opts:     opts,
		log:      log,
		bookings: make(map[int]*booking.Controller),
		schedule: schedule.New(res.Schedules, sess, opts.Cache, opts.CacheTTL, log),
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Booking returns the booking workflow for professionalID, creating it on
// first use.
func (w *Workspace) Booking(professionalID int) *booking.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.bookings[professionalID]; ok {
		return b
	}
	deps := booking.Deps{
		Sessions: w.Session,
		Slots:    w.Resources.Professionals,
		Creator:  w.Resources.Appointments,
		Cache:    w.opts.Cache,
		Nav:      w.Nav,
		Log:      w.log,
	}
	if w.opts.Calendar != nil {
		deps.OnBooked = append(deps.OnBooked, w.opts.Calendar.Hook(w.GoogleToken))
	}
	b := booking.New(professionalID, deps, w.opts.Booking)
	w.bookings[professionalID] = b
	return b
}

// Login records a fresh session and cancels any pending forced logout.
func (w *Workspace) Login(ctx context.Context, s session.Session) error {
	err := w.Resolver.Establish(ctx, s)
	w.Policy.SessionEstablished()
	w.resetControllers()
	return err
}

func (w *Workspace) Logout(ctx context.Context) error {
	w.Policy.SessionEstablished()
	err := w.Resolver.Terminate(ctx)
	w.resetControllers()
	w.mu.Lock()
	w.googleToken = nil
	w.oauthState = ""
	w.mu.Unlock()
	return err
}

func (w *Workspace) resetControllers() {
	w.mu.Lock()
	w.bookings = make(map[int]*booking.Controller)
	w.schedule = schedule.New(w.Resources.Schedules, w.Session, w.opts.Cache, w.opts.CacheTTL, w.log)
	w.mu.Unlock()
}

func (w *Workspace) Schedule() *schedule.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.schedule
}

func (w *Workspace) GoogleToken() *oauth2.Token {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.googleToken
}

func (w *Workspace) setGoogleToken(tok *oauth2.Token) {
	w.mu.Lock()
	w.googleToken = tok
	w.mu.Unlock()
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastSeen)
}

// Registry maps browser session ids to workspaces.
type Registry struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace

	limiters *ipLimiters
}

func NewRegistry(opts Options) *Registry {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Booking.Location == nil {
		opts.Booking.Location = time.Local
	}
	return &Registry{
		opts:     opts,
		now:      time.Now,
		spaces:   make(map[string]*Workspace),
		limiters: newIPLimiters(),
	}
}

// Get returns the workspace of id, creating it when missing.
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[id]
	if !ok {
		var err error
		ws, err = newWorkspace(id, r.opts)
		if err != nil {
			return nil, err
		}
		r.spaces[id] = ws
	}
	ws.touch(r.now())
	return ws, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spaces)
}

// Sweep drops workspaces idle for longer than idle. Their durable session,
// if any, survives and is reloaded on the next request.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, ws := range r.spaces {
		if ws.idleSince(now) > idle {
			ws.Policy.SessionEstablished()
			delete(r.spaces, id)
			n++
		}
	}
	return n
}

// limiterIdle is how long a per-IP rate limiter survives without requests.
const limiterIdle = time.Minute

// RunSweeper calls Sweep every interval until ctx is done. It also drops
// idle per-IP rate limiters.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.opts.Log.Debug("idle workspaces dropped", zap.Int("count", n))
			}
			if n := r.limiters.sweep(r.now(), limiterIdle); n > 0 {
				r.opts.Log.Debug("idle rate limiters dropped", zap.Int("count", n))
			}
		}
	}
}
