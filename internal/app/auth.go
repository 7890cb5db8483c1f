package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"turnos-web/internal/domain"
)

const (
	SessionCookie  = "turnos_sid"
	RouteHeader    = "X-Client-Route"
	RedirectHeader = "X-Redirect"
	RequestIDKey   = "request_id"

	workspaceKey = "workspace"
)

// SessionMiddleware binds the request to its browser workspace, creating
// the session cookie on first contact. The reported client route is
// recorded, which cancels a forced logout pending on another route.
func (a *App) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookie)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sid, 0, "/", "", a.SecureCookies, true)
		}

		ws, err := a.Registry.Get(sid)
		if err != nil {
			a.Log.Error("workspace setup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}
		c.Set(workspaceKey, ws)

		if route := c.GetHeader(RouteHeader); route != "" && ws.Nav.SetRoute(route) {
			ws.Policy.RouteChanged(route)
		}
		if _, err := ws.Resolver.Resolve(c.Request.Context()); err != nil {
			a.Log.Warn("durable session lookup failed", zap.Error(err))
		}
		c.Next()
	}
}

func workspace(c *gin.Context) *Workspace {
	return c.MustGet(workspaceKey).(*Workspace)
}

// RequireAuth rejects anonymous requests and tells the browser to go to the
// login route.
func (a *App) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws := workspace(c)
		if !ws.Session.IsAuthenticated() {
			ws.Nav.Redirect(a.LoginRoute)
			c.Header(RedirectHeader, ws.Nav.TakeRedirect())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireRole admits only sessions with role.
func (a *App) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if workspace(c).Session.Role() != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only " + role.Label() + " accounts can use this page"})
			return
		}
		c.Next()
	}
}

// RequestLogger tags each request with an id and logs its outcome.
func (a *App) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()

		a.Log.Info("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}

// Recovery turns panics into 500 responses.
func (a *App) Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		a.Log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

func newIPLimiters() *ipLimiters {
	return &ipLimiters{limiters: make(map[string]*ipLimiter)}
}

func (s *ipLimiters) get(ip string, perMin int, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)}
		s.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

// sweep drops limiters unused for longer than idle. A limiter idle for a
// full minute has refilled its bucket, so dropping it loses nothing.
func (s *ipLimiters) sweep(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ip, l := range s.limiters {
		if now.Sub(l.lastSeen) > idle {
			delete(s.limiters, ip)
			n++
		}
	}
	return n
}

func (s *ipLimiters) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimit allows perMinute requests per client IP. Zero disables it.
func (a *App) RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	reg := a.Registry
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !reg.limiters.get(ip, perMinute, reg.now()).Allow() {
			a.Log.Warn("rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}
