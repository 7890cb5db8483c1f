package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"turnos-web/internal/cache"
	"turnos-web/internal/calendar"
	"turnos-web/internal/domain"
	"turnos-web/internal/session"
)

// App serves the browser-facing JSON API. Each browser gets its own
// workspace; the backend is only reached through it.
type App struct {
	Registry      *Registry
	Cache         cache.Store
	CacheTTL      time.Duration
	Calendar      *calendar.Publisher
	Log           *zap.Logger
	LoginRoute    string
	SecureCookies bool
	RateLimitRPM  int
	CORSOrigins   []string
}

func (a *App) Router() *gin.Engine {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	if a.Cache == nil {
		a.Cache = cache.Nop{}
	}
	if a.LoginRoute == "" {
		a.LoginRoute = "/login"
	}

	r := gin.New()
	r.Use(a.Recovery(), a.RequestLogger())
	if len(a.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", RouteHeader, "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", RedirectHeader, "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(a.RateLimit(a.RateLimitRPM))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	s := r.Group("/", a.SessionMiddleware())
	s.POST("/auth/login", a.LoginHandler)
	s.POST("/auth/register", a.RegisterHandler)
	s.POST("/auth/logout", a.LogoutHandler)
	s.GET("/auth/me", a.MeHandler)
	s.GET("/navigation", a.NavigationHandler)
	s.GET("/specialties", a.ListSpecialtiesHandler)
	s.GET("/specialties/:id", a.GetSpecialtyHandler)
	s.GET("/professionals", a.ListProfessionalsHandler)
	s.GET("/professionals/:id", a.GetProfessionalHandler)
	s.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	authed := s.Group("/", a.RequireAuth())
	{
		b := authed.Group("/booking/:professionalId")
		b.POST("", a.EnterBookingHandler)
		b.GET("", a.BookingSnapshotHandler)
		b.PUT("/date", a.SelectDateHandler)
		b.PUT("/slot", a.SelectSlotHandler)
		b.POST("/submit", a.SubmitBookingHandler)

		sch := authed.Group("/schedule", a.RequireRole(domain.RoleProfessional))
		sch.GET("", a.ListScheduleHandler)
		sch.POST("", a.CreateScheduleHandler)
		sch.PUT("/draft", a.UpdateDraftHandler)
		sch.POST("/:id/edit", a.BeginEditHandler)
		sch.PUT("/edit", a.UpdateEditHandler)
		sch.DELETE("/edit", a.CancelEditHandler)
		sch.POST("/edit/save", a.SaveEditHandler)
		sch.DELETE("/:id", a.DeleteScheduleHandler)

		ap := authed.Group("/appointments")
		ap.GET("", a.MyAppointmentsHandler)
		ap.GET("/agenda", a.AgendaHandler)
		ap.GET("/:id", a.GetAppointmentHandler)
		ap.PUT("/:id/notes", a.UpdateNotesHandler)
		ap.POST("/:id/complete", a.CompleteAppointmentHandler)
		ap.POST("/:id/cancel", a.CancelAppointmentHandler)

		authed.GET("/profile", a.GetProfileHandler)
		authed.PUT("/profile", a.UpdateProfileHandler)
		authed.POST("/profile/password", a.ChangePasswordHandler)

		authed.GET("/calendar/connect", a.GoogleAuthHandler)
		authed.GET("/calendar/events", a.GoogleCalendarEventsHandler)
	}
	return r
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		respond(c, http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func sessionBody(s *session.Context) sessionResponse {
	if !s.IsAuthenticated() {
		return sessionResponse{}
	}
	id := s.Identity()
	return sessionResponse{Authenticated: true, Identity: &id, RoleLabel: id.Role.Label()}
}

// POST /auth/login
func (a *App) LoginHandler(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspace(c)
	ctx := c.Request.Context()

	res, err := ws.Resources.Auth.Login(ctx, req)
	if err != nil {
		respondError(c, err, "Invalid email or password.")
		return
	}
	a.establish(c, ws, res, http.StatusOK)
}

// POST /auth/register
func (a *App) RegisterHandler(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspace(c)
	res, err := ws.Resources.Auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Could not create the account.")
		return
	}
	a.establish(c, ws, res, http.StatusCreated)
}

func (a *App) establish(c *gin.Context, ws *Workspace, res domain.AuthResponse, status int) {
	if session.StripBearer(res.Token) == "" {
		respond(c, http.StatusBadGateway, gin.H{"error": "backend returned no token"})
		return
	}
	if err := ws.Login(c.Request.Context(), session.Session{Token: res.Token, Identity: res.Identity()}); err != nil {
		a.Log.Warn("persist session failed", zap.Error(err))
	}
	a.Log.Info("session established", zap.String("email", res.Email), zap.String("role", res.Role))
	respond(c, status, sessionBody(ws.Session))
}

// POST /auth/logout
func (a *App) LogoutHandler(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Logout(c.Request.Context()); err != nil {
		a.Log.Warn("durable session cleanup failed", zap.Error(err))
	}
	ws.Nav.Redirect(a.LoginRoute)
	respond(c, http.StatusOK, sessionBody(ws.Session))
}

// GET /auth/me
func (a *App) MeHandler(c *gin.Context) {
	respond(c, http.StatusOK, sessionBody(workspace(c).Session))
}

// GET /navigation consumes the pending redirect.
func (a *App) NavigationHandler(c *gin.Context) {
	ws := workspace(c)
	body := navigationResponse{Redirect: ws.Nav.TakeRedirect()}
	body.Route = ws.Nav.CurrentRoute()
	c.JSON(http.StatusOK, body)
}

// GET /specialties
func (a *App) ListSpecialtiesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	var list []domain.Specialty
	if err := a.Cache.Get(ctx, cache.KindSpecialties, nil, &list); err == nil {
		respond(c, http.StatusOK, list)
		return
	}
	list, err := workspace(c).Resources.Specialties.List(ctx)
	if err != nil {
		respondError(c, err, "Could not load the specialties.")
		return
	}
	if err := a.Cache.Set(ctx, cache.KindSpecialties, nil, list, a.CacheTTL); err != nil {
		a.Log.Warn("cache specialties failed", zap.Error(err))
	}
	respond(c, http.StatusOK, list)
}

// GET /specialties/:id
func (a *App) GetSpecialtyHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sp, err := workspace(c).Resources.Specialties.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Could not load the specialty.")
		return
	}
	respond(c, http.StatusOK, sp)
}

// GET /professionals?specialtyId=
func (a *App) ListProfessionalsHandler(c *gin.Context) {
	specialtyID := 0
	if raw := c.Query("specialtyId"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respond(c, http.StatusBadRequest, gin.H{"error": "invalid specialtyId"})
			return
		}
		specialtyID = v
	}
	list, err := workspace(c).Resources.Professionals.List(c.Request.Context(), specialtyID)
	if err != nil {
		respondError(c, err, "Could not load the professionals.")
		return
	}
	respond(c, http.StatusOK, list)
}

// GET /professionals/:id
func (a *App) GetProfessionalHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := workspace(c).Resources.Professionals.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Could not load the professional.")
		return
	}
	respond(c, http.StatusOK, p)
}

// GET /profile
func (a *App) GetProfileHandler(c *gin.Context) {
	p, err := workspace(c).Resources.Profile.Get(c.Request.Context())
	if err != nil {
		respondError(c, err, "Could not load the profile.")
		return
	}
	respond(c, http.StatusOK, p)
}

// PUT /profile
func (a *App) UpdateProfileHandler(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := workspace(c).Resources.Profile.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Could not update the profile.")
		return
	}
	respond(c, http.StatusOK, p)
}

// POST /profile/password
func (a *App) ChangePasswordHandler(c *gin.Context) {
	var req domain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, err, "")
		return
	}
	if err := workspace(c).Resources.Profile.ChangePassword(c.Request.Context(), req); err != nil {
		respondError(c, err, "Could not change the password.")
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Password changed."})
}
