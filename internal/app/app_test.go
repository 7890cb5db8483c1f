package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"turnos-web/internal/booking"
	"turnos-web/internal/cache"
	"turnos-web/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// backend is a fake scheduling API.
type backend struct {
	t      *testing.T
	mu     sync.Mutex
	hits   map[string]int
	bodies map[string][]byte
	auth   map[string]string
	routes map[string]http.HandlerFunc
	srv    *httptest.Server
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		t:      t,
		hits:   map[string]int{},
		bodies: map[string][]byte{},
		auth:   map[string]string{},
		routes: map[string]http.HandlerFunc{},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.hits[key]++
		b.bodies[key] = body
		b.auth[key] = r.Header.Get("Authorization")
		h, ok := b.routes[key]
		b.mu.Unlock()
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(key string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[key] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[key]
}

func (b *backend) lastBody(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *backend) lastAuth(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[key]
}

type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (f *fakeTimers) after(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	return func() bool { return true }
}

func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	fns := append([]func(){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type harness struct {
	t       *testing.T
	api     *backend
	app     *App
	router  *gin.Engine
	timers  *fakeTimers
	durable *session.MemoryStore
	cookie  *http.Cookie
	route   string
}

var testNow = time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, api: newBackend(t), timers: &fakeTimers{}, durable: session.NewMemoryStore()}
	h.build()
	return h
}

func (h *harness) build() {
	store := cache.NewMemory()
	h.app = &App{
		Registry: NewRegistry(Options{
			BackendURL: h.api.srv.URL + "/api",
			Durable:    h.durable,
			Cache:      store,
			Booking: booking.Config{
				Location: time.UTC,
				Now:      func() time.Time { return testNow },
			},
			After: h.timers.after,
		}),
		Cache: store,
	}
	h.router = h.app.Router()
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	if h.route != "" {
		req.Header.Set(RouteHeader, h.route)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			h.cookie = c
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const loginBody = `{"token":"tok-123","email":"paciente@test.com","firstName":"Pat","lastName":"Doe","role":"Patient"}`

func (h *harness) login(body string) {
	h.t.Helper()
	h.api.handle("POST /Auth/login", http.StatusOK, body)
	rec := h.do(http.MethodPost, "/auth/login", map[string]string{"email": "paciente@test.com", "password": "secret"})
	if rec.Code != http.StatusOK {
		h.t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestLogin_EstablishesSession(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)

	if h.cookie == nil {
		t.Fatalf("session cookie not set")
	}
	me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil))
	if !me.Authenticated || me.Identity.Email != "paciente@test.com" || me.RoleLabel != "Patient" {
		t.Fatalf("me = %+v", me)
	}
}

func TestLogin_BadCredentialsSurfaceServerMessage(t *testing.T) {
	h := newHarness(t)
	h.api.handle("POST /Auth/login", http.StatusUnauthorized, `{"message":"Credenciales inválidas"}`)
	rec := h.do(http.MethodPost, "/auth/login", map[string]string{"email": "a@b.com", "password": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "Credenciales inválidas" {
		t.Fatalf("error = %q", body["error"])
	}
	if len(h.timers.fns) != 0 {
		t.Fatalf("auth endpoint failure scheduled a logout")
	}
}

func TestSession_SurvivesRestartThroughDurableStore(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)

	h.build()
	me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil))
	if !me.Authenticated {
		t.Fatalf("session not restored from durable store")
	}

	h.do(http.MethodPost, "/auth/logout", nil)
	h.build()
	if me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil)); me.Authenticated {
		t.Fatalf("logout left a durable session behind")
	}
}

func TestBooking_RequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/booking/5", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get(RedirectHeader); got != "/login" {
		t.Fatalf("redirect = %q, want /login", got)
	}
	if h.api.count("GET /Professionals/5/available-slots") != 0 {
		t.Fatalf("slots fetched before authentication")
	}
}

const scenarioSlots = `[
	{"dateTime":"2025-06-10T09:00:00Z","durationMinutes":30,"isAvailable":true},
	{"dateTime":"2025-06-10T09:30:00Z","durationMinutes":30,"isAvailable":false}
]`

func TestBooking_PatientScenario(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)
	h.api.handle("GET /Professionals/5/available-slots", http.StatusOK, scenarioSlots)
	h.api.handle("POST /Appointments", http.StatusCreated,
		`{"id":42,"dateTime":"2025-06-10T09:00:00Z","durationMinutes":30,"status":"Scheduled"}`)
	h.api.handle("GET /Appointments/my-appointments", http.StatusOK, `[]`)

	// Prime the appointment list cache.
	if rec := h.do(http.MethodGet, "/appointments", nil); rec.Code != http.StatusOK {
		t.Fatalf("appointments status = %d", rec.Code)
	}

	if rec := h.do(http.MethodPost, "/booking/5", nil); rec.Code != http.StatusOK {
		t.Fatalf("enter status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec := h.do(http.MethodPut, "/booking/5/date", map[string]string{"date": "2025-06-10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("select date status = %d, body %s", rec.Code, rec.Body.String())
	}
	view := decode[booking.View](t, rec)
	if len(view.Selectable) != 1 || view.Selectable[0].DateTime.Format(time.RFC3339) != "2025-06-10T09:00:00Z" {
		t.Fatalf("selectable = %+v", view.Selectable)
	}

	rec = h.do(http.MethodPut, "/booking/5/slot", map[string]any{"dateTime": "2025-06-10T09:30:00Z", "durationMinutes": 30})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unavailable slot status = %d", rec.Code)
	}
	rec = h.do(http.MethodPut, "/booking/5/slot", map[string]any{"dateTime": "2025-06-10T09:00:00Z", "durationMinutes": 30})
	if rec.Code != http.StatusOK {
		t.Fatalf("select slot status = %d", rec.Code)
	}

	rec = h.do(http.MethodPost, "/booking/5/submit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	view = decode[booking.View](t, rec)
	if view.State != booking.Booked || view.Appointment == nil || view.Appointment.ID != 42 {
		t.Fatalf("view = %+v", view)
	}

	var sent map[string]any
	if err := json.Unmarshal(h.api.lastBody("POST /Appointments"), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent["professionalId"] != float64(5) || sent["dateTime"] != "2025-06-10T09:00:00Z" {
		t.Fatalf("sent = %v", sent)
	}
	if got := h.api.lastAuth("POST /Appointments"); got != "Bearer tok-123" {
		t.Fatalf("authorization = %q", got)
	}

	h.do(http.MethodGet, "/appointments", nil)
	if n := h.api.count("GET /Appointments/my-appointments"); n != 2 {
		t.Fatalf("my-appointments fetched %d times, want 2 (cache invalidated by booking)", n)
	}
}

func TestBooking_NonPatientGetsMessageAndNoPost(t *testing.T) {
	h := newHarness(t)
	h.login(`{"token":"tok-9","email":"doc@test.com","firstName":"Ana","lastName":"Gomez","role":"Professional"}`)
	h.api.handle("GET /Professionals/5/available-slots", http.StatusOK, scenarioSlots)

	h.do(http.MethodPut, "/booking/5/date", map[string]string{"date": "2025-06-10"})
	h.do(http.MethodPut, "/booking/5/slot", map[string]any{"dateTime": "2025-06-10T09:00:00Z"})
	rec := h.do(http.MethodPost, "/booking/5/submit", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["error"] != booking.MsgPatientOnly {
		t.Fatalf("error = %v", body["error"])
	}
	if h.api.count("POST /Appointments") != 0 {
		t.Fatalf("POST issued for a non-patient")
	}
}

func TestUnauthorized_ForcedLogoutOnSameRoute(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)
	h.route = "/my-appointments"
	h.api.handle("GET /Appointments/my-appointments", http.StatusUnauthorized, `{"message":"Token expired"}`)

	rec := h.do(http.MethodGet, "/appointments", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(h.timers.delays) != 1 || h.timers.delays[0] != 5*time.Second {
		t.Fatalf("delays = %v, want [5s]", h.timers.delays)
	}
	if me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil)); !me.Authenticated {
		t.Fatalf("logout happened before the delay")
	}

	h.timers.fireAll()
	rec = h.do(http.MethodGet, "/navigation", nil)
	nav := decode[navigationResponse](t, rec)
	if nav.Redirect != "/login" {
		t.Fatalf("redirect = %q, want /login", nav.Redirect)
	}
	if me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil)); me.Authenticated {
		t.Fatalf("session still active after forced logout")
	}
}

func TestUnauthorized_RouteChangeCancelsForcedLogout(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)
	h.route = "/my-appointments"
	h.api.handle("GET /Appointments/my-appointments", http.StatusUnauthorized, ``)
	h.do(http.MethodGet, "/appointments", nil)

	h.route = "/professionals"
	h.do(http.MethodGet, "/auth/me", nil)
	h.timers.fireAll()

	if me := decode[sessionResponse](t, h.do(http.MethodGet, "/auth/me", nil)); !me.Authenticated {
		t.Fatalf("forced logout ran after navigation")
	}
}

func TestSchedule_ProfessionalOnly(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)
	rec := h.do(http.MethodGet, "/schedule", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if h.api.count("GET /Schedule/my-schedule") != 0 {
		t.Fatalf("backend called for a patient")
	}
}

func TestSchedule_SingleEditAndConfirmedDelete(t *testing.T) {
	h := newHarness(t)
	h.login(`{"token":"tok-9","email":"doc@test.com","role":"Professional"}`)
	h.api.handle("GET /Schedule/my-schedule", http.StatusOK,
		`[{"id":1,"dayOfWeek":1,"startTime":"09:00:00","endTime":"17:00:00","isActive":true},
		  {"id":2,"dayOfWeek":2,"startTime":"09:00:00","endTime":"12:00:00","isActive":true}]`)
	h.api.handle("DELETE /Schedule/2", http.StatusNoContent, ``)

	if rec := h.do(http.MethodGet, "/schedule", nil); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if rec := h.do(http.MethodPost, "/schedule/1/edit", nil); rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rec.Code)
	}
	if rec := h.do(http.MethodPost, "/schedule/2/edit", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second edit status = %d, want 409", rec.Code)
	}
	if rec := h.do(http.MethodDelete, "/schedule/2?confirm=true", nil); rec.Code != http.StatusConflict {
		t.Fatalf("delete while editing status = %d, want 409", rec.Code)
	}
	h.do(http.MethodDelete, "/schedule/edit", nil)
	if rec := h.do(http.MethodDelete, "/schedule/2", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed delete status = %d, want 400", rec.Code)
	}
	if h.api.count("DELETE /Schedule/2") != 0 {
		t.Fatalf("delete sent without confirmation")
	}
	if rec := h.do(http.MethodDelete, "/schedule/2?confirm=true", nil); rec.Code != http.StatusOK {
		t.Fatalf("confirmed delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	if h.api.count("DELETE /Schedule/2") != 1 {
		t.Fatalf("delete not sent")
	}
}

func TestSpecialties_Cached(t *testing.T) {
	h := newHarness(t)
	h.api.handle("GET /Specialties", http.StatusOK, `[{"id":1,"name":"Cardiology"}]`)
	for i := 0; i < 2; i++ {
		if rec := h.do(http.MethodGet, "/specialties", nil); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if n := h.api.count("GET /Specialties"); n != 1 {
		t.Fatalf("backend hits = %d, want 1", n)
	}
}

func TestChangePassword_MismatchRejectedLocally(t *testing.T) {
	h := newHarness(t)
	h.login(loginBody)
	rec := h.do(http.MethodPost, "/profile/password", map[string]string{
		"currentPassword": "old", "newPassword": "new-1", "confirmPassword": "new-2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if h.api.count("POST /Profile/change-password") != 0 {
		t.Fatalf("backend called for mismatched passwords")
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t)
	h.app.RateLimitRPM = 2
	h.router = h.app.Router()
	for i := 0; i < 2; i++ {
		if rec := h.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := h.do(http.MethodGet, "/healthz", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestRateLimit_IdleLimitersSwept(t *testing.T) {
	h := newHarness(t)
	h.app.RateLimitRPM = 2
	h.router = h.app.Router()
	reg := h.app.Registry
	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	reg.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	h.do(http.MethodGet, "/healthz", nil)
	if reg.limiters.len() != 1 {
		t.Fatalf("limiters = %d, want 1", reg.limiters.len())
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.RunSweeper(ctx, time.Millisecond, time.Hour)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for reg.limiters.len() != 0 {
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatalf("idle limiter not swept")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}

func TestIPLimiters_SweepKeepsActive(t *testing.T) {
	s := newIPLimiters()
	start := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	s.get("10.0.0.1", 5, start)
	s.get("10.0.0.2", 5, start.Add(90*time.Second))
	if n := s.sweep(start.Add(2*time.Minute), time.Minute); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if s.len() != 1 {
		t.Fatalf("len = %d, want 1", s.len())
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(Options{BackendURL: "http://backend.test/api"})
	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	if _, err := r.Get("a"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	now = now.Add(time.Hour)
	if _, err := r.Get("b"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if n := r.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}
