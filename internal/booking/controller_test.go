package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"turnos-web/internal/cache"
	"turnos-web/internal/domain"
	"turnos-web/internal/gateway"
	"turnos-web/internal/session"
)

type fakeSlots struct {
	fn func(ctx context.Context, professionalID int, at time.Time) ([]domain.AvailableSlot, error)
}

func (f *fakeSlots) AvailableSlots(ctx context.Context, professionalID int, at time.Time) ([]domain.AvailableSlot, error) {
	if f.fn == nil {
		panic("AvailableSlots not configured")
	}
	return f.fn(ctx, professionalID, at)
}

type fakeCreator struct {
	calls []domain.CreateAppointmentRequest
	fn    func(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error)
}

func (f *fakeCreator) Create(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error) {
	f.calls = append(f.calls, req)
	if f.fn == nil {
		panic("Create not configured")
	}
	return f.fn(ctx, req)
}

type fakeNav struct {
	mu        sync.Mutex
	redirects []string
}

func (n *fakeNav) Redirect(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, route)
}

var (
	scenarioNow = time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	june10      = domain.Date{Year: 2025, Month: time.June, Day: 10}
	nine        = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	nineThirty  = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
)

func scenarioSlots() []domain.AvailableSlot {
	return []domain.AvailableSlot{
		{DateTime: nine, DurationMinutes: 30, IsAvailable: true},
		{DateTime: nineThirty, DurationMinutes: 30, IsAvailable: false},
	}
}

type harness struct {
	ctrl    *Controller
	sess    *session.Context
	slots   *fakeSlots
	creator *fakeCreator
	nav     *fakeNav
	cache   *cache.Memory
	now     time.Time
}

func newHarness(t *testing.T, role domain.Role) *harness {
	t.Helper()
	h := &harness{
		sess:    session.NewContext(),
		slots:   &fakeSlots{},
		creator: &fakeCreator{},
		nav:     &fakeNav{},
		cache:   cache.NewMemory(),
		now:     scenarioNow,
	}
	if role != "" {
		h.sess.SetAuth("token", domain.Identity{Email: "paciente@test.com", Role: role})
	}
	h.slots.fn = func(ctx context.Context, id int, at time.Time) ([]domain.AvailableSlot, error) {
		return scenarioSlots(), nil
	}
	h.ctrl = New(5, Deps{
		Sessions: h.sess,
		Slots:    h.slots,
		Creator:  h.creator,
		Cache:    h.cache,
		Nav:      h.nav,
	}, Config{Location: time.UTC, Now: func() time.Time { return h.now }})
	return h
}

func TestScenario_PatientBooksNineOClock(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()

	var gotAt time.Time
	h.slots.fn = func(ctx context.Context, id int, at time.Time) ([]domain.AvailableSlot, error) {
		if id != 5 {
			t.Fatalf("professional id = %d, want 5", id)
		}
		gotAt = at
		return scenarioSlots(), nil
	}
	h.creator.fn = func(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error) {
		return domain.Appointment{ID: 42, DateTime: req.DateTime, DurationMinutes: 30, Status: domain.StatusScheduled}, nil
	}
	_ = h.cache.Set(ctx, cache.KindMyAppointments, []string{"paciente@test.com"}, []int{1}, 0)

	if err := h.ctrl.Enter(ctx); err != nil {
		t.Fatalf("Enter error: %v", err)
	}
	if err := h.ctrl.SelectDate(ctx, june10); err != nil {
		t.Fatalf("SelectDate error: %v", err)
	}
	if !gotAt.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("slots requested at %v, want local midnight of 2025-06-10", gotAt)
	}

	v := h.ctrl.View()
	if v.State != SlotsReady {
		t.Fatalf("state = %v, want %v", v.State, SlotsReady)
	}
	if len(v.Selectable) != 1 || !v.Selectable[0].DateTime.Equal(nine) {
		t.Fatalf("selectable = %+v, want only 09:00", v.Selectable)
	}

	if err := h.ctrl.SelectSlot(Selection{DateTime: nineThirty, DurationMinutes: 30}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("selecting 09:30 err = %v, want ErrSlotUnavailable", err)
	}
	if err := h.ctrl.SelectSlot(Selection{DateTime: nine, DurationMinutes: 30}); err != nil {
		t.Fatalf("SelectSlot error: %v", err)
	}

	appt, err := h.ctrl.Submit(ctx, "")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if appt.ID != 42 {
		t.Fatalf("appointment id = %d, want 42", appt.ID)
	}
	if len(h.creator.calls) != 1 {
		t.Fatalf("create calls = %d, want 1", len(h.creator.calls))
	}
	req := h.creator.calls[0]
	if req.ProfessionalID != 5 || !req.DateTime.Equal(nine) || req.DateTime.Location() != time.UTC {
		t.Fatalf("create request = %+v", req)
	}
	if h.ctrl.State() != Booked {
		t.Fatalf("state = %v, want %v", h.ctrl.State(), Booked)
	}
	var cached []int
	if err := h.cache.Get(ctx, cache.KindMyAppointments, []string{"paciente@test.com"}, &cached); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("my appointments cache not invalidated, err = %v", err)
	}
}

func TestScenario_NonPatientCannotBook(t *testing.T) {
	h := newHarness(t, domain.RoleProfessional)
	ctx := context.Background()

	if err := h.ctrl.SelectDate(ctx, june10); err != nil {
		t.Fatalf("SelectDate error: %v", err)
	}
	if err := h.ctrl.SelectSlot(Selection{DateTime: nine}); err != nil {
		t.Fatalf("non-patients may still browse and select: %v", err)
	}

	_, err := h.ctrl.Submit(ctx, "")
	if !errors.Is(err, ErrPatientOnly) {
		t.Fatalf("err = %v, want ErrPatientOnly", err)
	}
	if len(h.creator.calls) != 0 {
		t.Fatalf("no POST may be issued for a non-patient")
	}
	v := h.ctrl.View()
	if v.Message != MsgPatientOnly || v.CanBook {
		t.Fatalf("view = %+v", v)
	}
	if v.State != SlotSelected {
		t.Fatalf("state = %v, want browsing to continue in %v", v.State, SlotSelected)
	}
}

func TestEnter_UnauthenticatedRedirects(t *testing.T) {
	h := newHarness(t, "")
	called := false
	h.slots.fn = func(context.Context, int, time.Time) ([]domain.AvailableSlot, error) {
		called = true
		return nil, nil
	}

	if err := h.ctrl.Enter(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if called {
		t.Fatalf("no slots may be fetched before authentication")
	}
	if len(h.nav.redirects) != 1 || h.nav.redirects[0] != "/login" {
		t.Fatalf("redirects = %v", h.nav.redirects)
	}
	if h.ctrl.State() != SelectingDate || !h.ctrl.View().Date.IsZero() {
		t.Fatalf("no state may be entered")
	}
}

func TestSelectDate_ClearsSelectionAcrossDates(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()
	june11 := june10.AddDays(1)

	_ = h.ctrl.SelectDate(ctx, june10)
	if err := h.ctrl.SelectSlot(Selection{DateTime: nine}); err != nil {
		t.Fatalf("SelectSlot error: %v", err)
	}
	if err := h.ctrl.SelectDate(ctx, june11); err != nil {
		t.Fatalf("SelectDate error: %v", err)
	}
	if v := h.ctrl.View(); v.Selection != nil || v.State != SlotsReady {
		t.Fatalf("selection carried across dates: %+v", v)
	}
	if _, err := h.ctrl.Submit(ctx, ""); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Submit err = %v, want ErrNoSelection", err)
	}
}

func TestSelectDate_Window(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()
	today := domain.DateOf(scenarioNow)

	if err := h.ctrl.SelectDate(ctx, today.AddDays(-1)); !errors.Is(err, ErrDateOutOfRange) {
		t.Fatalf("yesterday err = %v", err)
	}
	if err := h.ctrl.SelectDate(ctx, today.AddDays(31)); !errors.Is(err, ErrDateOutOfRange) {
		t.Fatalf("day 31 err = %v", err)
	}
	if err := h.ctrl.SelectDate(ctx, today.AddDays(30)); err != nil {
		t.Fatalf("day 30 err = %v", err)
	}
}

func TestSelectDate_StaleResponseDiscarded(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()
	june11 := june10.AddDays(1)

	release := make(chan struct{})
	started := make(chan struct{})
	h.slots.fn = func(ctx context.Context, id int, at time.Time) ([]domain.AvailableSlot, error) {
		if domain.DateOf(at) == june10 {
			close(started)
			<-release
			return scenarioSlots(), nil
		}
		return []domain.AvailableSlot{{DateTime: at.Add(10 * time.Hour), DurationMinutes: 30, IsAvailable: true}}, nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.SelectDate(ctx, june10) }()
	<-started

	if err := h.ctrl.SelectDate(ctx, june11); err != nil {
		t.Fatalf("SelectDate(june11) error: %v", err)
	}
	close(release)
	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("stale response err = %v, want ErrSuperseded", err)
	}

	v := h.ctrl.View()
	if v.Date != june11 || len(v.Slots) != 1 || domain.DateOf(v.Slots[0].DateTime) != june11 {
		t.Fatalf("stale response overwrote newer state: %+v", v)
	}
}

func TestSubmit_RejectsPastSlotWithoutCallingBackend(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()

	_ = h.ctrl.SelectDate(ctx, june10)
	_ = h.ctrl.SelectSlot(Selection{DateTime: nine})
	h.now = nine // the slot starts right now: not strictly in the future

	if _, err := h.ctrl.Submit(ctx, ""); !errors.Is(err, ErrSlotNotInFuture) {
		t.Fatalf("err = %v, want ErrSlotNotInFuture", err)
	}
	if len(h.creator.calls) != 0 {
		t.Fatalf("backend called for a past slot")
	}
	if v := h.ctrl.View(); v.State != Failed || v.Message != MsgNotFuture {
		t.Fatalf("view = %+v", v)
	}
}

func TestSubmit_FailureClassification(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		message  string
		redirect bool
	}{
		{name: "expired", err: &gateway.Error{Kind: gateway.KindAuthorizationExpired, Status: 401}, message: MsgSessionExpired},
		{name: "rejected", err: &gateway.Error{Kind: gateway.KindAuthorizationInvalid, Status: 401}, message: MsgRejected},
		{name: "missing", err: &gateway.Error{Kind: gateway.KindAuthorizationMissing, Status: 401}, redirect: true},
		{name: "server message", err: &gateway.Error{Kind: gateway.KindValidationRejected, Status: 400, Message: "Slot already taken"}, message: "Slot already taken"},
		{name: "generic", err: &gateway.Error{Kind: gateway.KindServerFault, Status: 500}, message: MsgBookingFailed},
		{name: "server fault hides detail", err: &gateway.Error{Kind: gateway.KindServerFault, Status: 500, Message: "NullReferenceException at Booking.cs:42"}, message: MsgBookingFailed},
		{name: "transport", err: &gateway.Error{Kind: gateway.KindTransport}, message: MsgBookingFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, domain.RolePatient)
			ctx := context.Background()
			h.creator.fn = func(context.Context, domain.CreateAppointmentRequest) (domain.Appointment, error) {
				return domain.Appointment{}, tc.err
			}
			_ = h.ctrl.SelectDate(ctx, june10)
			_ = h.ctrl.SelectSlot(Selection{DateTime: nine})

			if _, err := h.ctrl.Submit(ctx, "checkup"); !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			v := h.ctrl.View()
			if v.State != Failed {
				t.Fatalf("state = %v, want %v", v.State, Failed)
			}
			if v.Message != tc.message {
				t.Fatalf("message = %q, want %q", v.Message, tc.message)
			}
			if got := len(h.nav.redirects) > 0; got != tc.redirect {
				t.Fatalf("redirected = %v, want %v", got, tc.redirect)
			}
		})
	}
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()
	attempts := 0
	h.creator.fn = func(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error) {
		attempts++
		if attempts == 1 {
			return domain.Appointment{}, &gateway.Error{Kind: gateway.KindServerFault, Status: 503}
		}
		return domain.Appointment{ID: 7, DateTime: req.DateTime}, nil
	}
	_ = h.ctrl.SelectDate(ctx, june10)
	_ = h.ctrl.SelectSlot(Selection{DateTime: nine})

	if _, err := h.ctrl.Submit(ctx, ""); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if _, err := h.ctrl.Submit(ctx, ""); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if h.ctrl.State() != Booked {
		t.Fatalf("state = %v, want %v", h.ctrl.State(), Booked)
	}
	if _, err := h.ctrl.Submit(ctx, ""); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("double submit err = %v, want ErrAlreadyBooked", err)
	}
}

func TestRefresh_KeepsSelectionWhileStillAvailable(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	ctx := context.Background()
	_ = h.ctrl.SelectDate(ctx, june10)
	_ = h.ctrl.SelectSlot(Selection{DateTime: nine})

	if err := h.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if v := h.ctrl.View(); v.State != SlotSelected || v.Selection == nil {
		t.Fatalf("selection lost on refetch: %+v", v)
	}

	h.slots.fn = func(context.Context, int, time.Time) ([]domain.AvailableSlot, error) {
		return []domain.AvailableSlot{{DateTime: nine, DurationMinutes: 30, IsAvailable: false}}, nil
	}
	if err := h.ctrl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if v := h.ctrl.View(); v.State != SlotsReady || v.Selection != nil {
		t.Fatalf("taken slot must be deselected: %+v", v)
	}
}

func TestSelectDate_LoadFailureSurfacesMessage(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	h.slots.fn = func(context.Context, int, time.Time) ([]domain.AvailableSlot, error) {
		return nil, &gateway.Error{Kind: gateway.KindServerFault, Status: 500}
	}
	if err := h.ctrl.SelectDate(context.Background(), june10); err == nil {
		t.Fatalf("expected error")
	}
	if v := h.ctrl.View(); v.State != SelectingDate || v.Message != MsgSlotsFailed {
		t.Fatalf("view = %+v", v)
	}
}

func TestSubmit_RunsBookedHooks(t *testing.T) {
	h := newHarness(t, domain.RolePatient)
	var hooked []int
	h.ctrl.deps.OnBooked = []BookedHook{func(ctx context.Context, appt domain.Appointment) {
		hooked = append(hooked, appt.ID)
	}}
	h.creator.fn = func(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error) {
		return domain.Appointment{ID: 3}, nil
	}
	ctx := context.Background()
	_ = h.ctrl.SelectDate(ctx, june10)
	_ = h.ctrl.SelectSlot(Selection{DateTime: nine})
	if _, err := h.ctrl.Submit(ctx, ""); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(hooked) != 1 || hooked[0] != 3 {
		t.Fatalf("hooks = %v", hooked)
	}
}
