// Package booking drives the date → slots → selection → submission workflow
// for booking an appointment with one professional.
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"turnos-web/internal/cache"
	"turnos-web/internal/domain"
	"turnos-web/internal/gateway"
)

var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrPatientOnly      = errors.New("only patients can book appointments")
	ErrSlotNotInFuture  = errors.New("selected time is not in the future")
	ErrSlotUnavailable  = errors.New("slot is not available")
	ErrNoSelection      = errors.New("no slot selected")
	ErrDateOutOfRange   = errors.New("date outside the booking window")
	ErrBusy             = errors.New("a booking is already being submitted")
	ErrAlreadyBooked    = errors.New("appointment already booked")
	// ErrSuperseded is returned when a slot response arrives after a newer
	// date was selected; the response is discarded.
	ErrSuperseded = errors.New("slot response superseded")
)

const (
	MsgPatientOnly    = "Only patients can book appointments. You can still browse the available times."
	MsgNotFuture      = "The selected time has already passed. Please pick another time."
	MsgSessionExpired = "Your session has expired. Please log in again to book."
	MsgRejected       = "The server rejected your session. Please log out and log in again."
	MsgBookingFailed  = "Could not book the appointment."
	MsgSlotsFailed    = "Could not load the available times."
	MsgBooked         = "Appointment booked successfully."
)

type SlotSource interface {
	AvailableSlots(ctx context.Context, professionalID int, at time.Time) ([]domain.AvailableSlot, error)
}

type AppointmentCreator interface {
	Create(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error)
}

// Sessions is the read side of the session context.
type Sessions interface {
	IsAuthenticated() bool
	Identity() domain.Identity
}

type Navigator interface {
	Redirect(route string)
}

// BookedHook runs after a successful booking. Its failures never change the
// booking outcome.
type BookedHook func(ctx context.Context, appt domain.Appointment)

type Config struct {
	LoginRoute string
	WindowDays int
	Location   *time.Location
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.LoginRoute == "" {
		c.LoginRoute = gateway.DefaultLoginRoute
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Selection captures a chosen slot by value so it survives refetches.
type Selection struct {
	DateTime        time.Time `json:"dateTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

type Deps struct {
	Sessions Sessions
	Slots    SlotSource
	Creator  AppointmentCreator
	Cache    cache.Invalidator
	Nav      Navigator
	Log      *zap.Logger
	OnBooked []BookedHook
}

type Controller struct {
	professionalID int
	deps           Deps
	cfg            Config

	mu          sync.Mutex
	state       State
	date        domain.Date
	loading     bool
	slots       []domain.AvailableSlot
	selection   *Selection
	appointment *domain.Appointment
	message     string
}

func New(professionalID int, deps Deps, cfg Config) *Controller {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	return &Controller{professionalID: professionalID, deps: deps, cfg: cfg.withDefaults()}
}

func (c *Controller) ProfessionalID() int {
	return c.professionalID
}

func (c *Controller) today() domain.Date {
	return domain.DateOf(c.cfg.Now().In(c.cfg.Location))
}

// Window returns the first and last date the UI offers.
func (c *Controller) Window() (domain.Date, domain.Date) {
	t := c.today()
	return t, t.AddDays(c.cfg.WindowDays)
}

// Enter guards the workflow: unauthenticated callers are redirected to
// login before any state is entered. Authenticated callers start on today.
func (c *Controller) Enter(ctx context.Context) error {
	if !c.deps.Sessions.IsAuthenticated() {
		c.deps.Nav.Redirect(c.cfg.LoginRoute)
		return ErrNotAuthenticated
	}
	return c.SelectDate(ctx, c.today())
}

// SelectDate clears any selection and fetches the slots of d. A response for
// a date that is no longer current is discarded with ErrSuperseded.
func (c *Controller) SelectDate(ctx context.Context, d domain.Date) error {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	lo, hi := c.Window()
	if d.Before(lo) || d.After(hi) {
		c.mu.Unlock()
		return ErrDateOutOfRange
	}
	c.date = d
	c.selection = nil
	c.appointment = nil
	c.slots = nil
	c.message = ""
	c.state = LoadingSlots
	c.loading = true
	c.mu.Unlock()

	return c.fetch(ctx, d)
}

// Refresh refetches the current date, keeping the selection if the same
// slot is still available.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.date.IsZero() {
		c.mu.Unlock()
		return ErrNoSelection
	}
	d := c.date
	c.state = LoadingSlots
	c.loading = true
	c.mu.Unlock()

	return c.fetch(ctx, d)
}

func (c *Controller) fetch(ctx context.Context, d domain.Date) error {
	slots, err := c.deps.Slots.AvailableSlots(ctx, c.professionalID, d.Midnight(c.cfg.Location))

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loading || c.date != d {
		c.deps.Log.Debug("discarding superseded slot response",
			zap.Int("professional_id", c.professionalID),
			zap.Stringer("date", d))
		return ErrSuperseded
	}
	c.loading = false
	if err != nil {
		c.state = SelectingDate
		c.selection = nil
		c.message = gateway.MessageOr(err, MsgSlotsFailed)
		return err
	}
	c.slots = slots
	if c.selection != nil {
		if _, ok := c.findAvailable(*c.selection); ok {
			c.state = SlotSelected
			return nil
		}
		c.selection = nil
	}
	c.state = SlotsReady
	return nil
}

func (c *Controller) findAvailable(sel Selection) (domain.AvailableSlot, bool) {
	for _, s := range c.slots {
		if !s.IsAvailable || !s.DateTime.Equal(sel.DateTime) {
			continue
		}
		if sel.DurationMinutes != 0 && sel.DurationMinutes != s.DurationMinutes {
			continue
		}
		return s, true
	}
	return domain.AvailableSlot{}, false
}

// SelectSlot picks an available slot of the current set. Unavailable or
// unknown slots are rejected.
func (c *Controller) SelectSlot(sel Selection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case SlotsReady, SlotSelected, Failed:
	case Submitting:
		return ErrBusy
	default:
		return ErrSlotUnavailable
	}
	slot, ok := c.findAvailable(sel)
	if !ok {
		return ErrSlotUnavailable
	}
	c.selection = &Selection{DateTime: slot.DateTime, DurationMinutes: slot.DurationMinutes}
	c.state = SlotSelected
	c.message = ""
	return nil
}

// Submit books the selected slot. Role and time checks happen before any
// network call.
func (c *Controller) Submit(ctx context.Context, reason string) (domain.Appointment, error) {
	c.mu.Lock()
	switch c.state {
	case Submitting:
		c.mu.Unlock()
		return domain.Appointment{}, ErrBusy
	case Booked:
		c.mu.Unlock()
		return domain.Appointment{}, ErrAlreadyBooked
	}
	if c.selection == nil || (c.state != SlotSelected && c.state != Failed) {
		c.mu.Unlock()
		return domain.Appointment{}, ErrNoSelection
	}
	if !c.deps.Sessions.IsAuthenticated() {
		c.mu.Unlock()
		c.deps.Nav.Redirect(c.cfg.LoginRoute)
		return domain.Appointment{}, ErrNotAuthenticated
	}
	identity := c.deps.Sessions.Identity()
	if identity.Role != domain.RolePatient {
		c.message = MsgPatientOnly
		c.mu.Unlock()
		return domain.Appointment{}, ErrPatientOnly
	}
	sel := *c.selection
	if sel.DateTime.IsZero() || !sel.DateTime.After(c.cfg.Now()) {
		c.state = Failed
		c.message = MsgNotFuture
		c.mu.Unlock()
		return domain.Appointment{}, ErrSlotNotInFuture
	}
	c.state = Submitting
	c.message = ""
	c.mu.Unlock()

	appt, err := c.deps.Creator.Create(ctx, domain.CreateAppointmentRequest{
		ProfessionalID: c.professionalID,
		DateTime:       sel.DateTime.UTC(),
		Reason:         reason,
	})
	if err != nil {
		return domain.Appointment{}, c.fail(err)
	}

	c.mu.Lock()
	c.state = Booked
	c.appointment = &appt
	c.message = MsgBooked
	c.mu.Unlock()

	if err := c.deps.Cache.Invalidate(ctx, cache.KindMyAppointments, identity.Email); err != nil {
		c.deps.Log.Warn("invalidate my appointments failed", zap.Error(err))
	}
	c.deps.Log.Info("appointment booked",
		zap.Int("professional_id", c.professionalID),
		zap.Int("appointment_id", appt.ID),
		zap.Time("date_time", appt.DateTime))
	for _, hook := range c.deps.OnBooked {
		hook(ctx, appt)
	}
	return appt, nil
}

func (c *Controller) fail(err error) error {
	kind := gateway.KindOf(err)

	c.mu.Lock()
	c.state = Failed
	switch kind {
	case gateway.KindAuthorizationExpired:
		// The gateway's delayed logout takes care of navigation.
		c.message = MsgSessionExpired
	case gateway.KindAuthorizationInvalid:
		c.message = MsgRejected
	case gateway.KindAuthorizationMissing:
		c.message = ""
	default:
		c.message = gateway.MessageOr(err, MsgBookingFailed)
	}
	c.mu.Unlock()

	c.deps.Log.Warn("booking failed",
		zap.Int("professional_id", c.professionalID),
		zap.Stringer("kind", kind),
		zap.Error(err))
	if kind == gateway.KindAuthorizationMissing {
		c.deps.Nav.Redirect(c.cfg.LoginRoute)
	}
	return err
}

// View is a read-only snapshot of the workflow.
type View struct {
	ProfessionalID int                    `json:"professionalId"`
	State          State                  `json:"state"`
	Date           domain.Date            `json:"date"`
	MinDate        domain.Date            `json:"minDate"`
	MaxDate        domain.Date            `json:"maxDate"`
	Slots          []domain.AvailableSlot `json:"slots"`
	Selectable     []domain.AvailableSlot `json:"selectable"`
	Selection      *Selection             `json:"selection,omitempty"`
	CanBook        bool                   `json:"canBook"`
	Appointment    *domain.Appointment    `json:"appointment,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

func (c *Controller) View() View {
	lo, hi := c.Window()
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		ProfessionalID: c.professionalID,
		State:          c.state,
		Date:           c.date,
		MinDate:        lo,
		MaxDate:        hi,
		Slots:          append([]domain.AvailableSlot(nil), c.slots...),
		Selectable:     Selectable(c.slots),
		CanBook:        c.deps.Sessions.Identity().Role == domain.RolePatient,
		Message:        c.message,
	}
	if c.selection != nil {
		sel := *c.selection
		v.Selection = &sel
	}
	if c.appointment != nil {
		appt := *c.appointment
		v.Appointment = &appt
	}
	return v
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selectable filters slots down to the ones that can be booked.
func Selectable(slots []domain.AvailableSlot) []domain.AvailableSlot {
	out := make([]domain.AvailableSlot, 0, len(slots))
	for _, s := range slots {
		if s.IsAvailable {
			out = append(out, s)
		}
	}
	return out
}
