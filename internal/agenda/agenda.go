// Package agenda builds the appointment views of patients and
// professionals and applies the professional's follow-up actions.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"turnos-web/internal/cache"
	"turnos-web/internal/domain"
)

var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrProfessionalOnly = errors.New("only professionals manage the agenda")
	ErrNotConfirmed     = errors.New("action not confirmed")
)

const (
	MsgLoadFailed     = "Could not load the appointments."
	MsgNotesFailed    = "Could not update the notes."
	MsgCompleteFailed = "Could not mark the appointment as completed."
	MsgCancelFailed   = "Could not cancel the appointment."
)

type Source interface {
	Mine(ctx context.Context) ([]domain.Appointment, error)
	MineOn(ctx context.Context, date domain.Date) ([]domain.Appointment, error)
	Get(ctx context.Context, id int) (domain.Appointment, error)
	UpdateNotes(ctx context.Context, id int, notes string) error
	UpdateStatus(ctx context.Context, id int, status domain.AppointmentStatus) error
	Cancel(ctx context.Context, id int, reason string) error
}

type Sessions interface {
	IsAuthenticated() bool
	Identity() domain.Identity
}

// Mode selects the span of the professional agenda.
type Mode string

const (
	ModeDay  Mode = "day"
	ModeWeek Mode = "week"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeDay:
		return ModeDay, nil
	case ModeWeek:
		return ModeWeek, nil
	}
	return "", domain.NewValidationError(fmt.Sprintf("unknown view %q: want day or week", s))
}

type Service struct {
	api      Source
	sessions Sessions
	cache    cache.Store
	ttl      time.Duration
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(s *Service) {
		if store != nil {
			s.cache = store
		}
		s.ttl = ttl
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func New(api Source, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		api:      api,
		sessions: sessions,
		cache:    cache.Nop{},
		loc:      time.Local,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) identity() (domain.Identity, error) {
	if !s.sessions.IsAuthenticated() {
		return domain.Identity{}, ErrNotAuthenticated
	}
	return s.sessions.Identity(), nil
}

func (s *Service) professional() (domain.Identity, error) {
	id, err := s.identity()
	if err != nil {
		return id, err
	}
	if id.Role != domain.RoleProfessional {
		return id, ErrProfessionalOnly
	}
	return id, nil
}

// PatientView splits the caller's appointments into upcoming and history,
// each ordered newest first.
type PatientView struct {
	Upcoming []domain.Appointment `json:"upcoming"`
	History  []domain.Appointment `json:"history"`
}

func Split(appts []domain.Appointment, now time.Time) PatientView {
	sorted := append([]domain.Appointment(nil), appts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateTime.After(sorted[j].DateTime)
	})
	v := PatientView{Upcoming: []domain.Appointment{}, History: []domain.Appointment{}}
	for _, a := range sorted {
		if !a.DateTime.Before(now) && a.Status != domain.StatusCancelled {
			v.Upcoming = append(v.Upcoming, a)
		} else {
			v.History = append(v.History, a)
		}
	}
	return v
}

// Mine returns the caller's appointments, cached per user.
func (s *Service) Mine(ctx context.Context) ([]domain.Appointment, error) {
	id, err := s.identity()
	if err != nil {
		return nil, err
	}
	params := []string{id.Email}
	var appts []domain.Appointment
	if err := s.cache.Get(ctx, cache.KindMyAppointments, params, &appts); err == nil {
		return appts, nil
	}
	appts, err = s.api.Mine(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.KindMyAppointments, params, appts, s.ttl); err != nil {
		s.log.Warn("cache my appointments failed", zap.Error(err))
	}
	return appts, nil
}

func (s *Service) Patient(ctx context.Context) (PatientView, error) {
	appts, err := s.Mine(ctx)
	if err != nil {
		return PatientView{}, err
	}
	return Split(appts, s.now()), nil
}

// WeekOf returns the Monday..Sunday week containing d.
func WeekOf(d domain.Date) (domain.Date, domain.Date) {
	wd := int(d.Midnight(time.UTC).Weekday())
	start := d.AddDays(-((wd + 6) % 7))
	return start, start.AddDays(6)
}

// Span returns the first and last day covered by mode around d.
func Span(d domain.Date, mode Mode) (domain.Date, domain.Date) {
	if mode == ModeWeek {
		return WeekOf(d)
	}
	return d, d
}

// Filter keeps the appointments whose local day falls in the span of mode
// around d, ordered by start time.
func Filter(appts []domain.Appointment, d domain.Date, mode Mode, loc *time.Location) []domain.Appointment {
	from, to := Span(d, mode)
	out := []domain.Appointment{}
	for _, a := range appts {
		day := domain.DateOf(a.DateTime.In(loc))
		if day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateTime.Before(out[j].DateTime)
	})
	return out
}

type AgendaView struct {
	Date         domain.Date          `json:"date"`
	Mode         Mode                 `json:"mode"`
	From         domain.Date          `json:"from"`
	To           domain.Date          `json:"to"`
	Appointments []domain.Appointment `json:"appointments"`
}

// Agenda lists the professional's appointments for the day or week of d.
// A zero d means today.
func (s *Service) Agenda(ctx context.Context, d domain.Date, mode Mode) (AgendaView, error) {
	id, err := s.professional()
	if err != nil {
		return AgendaView{}, err
	}
	if d.IsZero() {
		d = domain.DateOf(s.now().In(s.loc))
	}
	params := []string{id.Email, d.String()}
	var appts []domain.Appointment
	if err := s.cache.Get(ctx, cache.KindProfessionalAppointments, params, &appts); err != nil {
		appts, err = s.api.MineOn(ctx, d)
		if err != nil {
			return AgendaView{}, err
		}
		if err := s.cache.Set(ctx, cache.KindProfessionalAppointments, params, appts, s.ttl); err != nil {
			s.log.Warn("cache professional appointments failed", zap.Error(err))
		}
	}
	from, to := Span(d, mode)
	return AgendaView{Date: d, Mode: mode, From: from, To: to, Appointments: Filter(appts, d, mode, s.loc)}, nil
}

func (s *Service) Get(ctx context.Context, apptID int) (domain.Appointment, error) {
	if _, err := s.identity(); err != nil {
		return domain.Appointment{}, err
	}
	return s.api.Get(ctx, apptID)
}

func (s *Service) invalidate(ctx context.Context, id domain.Identity) {
	if err := s.cache.Invalidate(ctx, cache.KindProfessionalAppointments, id.Email); err != nil {
		s.log.Warn("invalidate professional appointments failed", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, cache.KindMyAppointments, id.Email); err != nil {
		s.log.Warn("invalidate my appointments failed", zap.Error(err))
	}
}

func (s *Service) UpdateNotes(ctx context.Context, apptID int, notes string) error {
	id, err := s.professional()
	if err != nil {
		return err
	}
	if err := s.api.UpdateNotes(ctx, apptID, notes); err != nil {
		s.log.Warn("update notes failed", zap.Int("appointment_id", apptID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Complete marks an appointment as completed once the professional
// confirmed.
func (s *Service) Complete(ctx context.Context, apptID int, confirmed bool) error {
	id, err := s.professional()
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := s.api.UpdateStatus(ctx, apptID, domain.StatusCompleted); err != nil {
		s.log.Warn("complete appointment failed", zap.Int("appointment_id", apptID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Cancel cancels an appointment with a reason once the user confirmed.
func (s *Service) Cancel(ctx context.Context, apptID int, reason string, confirmed bool) error {
	id, err := s.identity()
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.NewValidationError("A cancellation reason is required.")
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := s.api.Cancel(ctx, apptID, reason); err != nil {
		s.log.Warn("cancel appointment failed", zap.Int("appointment_id", apptID), zap.Error(err))
		return err
	}
	s.invalidate(ctx, id)
	return nil
}
