package resources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"turnos-web/internal/domain"
)

type Appointments struct {
	api Doer
}

// Mine lists the caller's appointments; the backend filters by role.
func (a *Appointments) Mine(ctx context.Context) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := a.api.Do(ctx, http.MethodGet, "/Appointments/my-appointments", nil, nil, &out)
	return out, err
}

// MineOn is Mine narrowed to a date hint, used by the professional agenda.
func (a *Appointments) MineOn(ctx context.Context, date domain.Date) ([]domain.Appointment, error) {
	var q url.Values
	if !date.IsZero() {
		q = url.Values{"date": {date.String()}}
	}
	var out []domain.Appointment
	err := a.api.Do(ctx, http.MethodGet, "/Appointments/my-appointments", q, nil, &out)
	return out, err
}

func (a *Appointments) Get(ctx context.Context, id int) (domain.Appointment, error) {
	var out domain.Appointment
	err := a.api.Do(ctx, http.MethodGet, fmt.Sprintf("/Appointments/%d", id), nil, nil, &out)
	return out, err
}

func (a *Appointments) Create(ctx context.Context, req domain.CreateAppointmentRequest) (domain.Appointment, error) {
	req.DateTime = req.DateTime.UTC()
	var out domain.Appointment
	err := a.api.Do(ctx, http.MethodPost, "/Appointments", nil, req, &out)
	return out, err
}

// UpdateStatus sends the status as a bare JSON string.
func (a *Appointments) UpdateStatus(ctx context.Context, id int, status domain.AppointmentStatus) error {
	return a.api.Do(ctx, http.MethodPatch, fmt.Sprintf("/Appointments/%d/status", id), nil, string(status), nil)
}

func (a *Appointments) UpdateNotes(ctx context.Context, id int, notes string) error {
	return a.api.Do(ctx, http.MethodPatch, fmt.Sprintf("/Appointments/%d/notes", id), nil,
		domain.UpdateNotesRequest{Notes: notes}, nil)
}

func (a *Appointments) Cancel(ctx context.Context, id int, reason string) error {
	return a.api.Do(ctx, http.MethodPost, fmt.Sprintf("/Appointments/%d/cancel", id), nil,
		domain.CancelAppointmentRequest{Reason: reason}, nil)
}
