package resources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"turnos-web/internal/domain"
)

type Specialties struct {
	api Doer
}

func (s *Specialties) List(ctx context.Context) ([]domain.Specialty, error) {
	var out []domain.Specialty
	err := s.api.Do(ctx, http.MethodGet, "/Specialties", nil, nil, &out)
	return out, err
}

func (s *Specialties) Get(ctx context.Context, id int) (domain.Specialty, error) {
	var out domain.Specialty
	err := s.api.Do(ctx, http.MethodGet, fmt.Sprintf("/Specialties/%d", id), nil, nil, &out)
	return out, err
}

type Professionals struct {
	api Doer
}

// List returns all professionals, filtered by specialty when specialtyID > 0.
func (p *Professionals) List(ctx context.Context, specialtyID int) ([]domain.Professional, error) {
	var q url.Values
	if specialtyID > 0 {
		q = url.Values{"specialtyId": {strconv.Itoa(specialtyID)}}
	}
	var out []domain.Professional
	err := p.api.Do(ctx, http.MethodGet, "/Professionals", q, nil, &out)
	return out, err
}

func (p *Professionals) Get(ctx context.Context, id int) (domain.Professional, error) {
	var out domain.Professional
	err := p.api.Do(ctx, http.MethodGet, fmt.Sprintf("/Professionals/%d", id), nil, nil, &out)
	return out, err
}

// AvailableSlots queries the slots of one professional for the day starting
// at the instant at. The date is always sent as an absolute UTC instant.
func (p *Professionals) AvailableSlots(ctx context.Context, id int, at time.Time) ([]domain.AvailableSlot, error) {
	q := url.Values{"date": {FormatInstant(at)}}
	var out []domain.AvailableSlot
	err := p.api.Do(ctx, http.MethodGet, fmt.Sprintf("/Professionals/%d/available-slots", id), q, nil, &out)
	return out, err
}

// FormatInstant renders t as an ISO 8601 UTC instant with millisecond
// precision, e.g. 2025-06-10T03:00:00.000Z.
func FormatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
