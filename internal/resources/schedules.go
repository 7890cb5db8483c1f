package resources

import (
	"context"
	"fmt"
	"net/http"

	"turnos-web/internal/domain"
)

type Schedules struct {
	api Doer
}

// Mine lists the schedule entries of the authenticated professional.
func (s *Schedules) Mine(ctx context.Context) ([]domain.ScheduleEntry, error) {
	var out []domain.ScheduleEntry
	err := s.api.Do(ctx, http.MethodGet, "/Schedule/my-schedule", nil, nil, &out)
	return out, err
}

func (s *Schedules) Create(ctx context.Context, req domain.CreateScheduleRequest) (domain.ScheduleEntry, error) {
	var out domain.ScheduleEntry
	err := s.api.Do(ctx, http.MethodPost, "/Schedule", nil, req, &out)
	return out, err
}

// Update replaces the whole entry identified by req.ID.
func (s *Schedules) Update(ctx context.Context, req domain.UpdateScheduleRequest) (domain.ScheduleEntry, error) {
	var out domain.ScheduleEntry
	err := s.api.Do(ctx, http.MethodPut, "/Schedule", nil, req, &out)
	return out, err
}

func (s *Schedules) Delete(ctx context.Context, id int) error {
	return s.api.Do(ctx, http.MethodDelete, fmt.Sprintf("/Schedule/%d", id), nil, nil, nil)
}
