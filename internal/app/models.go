package app

import (
	"time"

	"turnos-web/internal/domain"
)

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Identity      *domain.Identity `json:"identity,omitempty"`
	RoleLabel     string           `json:"roleLabel,omitempty"`
}

type navigationResponse struct {
	Route    string `json:"route"`
	Redirect string `json:"redirect,omitempty"`
}

type selectDateRequest struct {
	Date string `json:"date" binding:"required"`
}

type selectSlotRequest struct {
	DateTime        time.Time `json:"dateTime"`
	DurationMinutes int       `json:"durationMinutes"`
}

type submitBookingRequest struct {
	Reason string `json:"reason"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type cancelRequest struct {
	Reason  string `json:"reason"`
	Confirm bool   `json:"confirm"`
}
