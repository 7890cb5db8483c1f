package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin        Role = "Admin"
	RoleProfessional Role = "Professional"
	RolePatient      Role = "Patient"
)

// Label returns the display name of a role. Unknown roles are returned verbatim.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleProfessional:
		return "Professional"
	case RolePatient:
		return "Patient"
	default:
		return string(r)
	}
}

type Identity struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

func (a AuthResponse) Identity() Identity {
	return Identity{
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      Role(a.Role),
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type Specialty struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes"`
}

type Professional struct {
	ID            int       `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	LicenseNumber string    `json:"licenseNumber"`
	Specialty     Specialty `json:"specialty"`
}

type PatientSummary struct {
	ID          int    `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// AvailableSlot is recomputed by the backend on every (professional, date) query.
type AvailableSlot struct {
	DateTime        time.Time `json:"dateTime"`
	DurationMinutes int       `json:"durationMinutes"`
	IsAvailable     bool      `json:"isAvailable"`
}

func (s *AvailableSlot) UnmarshalJSON(b []byte) error {
	type plain AvailableSlot
	var wire struct {
		plain
		DateTime Instant `json:"dateTime"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*s = AvailableSlot(wire.plain)
	s.DateTime = wire.DateTime.Time()
	return nil
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusConfirmed AppointmentStatus = "Confirmed"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusNoShow    AppointmentStatus = "NoShow"
)

type Appointment struct {
	ID              int               `json:"id"`
	DateTime        time.Time         `json:"dateTime"`
	DurationMinutes int               `json:"durationMinutes"`
	Status          AppointmentStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Professional    Professional      `json:"professional"`
	Patient         PatientSummary    `json:"patient"`
}

func (a *Appointment) UnmarshalJSON(b []byte) error {
	type plain Appointment
	var wire struct {
		plain
		DateTime Instant `json:"dateTime"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*a = Appointment(wire.plain)
	a.DateTime = wire.DateTime.Time()
	return nil
}

// End is the instant the appointment finishes.
func (a Appointment) End() time.Time {
	return a.DateTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type CreateAppointmentRequest struct {
	ProfessionalID int       `json:"professionalId"`
	DateTime       time.Time `json:"dateTime"`
	Reason         string    `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// ScheduleEntry is one weekly availability interval of a professional.
type ScheduleEntry struct {
	ID             int    `json:"id"`
	ProfessionalID int    `json:"professionalId"`
	DayOfWeek      int    `json:"dayOfWeek"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	IsActive       bool   `json:"isActive"`
}

type CreateScheduleRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsActive  bool   `json:"isActive"`
}

type UpdateScheduleRequest struct {
	ID        int    `json:"id"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	IsActive  bool   `json:"isActive"`
}

func (e ScheduleEntry) UpdateRequest() UpdateScheduleRequest {
	return UpdateScheduleRequest{
		ID:        e.ID,
		DayOfWeek: e.DayOfWeek,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		IsActive:  e.IsActive,
	}
}

type UserProfile struct {
	ID          int    `json:"id,omitempty"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type UpdateProfileRequest struct {
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// Validate checks the confirmation before the request is sent.
func (r ChangePasswordRequest) Validate() error {
	if r.NewPassword == "" {
		return NewValidationError("The new password cannot be empty.")
	}
	if r.NewPassword != r.ConfirmPassword {
		return NewValidationError("The new password and its confirmation do not match.")
	}
	return nil
}
