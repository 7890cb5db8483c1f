// Package resources wraps each backend resource in a typed client. Every
// method maps to exactly one HTTP call: no retries, no caching.
package resources

import (
	"context"
	"net/url"
)

// Doer is the transport the resource clients run on.
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

// Set bundles one client per resource over the same transport.
type Set struct {
	Auth          *Auth
	Specialties   *Specialties
	Professionals *Professionals
	Schedules     *Schedules
	Appointments  *Appointments
	Profile       *Profile
}

func New(api Doer) *Set {
	return &Set{
		Auth:          &Auth{api: api},
		Specialties:   &Specialties{api: api},
		Professionals: &Professionals{api: api},
		Schedules:     &Schedules{api: api},
		Appointments:  &Appointments{api: api},
		Profile:       &Profile{api: api},
	}
}
