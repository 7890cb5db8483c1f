// Package cache stores read views keyed by resource kind and parameters,
// and lets mutations invalidate them.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Kind string

const (
	KindMyAppointments           Kind = "my-appointments"
	KindProfessionalAppointments Kind = "professional-appointments"
	KindMySchedule               Kind = "my-schedule"
	KindSpecialties              Kind = "specialties"
)

var ErrMiss = errors.New("cache miss")

// Invalidator drops cached views. With no params every entry of kind is
// dropped; otherwise only entries whose params start with params.
type Invalidator interface {
	Invalidate(ctx context.Context, kind Kind, params ...string) error
}

// Store is a cache of JSON-encodable views.
type Store interface {
	Invalidator
	Get(ctx context.Context, kind Kind, params []string, out any) error
	Set(ctx context.Context, kind Kind, params []string, v any, ttl time.Duration) error
}

const sep = "|"

func key(kind Kind, params []string) string {
	if len(params) == 0 {
		return string(kind)
	}
	return string(kind) + sep + strings.Join(params, sep)
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, Kind, []string, any) error                { return ErrMiss }
func (Nop) Set(context.Context, Kind, []string, any, time.Duration) error { return nil }
func (Nop) Invalidate(context.Context, Kind, ...string) error             { return nil }
