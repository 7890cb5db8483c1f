package domain

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const localInstantLayout = "2006-01-02T15:04:05"

var instantLocation atomic.Pointer[time.Location]

// SetInstantLocation sets the zone used for backend timestamps that carry no
// offset. Defaults to time.Local.
func SetInstantLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	instantLocation.Store(loc)
}

func currentInstantLocation() *time.Location {
	if loc := instantLocation.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Instant is a backend timestamp. It decodes RFC 3339 values and also the
// offset-less "2006-01-02T15:04:05" form, read in the instant location.
type Instant time.Time

func ParseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localInstantLayout, s, currentInstantLocation())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func (i Instant) Time() time.Time { return time.Time(i) }

func (i Instant) MarshalJSON() ([]byte, error) {
	return time.Time(i).MarshalJSON()
}

func (i *Instant) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t, err := ParseInstant(s)
	if err != nil {
		return err
	}
	*i = Instant(t)
	return nil
}
