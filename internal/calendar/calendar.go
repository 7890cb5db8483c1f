// Package calendar publishes booked appointments to the patient's Google
// Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"turnos-web/internal/domain"
)

var ErrNotConnected = errors.New("google calendar not connected")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// OAuthConfig returns the Google OAuth2 config, or nil when Google is not
// configured.
func OAuthConfig(c Config) *oauth2.Config {
	if !c.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{gcal.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

// Event is a calendar entry as returned to the browser.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	Link        string    `json:"link,omitempty"`
}

type Publisher struct {
	OAuth      *oauth2.Config
	CalendarID string
	// ClientOptions are appended when building the calendar service.
	ClientOptions []option.ClientOption
	Log           *zap.Logger
}

func NewPublisher(oauth *oauth2.Config, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{OAuth: oauth, CalendarID: "primary", Log: log}
}

// AuthURL starts the consent flow; state is echoed back to the callback.
func (p *Publisher) AuthURL(state string) string {
	return p.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *Publisher) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, domain.NewValidationError("authorization code required")
	}
	tok, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (p *Publisher) service(ctx context.Context, tok *oauth2.Token) (*gcal.Service, error) {
	if tok == nil {
		return nil, ErrNotConnected
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(p.OAuth.Client(ctx, tok))}, p.ClientOptions...)
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

// EventFor describes appt as a calendar event.
func EventFor(appt domain.Appointment) *gcal.Event {
	summary := "Medical appointment"
	if name := appt.Professional.FullName; name != "" {
		summary = "Appointment with " + name
	}
	desc := appt.Reason
	if specialty := appt.Professional.Specialty.Name; specialty != "" {
		if desc != "" {
			desc = specialty + ": " + desc
		} else {
			desc = specialty
		}
	}
	end := appt.End()
	if appt.DurationMinutes <= 0 {
		end = appt.DateTime.Add(30 * time.Minute)
	}
	return &gcal.Event{
		Summary:     summary,
		Description: desc,
		Start:       &gcal.EventDateTime{DateTime: appt.DateTime.UTC().Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
	}
}

// Publish inserts appt into the calendar and returns the event id.
func (p *Publisher) Publish(ctx context.Context, tok *oauth2.Token, appt domain.Appointment) (string, error) {
	srv, err := p.service(ctx, tok)
	if err != nil {
		return "", err
	}
	created, err := srv.Events.Insert(p.CalendarID, EventFor(appt)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

// Hook publishes every booked appointment while a token is available.
// Failures are logged only.
func (p *Publisher) Hook(token func() *oauth2.Token) func(ctx context.Context, appt domain.Appointment) {
	return func(ctx context.Context, appt domain.Appointment) {
		tok := token()
		if tok == nil {
			return
		}
		id, err := p.Publish(ctx, tok, appt)
		if err != nil {
			p.Log.Warn("publish appointment to google calendar failed",
				zap.Int("appointment_id", appt.ID), zap.Error(err))
			return
		}
		p.Log.Info("appointment published to google calendar",
			zap.Int("appointment_id", appt.ID), zap.String("event_id", id))
	}
}

// Events lists the events between from and to, ordered by start time.
func (p *Publisher) Events(ctx context.Context, tok *oauth2.Token, from, to time.Time) ([]Event, error) {
	srv, err := p.service(ctx, tok)
	if err != nil {
		return nil, err
	}
	call := srv.Events.List(p.CalendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		Context(ctx)
	if !from.IsZero() {
		call = call.TimeMin(from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		call = call.TimeMax(to.Format(time.RFC3339))
	}
	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]Event, 0, len(events.Items))
	for _, item := range events.Items {
		out = append(out, Event{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			StartTime:   eventTime(item.Start),
			EndTime:     eventTime(item.End),
			Status:      item.Status,
			Link:        item.HtmlLink,
		})
	}
	return out, nil
}

func eventTime(dt *gcal.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
