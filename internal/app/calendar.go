package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"turnos-web/internal/calendar"
)

func (a *App) calendarEnabled(c *gin.Context) bool {
	if a.Calendar == nil {
		respond(c, http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return false
	}
	return true
}

// GET /calendar/connect starts the Google consent flow.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	ws := workspace(c)
	state := uuid.NewString()
	ws.mu.Lock()
	ws.oauthState = state
	ws.mu.Unlock()

	respond(c, http.StatusOK, gin.H{
		"authUrl": a.Calendar.AuthURL(state),
		"state":   state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	ws := workspace(c)
	state := c.Query("state")
	ws.mu.Lock()
	expected := ws.oauthState
	ws.oauthState = ""
	ws.mu.Unlock()
	if expected == "" || state != expected {
		respond(c, http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}

	tok, err := a.Calendar.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		a.Log.Warn("google code exchange failed", zap.Error(err))
		respondError(c, err, "failed to exchange code for token")
		return
	}
	ws.setGoogleToken(tok)
	respond(c, http.StatusOK, gin.H{"message": "Google Calendar connected", "connected": true})
}

// GET /calendar/events?from=&to= (RFC3339)
func (a *App) GoogleCalendarEventsHandler(c *gin.Context) {
	if !a.calendarEnabled(c) {
		return
	}
	var from, to time.Time
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		respond(c, http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	events, err := a.Calendar.Events(c.Request.Context(), workspace(c).GoogleToken(), from, to)
	if errors.Is(err, calendar.ErrNotConnected) {
		respond(c, http.StatusConflict, gin.H{"error": "Google Calendar not connected"})
		return
	}
	if err != nil {
		a.Log.Warn("list google events failed", zap.Error(err))
		respond(c, http.StatusBadGateway, gin.H{"error": "failed to retrieve events"})
		return
	}
	respond(c, http.StatusOK, gin.H{"events": events, "count": len(events)})
}
