package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"turnos-web/internal/agenda"
	"turnos-web/internal/booking"
	"turnos-web/internal/domain"
	"turnos-web/internal/gateway"
	"turnos-web/internal/schedule"
)

// statusFor maps an error to its HTTP status and the message shown to the
// user. generic is used when the backend sent no message.
func statusFor(err error, generic string) (int, string) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Error()
	}

	switch {
	case errors.Is(err, booking.ErrNotAuthenticated),
		errors.Is(err, schedule.ErrNotAuthenticated),
		errors.Is(err, agenda.ErrNotAuthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, booking.ErrPatientOnly):
		return http.StatusForbidden, booking.MsgPatientOnly
	case errors.Is(err, schedule.ErrProfessionalOnly),
		errors.Is(err, agenda.ErrProfessionalOnly):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, booking.ErrSlotNotInFuture):
		return http.StatusBadRequest, booking.MsgNotFuture
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrNoSelection),
		errors.Is(err, booking.ErrDateOutOfRange),
		errors.Is(err, schedule.ErrNotEditing),
		errors.Is(err, schedule.ErrNotConfirmed),
		errors.Is(err, agenda.ErrNotConfirmed):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, booking.ErrBusy),
		errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, booking.ErrSuperseded),
		errors.Is(err, schedule.ErrAlreadyEditing),
		errors.Is(err, schedule.ErrEditInProgress),
		errors.Is(err, schedule.ErrBusy):
		return http.StatusConflict, err.Error()
	}

	var gErr *gateway.Error
	if errors.As(err, &gErr) {
		msg := gateway.MessageOr(err, generic)
		switch {
		case gErr.Kind == gateway.KindTransport, gErr.Kind == gateway.KindServerFault:
			return http.StatusBadGateway, generic
		case gErr.Kind.IsAuthorization():
			return http.StatusUnauthorized, msg
		case gErr.Kind == gateway.KindValidationRejected:
			return gErr.Status, msg
		default:
			return http.StatusBadGateway, msg
		}
	}
	return http.StatusInternalServerError, generic
}

// respond writes a JSON body, attaching any redirect the workspace queued.
func respond(c *gin.Context, status int, body any) {
	if ws, ok := c.Get(workspaceKey); ok {
		if r := ws.(*Workspace).Nav.TakeRedirect(); r != "" {
			c.Header(RedirectHeader, r)
		}
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, err error, generic string) {
	status, msg := statusFor(err, generic)
	respond(c, status, gin.H{"error": msg})
}
