package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"turnos-web/internal/booking"
	"turnos-web/internal/domain"
)

func (a *App) bookingFor(c *gin.Context) (*booking.Controller, bool) {
	id, ok := pathID(c, "professionalId")
	if !ok {
		return nil, false
	}
	return workspace(c).Booking(id), true
}

// bookingResult answers with the workflow snapshot. On failure the status
// follows the error and the view message, when set, is the error text.
func bookingResult(c *gin.Context, b *booking.Controller, err error, generic string) {
	view := b.View()
	if err == nil {
		respond(c, http.StatusOK, view)
		return
	}
	status, msg := statusFor(err, generic)
	if view.Message != "" {
		msg = view.Message
	}
	respond(c, status, gin.H{"error": msg, "booking": view})
}

// POST /booking/:professionalId enters the workflow on today's date.
func (a *App) EnterBookingHandler(c *gin.Context) {
	b, ok := a.bookingFor(c)
	if !ok {
		return
	}
	err := b.Enter(c.Request.Context())
	bookingResult(c, b, err, booking.MsgSlotsFailed)
}

// GET /booking/:professionalId
func (a *App) BookingSnapshotHandler(c *gin.Context) {
	b, ok := a.bookingFor(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, b.View())
}

// PUT /booking/:professionalId/date
func (a *App) SelectDateHandler(c *gin.Context) {
	b, ok := a.bookingFor(c)
	if !ok {
		return
	}
	var req selectDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := domain.ParseDate(req.Date)
	if err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err = b.SelectDate(c.Request.Context(), d)
	if errors.Is(err, booking.ErrSuperseded) {
		// A newer selection owns the view; report it as is.
		err = nil
	}
	bookingResult(c, b, err, booking.MsgSlotsFailed)
}

// PUT /booking/:professionalId/slot
func (a *App) SelectSlotHandler(c *gin.Context) {
	b, ok := a.bookingFor(c)
	if !ok {
		return
	}
	var req selectSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DateTime.IsZero() {
		respond(c, http.StatusBadRequest, gin.H{"error": "dateTime required"})
		return
	}
	err := b.SelectSlot(booking.Selection{DateTime: req.DateTime, DurationMinutes: req.DurationMinutes})
	bookingResult(c, b, err, "")
}

// POST /booking/:professionalId/submit
func (a *App) SubmitBookingHandler(c *gin.Context) {
	b, ok := a.bookingFor(c)
	if !ok {
		return
	}
	var req submitBookingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	_, err := b.Submit(c.Request.Context(), req.Reason)
	bookingResult(c, b, err, booking.MsgBookingFailed)
}
