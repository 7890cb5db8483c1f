package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"turnos-web/internal/agenda"
	"turnos-web/internal/domain"
)

// GET /appointments
func (a *App) MyAppointmentsHandler(c *gin.Context) {
	v, err := workspace(c).Agenda.Patient(c.Request.Context())
	if err != nil {
		respondError(c, err, agenda.MsgLoadFailed)
		return
	}
	respond(c, http.StatusOK, v)
}

// GET /appointments/agenda?date=YYYY-MM-DD&view=day|week
func (a *App) AgendaHandler(c *gin.Context) {
	var d domain.Date
	if raw := c.Query("date"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d = parsed
	}
	mode, err := agenda.ParseMode(c.Query("view"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	v, err := workspace(c).Agenda.Agenda(c.Request.Context(), d, mode)
	if err != nil {
		respondError(c, err, agenda.MsgLoadFailed)
		return
	}
	respond(c, http.StatusOK, v)
}

// GET /appointments/:id
func (a *App) GetAppointmentHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	appt, err := workspace(c).Agenda.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, agenda.MsgLoadFailed)
		return
	}
	respond(c, http.StatusOK, appt)
}

// PUT /appointments/:id/notes
func (a *App) UpdateNotesHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := workspace(c).Agenda.UpdateNotes(c.Request.Context(), id, req.Notes); err != nil {
		respondError(c, err, agenda.MsgNotesFailed)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Notes updated."})
}

// POST /appointments/:id/complete?confirm=true
func (a *App) CompleteAppointmentHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Agenda.Complete(c.Request.Context(), id, c.Query("confirm") == "true"); err != nil {
		respondError(c, err, agenda.MsgCompleteFailed)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Appointment marked as completed."})
}

// POST /appointments/:id/cancel
func (a *App) CancelAppointmentHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := workspace(c).Agenda.Cancel(c.Request.Context(), id, req.Reason, req.Confirm); err != nil {
		respondError(c, err, agenda.MsgCancelFailed)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Appointment cancelled."})
}
