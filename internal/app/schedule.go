package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"turnos-web/internal/domain"
	"turnos-web/internal/schedule"
)

func scheduleResult(c *gin.Context, ctrl *schedule.Controller, status int, err error, generic string) {
	view := ctrl.View()
	if err == nil {
		respond(c, status, view)
		return
	}
	code, msg := statusFor(err, generic)
	respond(c, code, gin.H{"error": msg, "schedule": view})
}

// GET /schedule
func (a *App) ListScheduleHandler(c *gin.Context) {
	ctrl := workspace(c).Schedule()
	_, err := ctrl.Load(c.Request.Context())
	scheduleResult(c, ctrl, http.StatusOK, err, schedule.MsgLoadFailed)
}

// PUT /schedule/draft
func (a *App) UpdateDraftHandler(c *gin.Context) {
	var req domain.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctrl := workspace(c).Schedule()
	ctrl.SetDraft(req)
	scheduleResult(c, ctrl, http.StatusOK, nil, "")
}

// POST /schedule creates an entry. A body replaces the draft first.
func (a *App) CreateScheduleHandler(c *gin.Context) {
	ctrl := workspace(c).Schedule()
	if c.Request.ContentLength != 0 {
		var req domain.CreateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctrl.SetDraft(req)
	}
	_, err := ctrl.Create(c.Request.Context())
	scheduleResult(c, ctrl, http.StatusCreated, err, schedule.MsgCreateFailed)
}

// POST /schedule/:id/edit
func (a *App) BeginEditHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctrl := workspace(c).Schedule()
	err := ctrl.BeginEdit(id)
	scheduleResult(c, ctrl, http.StatusOK, err, "")
}

// PUT /schedule/edit
func (a *App) UpdateEditHandler(c *gin.Context) {
	var req domain.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctrl := workspace(c).Schedule()
	err := ctrl.UpdateEditing(req)
	scheduleResult(c, ctrl, http.StatusOK, err, "")
}

// DELETE /schedule/edit
func (a *App) CancelEditHandler(c *gin.Context) {
	ctrl := workspace(c).Schedule()
	ctrl.CancelEdit()
	scheduleResult(c, ctrl, http.StatusOK, nil, "")
}

// POST /schedule/edit/save
func (a *App) SaveEditHandler(c *gin.Context) {
	ctrl := workspace(c).Schedule()
	_, err := ctrl.SaveEdit(c.Request.Context())
	scheduleResult(c, ctrl, http.StatusOK, err, schedule.MsgUpdateFailed)
}

// DELETE /schedule/:id?confirm=true
func (a *App) DeleteScheduleHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctrl := workspace(c).Schedule()
	err := ctrl.Delete(c.Request.Context(), id, c.Query("confirm") == "true")
	scheduleResult(c, ctrl, http.StatusOK, err, schedule.MsgDeleteFailed)
}
