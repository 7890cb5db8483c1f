// Package schedule manages a professional's weekly availability entries.
// At most one entry is in edit mode at a time.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"turnos-web/internal/cache"
	"turnos-web/internal/domain"
	"turnos-web/internal/gateway"
)

var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrProfessionalOnly = errors.New("only professionals manage schedules")
	ErrAlreadyEditing   = errors.New("another schedule entry is being edited")
	ErrNotEditing       = errors.New("no schedule entry is being edited")
	ErrEditInProgress   = errors.New("finish editing before deleting")
	ErrNotConfirmed     = errors.New("deletion not confirmed")
	ErrNotFound         = errors.New("schedule entry not found")
	ErrBusy             = errors.New("another schedule change is in progress")
)

const (
	MsgLoadFailed   = "Could not load your schedule."
	MsgCreateFailed = "Could not create the schedule entry."
	MsgUpdateFailed = "Could not update the schedule entry."
	MsgDeleteFailed = "Could not delete the schedule entry."
	MsgCreated      = "Schedule entry created."
	MsgUpdated      = "Schedule entry updated."
	MsgDeleted      = "Schedule entry deleted."
)

// Source is the backend side of schedule management.
type Source interface {
	Mine(ctx context.Context) ([]domain.ScheduleEntry, error)
	Create(ctx context.Context, req domain.CreateScheduleRequest) (domain.ScheduleEntry, error)
	Update(ctx context.Context, req domain.UpdateScheduleRequest) (domain.ScheduleEntry, error)
	Delete(ctx context.Context, id int) error
}

type Sessions interface {
	IsAuthenticated() bool
	Identity() domain.Identity
}

// DefaultDraft is the creation form after a reset.
func DefaultDraft() domain.CreateScheduleRequest {
	return domain.CreateScheduleRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsActive: true}
}

type Controller struct {
	api      Source
	sessions Sessions
	cache    cache.Store
	ttl      time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	entries   []domain.ScheduleEntry
	draft     domain.CreateScheduleRequest
	editingID int
	editing   domain.UpdateScheduleRequest
	busy      bool
	message   string
}

func New(api Source, sessions Sessions, store cache.Store, ttl time.Duration, log *zap.Logger) *Controller {
	if store == nil {
		store = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{api: api, sessions: sessions, cache: store, ttl: ttl, log: log, draft: DefaultDraft()}
}

func (c *Controller) guard() (domain.Identity, error) {
	if !c.sessions.IsAuthenticated() {
		return domain.Identity{}, ErrNotAuthenticated
	}
	id := c.sessions.Identity()
	if id.Role != domain.RoleProfessional {
		return id, ErrProfessionalOnly
	}
	return id, nil
}

// Validate checks a schedule interval before it is sent.
func Validate(day int, start, end string) error {
	if !domain.ValidWeekday(day) {
		return domain.NewValidationError("Day of week must be between 0 (Sunday) and 6 (Saturday).")
	}
	s, err := domain.ParseClock(start)
	if err != nil {
		return domain.NewValidationError("Start time must use the HH:mm format.")
	}
	e, err := domain.ParseClock(end)
	if err != nil {
		return domain.NewValidationError("End time must use the HH:mm format.")
	}
	if !s.Before(e) {
		return domain.NewValidationError("Start time must be before end time.")
	}
	return nil
}

// Load returns the professional's entries, from cache when possible.
func (c *Controller) Load(ctx context.Context) ([]domain.ScheduleEntry, error) {
	id, err := c.guard()
	if err != nil {
		return nil, err
	}
	var entries []domain.ScheduleEntry
	if err := c.cache.Get(ctx, cache.KindMySchedule, []string{id.Email}, &entries); err == nil {
		c.setEntries(entries)
		return entries, nil
	}
	return c.refresh(ctx, id)
}

func (c *Controller) refresh(ctx context.Context, id domain.Identity) ([]domain.ScheduleEntry, error) {
	entries, err := c.api.Mine(ctx)
	if err != nil {
		c.mu.Lock()
		c.message = gateway.MessageOr(err, MsgLoadFailed)
		c.mu.Unlock()
		return nil, err
	}
	if err := c.cache.Set(ctx, cache.KindMySchedule, []string{id.Email}, entries, c.ttl); err != nil {
		c.log.Warn("cache my schedule failed", zap.Error(err))
	}
	c.setEntries(entries)
	return entries, nil
}

func (c *Controller) setEntries(entries []domain.ScheduleEntry) {
	c.mu.Lock()
	c.entries = append([]domain.ScheduleEntry(nil), entries...)
	c.mu.Unlock()
}

// afterMutation drops the cached list and refetches it. A failed refetch
// keeps the previous list.
func (c *Controller) afterMutation(ctx context.Context, id domain.Identity) {
	if err := c.cache.Invalidate(ctx, cache.KindMySchedule, id.Email); err != nil {
		c.log.Warn("invalidate my schedule failed", zap.Error(err))
	}
	if _, err := c.refresh(ctx, id); err != nil {
		c.log.Warn("refresh schedule failed", zap.Error(err))
	}
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	c.message = ""
	return nil
}

func (c *Controller) end(msg string) {
	c.mu.Lock()
	c.busy = false
	c.message = msg
	c.mu.Unlock()
}

func (c *Controller) Draft() domain.CreateScheduleRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the creation form contents.
func (c *Controller) SetDraft(d domain.CreateScheduleRequest) {
	c.mu.Lock()
	c.draft = d
	c.mu.Unlock()
}

// Create submits the draft. On success the draft is reset and the list
// refreshed; on failure the draft is kept.
func (c *Controller) Create(ctx context.Context) (domain.ScheduleEntry, error) {
	id, err := c.guard()
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	draft := c.Draft()
	if err := Validate(draft.DayOfWeek, draft.StartTime, draft.EndTime); err != nil {
		return domain.ScheduleEntry{}, err
	}
	if err := c.begin(); err != nil {
		return domain.ScheduleEntry{}, err
	}

	entry, err := c.api.Create(ctx, draft)
	if err != nil {
		c.end(gateway.MessageOr(err, MsgCreateFailed))
		c.log.Warn("create schedule entry failed", zap.Error(err))
		return domain.ScheduleEntry{}, err
	}
	c.mu.Lock()
	c.draft = DefaultDraft()
	c.mu.Unlock()
	c.afterMutation(ctx, id)
	c.end(MsgCreated)
	return entry, nil
}

// BeginEdit puts entry id in edit mode. It is rejected while a different
// entry is being edited.
func (c *Controller) BeginEdit(id int) error {
	if _, err := c.guard(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingID != 0 && c.editingID != id {
		return ErrAlreadyEditing
	}
	if c.editingID == id {
		return nil
	}
	for _, e := range c.entries {
		if e.ID == id {
			req := e.UpdateRequest()
			req.StartTime = domain.FormatClock(req.StartTime)
			req.EndTime = domain.FormatClock(req.EndTime)
			c.editingID = id
			c.editing = req
			return nil
		}
	}
	return ErrNotFound
}

// UpdateEditing replaces the fields of the entry being edited. The id is
// fixed by BeginEdit.
func (c *Controller) UpdateEditing(fields domain.CreateScheduleRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editingID == 0 {
		return ErrNotEditing
	}
	c.editing = domain.UpdateScheduleRequest{
		ID:        c.editingID,
		DayOfWeek: fields.DayOfWeek,
		StartTime: fields.StartTime,
		EndTime:   fields.EndTime,
		IsActive:  fields.IsActive,
	}
	return nil
}

func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editingID = 0
	c.editing = domain.UpdateScheduleRequest{}
	c.mu.Unlock()
}

// EditingID returns the entry in edit mode, or 0.
func (c *Controller) EditingID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingID
}

// SaveEdit sends the edited entry as a full replace. Edit mode is left only
// once the backend accepted it.
func (c *Controller) SaveEdit(ctx context.Context) (domain.ScheduleEntry, error) {
	id, err := c.guard()
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	c.mu.Lock()
	if c.editingID == 0 {
		c.mu.Unlock()
		return domain.ScheduleEntry{}, ErrNotEditing
	}
	req := c.editing
	c.mu.Unlock()

	if err := Validate(req.DayOfWeek, req.StartTime, req.EndTime); err != nil {
		return domain.ScheduleEntry{}, err
	}
	if err := c.begin(); err != nil {
		return domain.ScheduleEntry{}, err
	}

	entry, err := c.api.Update(ctx, req)
	if err != nil {
		c.end(gateway.MessageOr(err, MsgUpdateFailed))
		c.log.Warn("update schedule entry failed", zap.Int("schedule_id", req.ID), zap.Error(err))
		return domain.ScheduleEntry{}, err
	}
	c.mu.Lock()
	if c.editingID == req.ID {
		c.editingID = 0
		c.editing = domain.UpdateScheduleRequest{}
	}
	c.mu.Unlock()
	c.afterMutation(ctx, id)
	c.end(MsgUpdated)
	return entry, nil
}

// Delete removes entry id once the user confirmed. It is disabled while any
// entry is in edit mode.
func (c *Controller) Delete(ctx context.Context, entryID int, confirmed bool) error {
	id, err := c.guard()
	if err != nil {
		return err
	}
	c.mu.Lock()
	editing := c.editingID != 0
	c.mu.Unlock()
	if editing {
		return ErrEditInProgress
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := c.begin(); err != nil {
		return err
	}

	if err := c.api.Delete(ctx, entryID); err != nil {
		c.end(gateway.MessageOr(err, MsgDeleteFailed))
		c.log.Warn("delete schedule entry failed", zap.Int("schedule_id", entryID), zap.Error(err))
		return err
	}
	c.afterMutation(ctx, id)
	c.end(MsgDeleted)
	return nil
}

// Row is a schedule entry as shown in the list.
type Row struct {
	domain.ScheduleEntry
	DayName string `json:"dayName"`
	Editing bool   `json:"editing"`
}

type View struct {
	Entries   []Row                         `json:"entries"`
	Draft     domain.CreateScheduleRequest  `json:"draft"`
	EditingID int                           `json:"editingId,omitempty"`
	Editing   *domain.UpdateScheduleRequest `json:"editing,omitempty"`
	CanDelete bool                          `json:"canDelete"`
	Busy      bool                          `json:"busy"`
	Message   string                        `json:"message,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Entries:   make([]Row, 0, len(c.entries)),
		Draft:     c.draft,
		EditingID: c.editingID,
		CanDelete: c.editingID == 0 && !c.busy,
		Busy:      c.busy,
		Message:   c.message,
	}
	for _, e := range c.entries {
		v.Entries = append(v.Entries, Row{ScheduleEntry: e, DayName: domain.WeekdayName(e.DayOfWeek), Editing: e.ID == c.editingID})
	}
	if c.editingID != 0 {
		ed := c.editing
		v.Editing = &ed
	}
	return v
}
