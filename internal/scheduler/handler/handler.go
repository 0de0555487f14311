package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dispatch-server/internal/apierrors"
	"dispatch-server/internal/auth"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/scheduler"
	"dispatch-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor scheduler.ScheduleProcessor
	logger    *observability.Logger
}

func New(scheduleProcessor scheduler.ScheduleProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: scheduleProcessor,
		logger:    logger,
	}
}

// MaturationRequest represents a warm-up configuration in the HTTP payload
type MaturationRequest struct {
	InstanceIDs  []uuid.UUID `json:"instance_ids" binding:"required,min=2"`
	MessageCount int         `json:"message_count" binding:"required,gt=0"`
	MinDelayMs   int         `json:"min_delay_ms" binding:"gte=0"`
	MaxDelayMs   int         `json:"max_delay_ms" binding:"gte=0"`
}

// CreateScheduleRequest represents the schedule creation payload
type CreateScheduleRequest struct {
	Kind             string             `json:"kind" binding:"required,oneof=campaign maturation"`
	CampaignID       *uuid.UUID         `json:"campaign_id,omitempty"`
	Maturation       *MaturationRequest `json:"maturation,omitempty"`
	ScheduledStartAt time.Time          `json:"scheduled_start_at" binding:"required"`
}

// HandleCreateSchedule creates a schedule
func (h Handler) HandleCreateSchedule(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "invalid_request", err.Error())
		return
	}

	params := scheduler.CreateScheduleParams{
		Kind:             req.Kind,
		CampaignID:       req.CampaignID,
		ScheduledStartAt: req.ScheduledStartAt,
	}
	if req.Maturation != nil {
		params.Maturation = &store.MaturationConfig{
			InstanceIDs:  req.Maturation.InstanceIDs,
			MessageCount: req.Maturation.MessageCount,
			MinDelayMs:   req.Maturation.MinDelayMs,
			MaxDelayMs:   req.Maturation.MaxDelayMs,
		}
	}

	schedule, err := h.processor.Create(ctx, userID, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "schedule": schedule})
}

// HandleListSchedules lists the user's schedules
func (h Handler) HandleListSchedules(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	schedules, err := h.processor.List(ctx, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "schedules": schedules})
}

// HandlePauseSchedule pauses a schedule
func (h Handler) HandlePauseSchedule(c *gin.Context) {
	h.applyAction(c, h.processor.Pause)
}

// HandleResumeSchedule resumes a paused schedule
func (h Handler) HandleResumeSchedule(c *gin.Context) {
	h.applyAction(c, h.processor.Resume)
}

// HandleCancelSchedule cancels a schedule
func (h Handler) HandleCancelSchedule(c *gin.Context) {
	h.applyAction(c, h.processor.Cancel)
}

func (h Handler) applyAction(c *gin.Context, action func(ctx context.Context, userID, scheduleID uuid.UUID) (store.Schedule, error)) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, "invalid_schedule_id", "schedule id must be a UUID")
		return
	}

	schedule, err := action(ctx, userID, scheduleID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "schedule": schedule})
}

func (h Handler) getUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := auth.GetUserID(c)
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to resolve user from context", err)
		apierrors.InternalError(c, err)
		return uuid.Nil, false
	}
	return userID, true
}

func (h Handler) handleError(c *gin.Context, err error) {
	var transitionErr *scheduler.InvalidScheduleTransitionError
	switch {
	case errors.Is(err, scheduler.ErrScheduleNotFound):
		apierrors.NotFound(c, "schedule not found")
	case errors.Is(err, scheduler.ErrInvalidSchedule):
		apierrors.BadRequest(c, "invalid_schedule", err.Error())
	case errors.As(err, &transitionErr):
		apierrors.Conflict(c, "invalid_transition", transitionErr.Error())
	default:
		apierrors.InternalError(c, err)
	}
}
