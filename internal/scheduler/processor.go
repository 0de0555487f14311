package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// ProcessorStore defines the database operations required by ScheduleProcessor
type ProcessorStore interface {
	CreateSchedule(ctx context.Context, params store.CreateScheduleParams) (store.Schedule, error)
	GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (store.Schedule, error)
	ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]store.Schedule, error)
	UpdateScheduleStatusFrom(ctx context.Context, scheduleID uuid.UUID, status string, from ...string) (store.Schedule, error)
	GetCampaignForUser(ctx context.Context, campaignID, userID uuid.UUID) (store.Campaign, error)
}

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

// InvalidScheduleTransitionError rejects a control action illegal in the
// schedule's current status.
type InvalidScheduleTransitionError struct {
	From   string
	Action string
}

func (e *InvalidScheduleTransitionError) Error() string {
	return fmt.Sprintf("cannot %s schedule in status %s", e.Action, e.From)
}

// ScheduleProcessor owns schedule CRUD and the schedule state machine. The
// Manager loop consumes what this creates.
type ScheduleProcessor struct {
	store   ProcessorStore
	control control.Signal
	logger  *observability.Logger
}

func NewProcessor(processorStore ProcessorStore, controlSignal control.Signal, logger *observability.Logger) ScheduleProcessor {
	return ScheduleProcessor{
		store:   processorStore,
		control: controlSignal,
		logger:  logger,
	}
}

// CreateScheduleParams represents parameters for creating a schedule
type CreateScheduleParams struct {
	Kind             string
	CampaignID       *uuid.UUID
	Maturation       *store.MaturationConfig
	ScheduledStartAt time.Time
}

// Create validates and persists a schedule in the scheduled state.
func (p ScheduleProcessor) Create(ctx context.Context, userID uuid.UUID, params CreateScheduleParams) (store.Schedule, error) {
	if params.ScheduledStartAt.Before(time.Now()) {
		return store.Schedule{}, fmt.Errorf("%w: start time must be in the future", ErrInvalidSchedule)
	}

	switch params.Kind {
	case store.ScheduleKindCampaign:
		if params.CampaignID == nil {
			return store.Schedule{}, fmt.Errorf("%w: campaign schedule requires a campaign id", ErrInvalidSchedule)
		}
		campaign, err := p.store.GetCampaignForUser(ctx, *params.CampaignID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Schedule{}, fmt.Errorf("%w: campaign not found", ErrInvalidSchedule)
			}
			return store.Schedule{}, err
		}
		switch campaign.Status {
		case store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusPaused:
		default:
			return store.Schedule{}, fmt.Errorf("%w: campaign cannot be scheduled in status %s", ErrInvalidSchedule, campaign.Status)
		}
	case store.ScheduleKindMaturation:
		cfg := params.Maturation
		if cfg == nil {
			return store.Schedule{}, fmt.Errorf("%w: maturation schedule requires a configuration", ErrInvalidSchedule)
		}
		if len(cfg.InstanceIDs) < 2 {
			return store.Schedule{}, fmt.Errorf("%w: maturation needs at least two instances", ErrInvalidSchedule)
		}
		if cfg.MessageCount <= 0 {
			return store.Schedule{}, fmt.Errorf("%w: message count must be positive", ErrInvalidSchedule)
		}
		if cfg.MinDelayMs < 0 || cfg.MaxDelayMs < cfg.MinDelayMs {
			return store.Schedule{}, fmt.Errorf("%w: invalid delay range", ErrInvalidSchedule)
		}
	default:
		return store.Schedule{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, params.Kind)
	}

	schedule, err := p.store.CreateSchedule(ctx, store.CreateScheduleParams{
		UserID:           userID,
		Kind:             params.Kind,
		CampaignID:       params.CampaignID,
		Maturation:       params.Maturation,
		ScheduledStartAt: params.ScheduledStartAt,
	})
	if err != nil {
		return store.Schedule{}, fmt.Errorf("failed to create schedule: %w", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("schedule %s created for %s", schedule.ID, schedule.ScheduledStartAt))
	return schedule, nil
}

// List returns a user's schedules ordered by start time.
func (p ScheduleProcessor) List(ctx context.Context, userID uuid.UUID) ([]store.Schedule, error) {
	return p.store.ListSchedulesByUser(ctx, userID)
}

// Pause suspends a schedule. A running schedule also gets a stop flag raised
// for its underlying run; that signal is tolerant of failure because the
// worker may already be gone.
func (p ScheduleProcessor) Pause(ctx context.Context, userID, scheduleID uuid.UUID) (store.Schedule, error) {
	schedule, err := p.getOwned(ctx, userID, scheduleID)
	if err != nil {
		return store.Schedule{}, err
	}

	switch schedule.Status {
	case store.ScheduleStatusScheduled, store.ScheduleStatusRunning:
	default:
		return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "pause"}
	}

	if schedule.Status == store.ScheduleStatusRunning {
		if err := p.control.Request(ctx, runKey(schedule)); err != nil {
			p.logger.Error(ctx, "failed to signal running schedule stop, pausing anyway", err)
		}
	}

	schedule, err = p.store.UpdateScheduleStatusFrom(ctx, scheduleID, store.ScheduleStatusPaused,
		store.ScheduleStatusScheduled, store.ScheduleStatusRunning)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "pause"}
		}
		return store.Schedule{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("schedule %s paused", scheduleID))
	return schedule, nil
}

// Resume returns a paused schedule to the scheduled state, where the manager
// will promote it again once due.
func (p ScheduleProcessor) Resume(ctx context.Context, userID, scheduleID uuid.UUID) (store.Schedule, error) {
	schedule, err := p.getOwned(ctx, userID, scheduleID)
	if err != nil {
		return store.Schedule{}, err
	}
	if schedule.Status != store.ScheduleStatusPaused {
		return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "resume"}
	}

	schedule, err = p.store.UpdateScheduleStatusFrom(ctx, scheduleID, store.ScheduleStatusScheduled, store.ScheduleStatusPaused)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "resume"}
		}
		return store.Schedule{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("schedule %s resumed", scheduleID))
	return schedule, nil
}

// Cancel terminally stops a schedule.
func (p ScheduleProcessor) Cancel(ctx context.Context, userID, scheduleID uuid.UUID) (store.Schedule, error) {
	schedule, err := p.getOwned(ctx, userID, scheduleID)
	if err != nil {
		return store.Schedule{}, err
	}

	switch schedule.Status {
	case store.ScheduleStatusScheduled, store.ScheduleStatusRunning, store.ScheduleStatusPaused:
	default:
		return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "cancel"}
	}

	if schedule.Status == store.ScheduleStatusRunning {
		if err := p.control.Request(ctx, runKey(schedule)); err != nil {
			p.logger.Error(ctx, "failed to signal running schedule stop, canceling anyway", err)
		}
	}

	schedule, err = p.store.UpdateScheduleStatusFrom(ctx, scheduleID, store.ScheduleStatusCanceled,
		store.ScheduleStatusScheduled, store.ScheduleStatusRunning, store.ScheduleStatusPaused)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Schedule{}, &InvalidScheduleTransitionError{From: schedule.Status, Action: "cancel"}
		}
		return store.Schedule{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("schedule %s canceled", scheduleID))
	return schedule, nil
}

func (p ScheduleProcessor) getOwned(ctx context.Context, userID, scheduleID uuid.UUID) (store.Schedule, error) {
	schedule, err := p.store.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Schedule{}, ErrScheduleNotFound
		}
		return store.Schedule{}, err
	}
	if schedule.UserID != userID {
		return store.Schedule{}, ErrScheduleNotFound
	}
	return schedule, nil
}

// runKey is the control-signal key of a schedule's underlying run: the
// campaign id for campaign schedules, the schedule id for maturation runs.
func runKey(schedule store.Schedule) string {
	if schedule.Kind == store.ScheduleKindCampaign && schedule.CampaignID != nil {
		return schedule.CampaignID.String()
	}
	return schedule.ID.String()
}
