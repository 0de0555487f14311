package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const scheduleColumns = `id, user_id, kind, campaign_id, maturation, scheduled_start_at, status, created_at, updated_at`

// CreateScheduleParams represents parameters for creating a schedule
type CreateScheduleParams struct {
	UserID           uuid.UUID
	Kind             string
	CampaignID       *uuid.UUID
	Maturation       *MaturationConfig
	ScheduledStartAt time.Time
}

const sqlCreateSchedule = `
INSERT INTO schedules (user_id, kind, campaign_id, maturation, scheduled_start_at, status)
VALUES ($1, $2, $3, $4, $5, 'agendado')
RETURNING ` + scheduleColumns

// CreateSchedule creates a new schedule in the scheduled state
func (s *Store) CreateSchedule(ctx context.Context, params CreateScheduleParams) (Schedule, error) {
	var schedule Schedule
	err := s.db.GetContext(ctx, &schedule, sqlCreateSchedule,
		params.UserID,
		params.Kind,
		params.CampaignID,
		params.Maturation,
		params.ScheduledStartAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to create schedule: %w", err)
	}
	return schedule, nil
}

const sqlGetScheduleByID = `
SELECT ` + scheduleColumns + `
FROM schedules
WHERE id = $1
`

// GetScheduleByID retrieves a schedule by ID
func (s *Store) GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (Schedule, error) {
	var schedule Schedule
	err := s.db.GetContext(ctx, &schedule, sqlGetScheduleByID, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNotFound
		}
		return Schedule{}, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

const sqlListSchedulesByUser = `
SELECT ` + scheduleColumns + `
FROM schedules
WHERE user_id = $1
ORDER BY scheduled_start_at ASC
`

// ListSchedulesByUser retrieves all schedules of a user
func (s *Store) ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]Schedule, error) {
	var schedules []Schedule
	err := s.db.SelectContext(ctx, &schedules, sqlListSchedulesByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

const sqlGetDueSchedules = `
SELECT ` + scheduleColumns + `
FROM schedules
WHERE status = 'agendado' AND scheduled_start_at <= $1
ORDER BY scheduled_start_at ASC
`

// GetDueSchedules returns schedules whose start time has arrived
func (s *Store) GetDueSchedules(ctx context.Context, beforeTime time.Time) ([]Schedule, error) {
	var schedules []Schedule
	err := s.db.SelectContext(ctx, &schedules, sqlGetDueSchedules, beforeTime)
	if err != nil {
		return nil, fmt.Errorf("failed to get due schedules: %w", err)
	}
	return schedules, nil
}

// UpdateScheduleStatusFrom moves a schedule to the given status only when its
// current status is one of from. ErrNotFound signals a lost transition race
// or an illegal transition.
func (s *Store) UpdateScheduleStatusFrom(ctx context.Context, scheduleID uuid.UUID, status string, from ...string) (Schedule, error) {
	query, args, err := sqlx.In(
		`UPDATE schedules SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status IN (?) RETURNING `+scheduleColumns,
		status, scheduleID, from)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to build schedule status update: %w", err)
	}
	query = s.db.Rebind(query)

	var schedule Schedule
	err = s.db.GetContext(ctx, &schedule, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, ErrNotFound
		}
		return Schedule{}, fmt.Errorf("failed to update schedule status: %w", err)
	}
	return schedule, nil
}
