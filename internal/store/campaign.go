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

const campaignColumns = `id, user_id, name, message_template, criteria, lot_size, inter_message_delay_seconds, use_variation, variation_count, scheduled_at, status, total_lots, completed_lots, sent_count, failed_count, created_at, updated_at`

// CreateCampaignParams represents parameters for creating a campaign
type CreateCampaignParams struct {
	UserID                   uuid.UUID
	Name                     string
	MessageTemplate          string
	Criteria                 TargetCriteria
	LotSize                  int
	InterMessageDelaySeconds int
	UseVariation             bool
	VariationCount           int
	ScheduledAt              *time.Time
}

const sqlCreateCampaign = `
INSERT INTO campaigns (user_id, name, message_template, criteria, lot_size, inter_message_delay_seconds, use_variation, variation_count, scheduled_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $9::timestamptz IS NOT NULL THEN 'scheduled' ELSE 'draft' END)
RETURNING ` + campaignColumns

// CreateCampaign creates a new campaign owned by a user
func (s *Store) CreateCampaign(ctx context.Context, params CreateCampaignParams) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlCreateCampaign,
		params.UserID,
		params.Name,
		params.MessageTemplate,
		params.Criteria,
		params.LotSize,
		params.InterMessageDelaySeconds,
		params.UseVariation,
		params.VariationCount,
		params.ScheduledAt)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignByID = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE id = $1
`

// GetCampaignByID retrieves a campaign by ID
func (s *Store) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByID, campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignForUser = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE id = $1 AND user_id = $2
`

// GetCampaignForUser retrieves a campaign by ID, filtered by owner
func (s *Store) GetCampaignForUser(ctx context.Context, campaignID, userID uuid.UUID) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignForUser, campaignID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

const sqlListCampaignsByUser = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// ListCampaignsByUser retrieves a user's campaigns with pagination
func (s *Store) ListCampaignsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Campaign, error) {
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, sqlListCampaignsByUser, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCampaignStatus unconditionally moves a campaign to the given status.
func (s *Store) UpdateCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign,
		`UPDATE campaigns SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 RETURNING `+campaignColumns,
		campaignID, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("failed to update campaign status: %w", err)
	}
	return campaign, nil
}

// UpdateCampaignStatusFrom moves a campaign to the given status only when its
// current status is one of from. ErrNotFound signals the conditional update
// matched no row, which callers treat as a lost transition race.
func (s *Store) UpdateCampaignStatusFrom(ctx context.Context, campaignID uuid.UUID, status string, from ...string) (Campaign, error) {
	query, args, err := sqlx.In(
		`UPDATE campaigns SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status IN (?) RETURNING `+campaignColumns,
		status, campaignID, from)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to build status update: %w", err)
	}
	query = s.db.Rebind(query)

	var campaign Campaign
	err = s.db.GetContext(ctx, &campaign, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("failed to update campaign status: %w", err)
	}
	return campaign, nil
}

const sqlGetDueCampaigns = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
ORDER BY scheduled_at ASC
`

// GetDueCampaigns retrieves scheduled campaigns whose start time has arrived.
// This also picks up campaigns parked by the dispatch engine while their
// whole instance roster was disconnected.
func (s *Store) GetDueCampaigns(ctx context.Context, beforeTime time.Time) ([]Campaign, error) {
	var campaigns []Campaign
	err := s.db.SelectContext(ctx, &campaigns, sqlGetDueCampaigns, beforeTime)
	if err != nil {
		return nil, fmt.Errorf("failed to get due campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCampaignScheduledAt sets the scheduled start time of a campaign
func (s *Store) UpdateCampaignScheduledAt(ctx context.Context, campaignID uuid.UUID, scheduledAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET scheduled_at = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		campaignID, scheduledAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimLotMaterialization atomically claims the right to create lots for a
// campaign. It succeeds for exactly one caller: the conditional update flips
// total_lots away from zero, so a concurrent duplicate start observes zero
// affected rows and must not materialize again.
func (s *Store) ClaimLotMaterialization(ctx context.Context, campaignID uuid.UUID, totalLots int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET total_lots = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND total_lots = 0`,
		campaignID, totalLots)
	if err != nil {
		return false, fmt.Errorf("failed to claim lot materialization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// IncrementCampaignCounters adds send outcome deltas to the campaign progress summary
func (s *Store) IncrementCampaignCounters(ctx context.Context, campaignID uuid.UUID, sentDelta, failedDelta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET sent_count = sent_count + $2, failed_count = failed_count + $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		campaignID, sentDelta, failedDelta)
	if err != nil {
		return fmt.Errorf("failed to increment campaign counters: %w", err)
	}
	return nil
}

// IncrementCompletedLots bumps the completed lot counter
func (s *Store) IncrementCompletedLots(ctx context.Context, campaignID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET completed_lots = completed_lots + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		campaignID)
	if err != nil {
		return fmt.Errorf("failed to increment completed lots: %w", err)
	}
	return nil
}

// DeleteCampaign removes a campaign and its lots and dispatch records. The
// processor refuses deletion while the campaign is processing; the status
// guard here backs that up at the database level.
func (s *Store) DeleteCampaign(ctx context.Context, campaignID, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND user_id = $2 AND status <> 'processing'`,
		campaignID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
