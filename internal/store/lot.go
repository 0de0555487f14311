package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const lotColumns = `id, campaign_id, sequence_index, recipients, status, created_at`

// CreateLotParams represents one lot to persist for a campaign
type CreateLotParams struct {
	CampaignID    uuid.UUID
	SequenceIndex int
	Recipients    StringList
}

const sqlCreateLot = `
INSERT INTO lots (campaign_id, sequence_index, recipients, status)
VALUES ($1, $2, $3, 'pending')
RETURNING ` + lotColumns

// CreateLots persists a campaign's lots in a single transaction, preserving
// sequence order.
func (s *Store) CreateLots(ctx context.Context, params []CreateLotParams) ([]Lot, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin lot transaction: %w", err)
	}
	defer tx.Rollback()

	lots := make([]Lot, 0, len(params))
	for _, p := range params {
		var lot Lot
		if err := tx.GetContext(ctx, &lot, sqlCreateLot, p.CampaignID, p.SequenceIndex, p.Recipients); err != nil {
			return nil, fmt.Errorf("failed to create lot %d: %w", p.SequenceIndex, err)
		}
		lots = append(lots, lot)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lots: %w", err)
	}
	return lots, nil
}

const sqlGetLotsByCampaign = `
SELECT ` + lotColumns + `
FROM lots
WHERE campaign_id = $1
ORDER BY sequence_index ASC
`

// GetLotsByCampaign retrieves a campaign's lots in sequence order
func (s *Store) GetLotsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]Lot, error) {
	var lots []Lot
	err := s.db.SelectContext(ctx, &lots, sqlGetLotsByCampaign, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lots: %w", err)
	}
	return lots, nil
}

// UpdateLotStatus moves a lot to the given status
func (s *Store) UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status string) (Lot, error) {
	var lot Lot
	err := s.db.GetContext(ctx, &lot,
		`UPDATE lots SET status = $2 WHERE id = $1 RETURNING `+lotColumns,
		lotID, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lot{}, ErrNotFound
		}
		return Lot{}, fmt.Errorf("failed to update lot status: %w", err)
	}
	return lot, nil
}
