package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const dispatchRecordColumns = `id, campaign_id, lot_id, recipient, message_text, gateway_instance_id, status, attempt_count, last_error, created_at, updated_at`

// CreateDispatchRecordParams represents a send attempt about to happen
type CreateDispatchRecordParams struct {
	CampaignID        uuid.UUID
	LotID             uuid.UUID
	Recipient         string
	MessageText       string
	GatewayInstanceID *uuid.UUID
}

const sqlCreateDispatchRecord = `
INSERT INTO dispatch_records (campaign_id, lot_id, recipient, message_text, gateway_instance_id, status, attempt_count)
VALUES ($1, $2, $3, $4, $5, 'pending', 0)
RETURNING ` + dispatchRecordColumns

// CreateDispatchRecord creates a pending record for one send attempt
func (s *Store) CreateDispatchRecord(ctx context.Context, params CreateDispatchRecordParams) (DispatchRecord, error) {
	var record DispatchRecord
	err := s.db.GetContext(ctx, &record, sqlCreateDispatchRecord,
		params.CampaignID,
		params.LotID,
		params.Recipient,
		params.MessageText,
		params.GatewayInstanceID)
	if err != nil {
		return DispatchRecord{}, fmt.Errorf("failed to create dispatch record: %w", err)
	}
	return record, nil
}

// UpdateDispatchRecordOutcomeParams finalizes a send attempt
type UpdateDispatchRecordOutcomeParams struct {
	RecordID          uuid.UUID
	Status            string
	AttemptCount      int
	GatewayInstanceID *uuid.UUID
	LastError         *string
}

const sqlUpdateDispatchRecordOutcome = `
UPDATE dispatch_records
SET status = $2,
    attempt_count = $3,
    gateway_instance_id = COALESCE($4, gateway_instance_id),
    last_error = $5,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING ` + dispatchRecordColumns

// UpdateDispatchRecordOutcome records the outcome of a send attempt
func (s *Store) UpdateDispatchRecordOutcome(ctx context.Context, params UpdateDispatchRecordOutcomeParams) (DispatchRecord, error) {
	var record DispatchRecord
	err := s.db.GetContext(ctx, &record, sqlUpdateDispatchRecordOutcome,
		params.RecordID,
		params.Status,
		params.AttemptCount,
		params.GatewayInstanceID,
		params.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DispatchRecord{}, ErrNotFound
		}
		return DispatchRecord{}, fmt.Errorf("failed to update dispatch record: %w", err)
	}
	return record, nil
}

const sqlGetTerminalRecipientsByLot = `
SELECT recipient
FROM dispatch_records
WHERE lot_id = $1 AND status IN ('sent', 'delivered', 'failed', 'canceled')
`

// GetTerminalRecipientsByLot returns the recipients of a lot that already have
// a terminal dispatch record. A lot is complete when every one of its
// recipients appears here; the check is read-only so resume stays idempotent.
func (s *Store) GetTerminalRecipientsByLot(ctx context.Context, lotID uuid.UUID) (map[string]bool, error) {
	var recipients []string
	err := s.db.SelectContext(ctx, &recipients, sqlGetTerminalRecipientsByLot, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get terminal recipients: %w", err)
	}

	terminal := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		terminal[r] = true
	}
	return terminal, nil
}

const sqlListDispatchRecordsByCampaign = `
SELECT ` + dispatchRecordColumns + `
FROM dispatch_records
WHERE campaign_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`

// ListDispatchRecordsByCampaign retrieves a campaign's dispatch records with pagination
func (s *Store) ListDispatchRecordsByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]DispatchRecord, error) {
	var records []DispatchRecord
	err := s.db.SelectContext(ctx, &records, sqlListDispatchRecordsByCampaign, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch records: %w", err)
	}
	return records, nil
}

const sqlCountDispatchRecordsByStatus = `
SELECT COUNT(*)
FROM dispatch_records
WHERE campaign_id = $1 AND status = $2
`

// CountDispatchRecordsByStatus counts a campaign's records in a given status
func (s *Store) CountDispatchRecordsByStatus(ctx context.Context, campaignID uuid.UUID, status string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, sqlCountDispatchRecordsByStatus, campaignID, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count dispatch records: %w", err)
	}
	return count, nil
}
