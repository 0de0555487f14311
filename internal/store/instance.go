package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const instanceColumns = `id, user_id, name, provider, base_url, api_key, status, created_at, updated_at`

const sqlListConnectedInstances = `
SELECT ` + instanceColumns + `
FROM gateway_instances
WHERE user_id = $1 AND status = 'connected'
ORDER BY created_at ASC
`

// ListConnectedInstances returns the user's currently connected gateway
// instances in stable creation order. The dispatch loop refreshes this roster
// per lot because connectivity can change mid-run.
func (s *Store) ListConnectedInstances(ctx context.Context, userID uuid.UUID) ([]GatewayInstance, error) {
	var instances []GatewayInstance
	err := s.db.SelectContext(ctx, &instances, sqlListConnectedInstances, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected instances: %w", err)
	}
	return instances, nil
}

const sqlListInstancesByUser = `
SELECT ` + instanceColumns + `
FROM gateway_instances
WHERE user_id = $1
ORDER BY created_at ASC
`

// ListInstancesByUser returns all of a user's gateway instances
func (s *Store) ListInstancesByUser(ctx context.Context, userID uuid.UUID) ([]GatewayInstance, error) {
	var instances []GatewayInstance
	err := s.db.SelectContext(ctx, &instances, sqlListInstancesByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

const sqlGetInstanceByID = `
SELECT ` + instanceColumns + `
FROM gateway_instances
WHERE id = $1
`

// GetInstanceByID retrieves a gateway instance by ID
func (s *Store) GetInstanceByID(ctx context.Context, instanceID uuid.UUID) (GatewayInstance, error) {
	var instance GatewayInstance
	err := s.db.GetContext(ctx, &instance, sqlGetInstanceByID, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GatewayInstance{}, ErrNotFound
		}
		return GatewayInstance{}, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// UpdateInstanceStatus records a connectivity change reported by webhooks or
// an operator refresh.
func (s *Store) UpdateInstanceStatus(ctx context.Context, instanceID uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gateway_instances SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		instanceID, status)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
