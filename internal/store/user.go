package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// GetUserEmailByID returns the notification email of an operator. Account
// management itself lives outside this service; only the address is read.
func (s *Store) GetUserEmailByID(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := s.db.GetContext(ctx, &email, `SELECT email FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get user email: %w", err)
	}
	return email, nil
}
