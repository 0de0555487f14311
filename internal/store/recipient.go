package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ResolveRecipients materializes a campaign's targeting criteria into an
// ordered list of phone numbers. Order is stable (creation time, then id) so
// lot slicing is reproducible across runs.
func (s *Store) ResolveRecipients(ctx context.Context, userID uuid.UUID, criteria TargetCriteria) ([]string, error) {
	query := `
SELECT phone
FROM contacts
WHERE user_id = $1
  AND ($2::jsonb IS NULL OR tags @> $2::jsonb)
  AND ($3::text IS NULL OR location = $3)
ORDER BY created_at ASC, id ASC
`
	var tags interface{}
	if len(criteria.Tags) > 0 {
		list := StringList(criteria.Tags)
		value, err := list.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to encode criteria tags: %w", err)
		}
		tags = value
	}

	var phones []string
	err := s.db.SelectContext(ctx, &phones, query, userID, tags, criteria.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	return phones, nil
}
