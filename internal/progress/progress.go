package progress

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no progress entry exists for a key.
var ErrNotFound = errors.New("progress entry not found")

// maxLogEntries bounds the per-entry log ring. Oldest lines are evicted first.
const maxLogEntries = 200

// Entry is the live state of one dispatch or maturation run, keyed by run id.
// Entries are process-lifetime-scoped in the memory backend; only the owning
// worker writes a given key, polling clients read eventually-consistent
// snapshots.
type Entry struct {
	Status           string     `json:"status"`
	Sent             int        `json:"sent"`
	Failed           int        `json:"failed"`
	Total            int        `json:"total"`
	CurrentRecipient string     `json:"current_recipient,omitempty"`
	CurrentInstance  string     `json:"current_instance,omitempty"`
	NextMessageAt    *int64     `json:"next_message_at,omitempty"` // epoch ms
	Logs             []LogLine  `json:"logs"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LogLine is one bounded-ring log entry.
type LogLine struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Update is a partial entry mutation; nil fields are left untouched.
type Update struct {
	Status           *string
	Sent             *int
	Failed           *int
	Total            *int
	CurrentRecipient *string
	CurrentInstance  *string
	NextMessageAt    *int64
	ClearNextMessage bool
	AppendLog        *string
}

// Store is the keyed live-progress record polled by clients.
type Store interface {
	Update(ctx context.Context, key string, update Update) error
	Read(ctx context.Context, key string) (Entry, error)
	Delete(ctx context.Context, key string) error
}

// apply merges an update into an entry, maintaining the log ring bound.
func apply(entry *Entry, update Update, now time.Time) {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = now
	}
	if update.Status != nil {
		entry.Status = *update.Status
	}
	if update.Sent != nil {
		entry.Sent = *update.Sent
	}
	if update.Failed != nil {
		entry.Failed = *update.Failed
	}
	if update.Total != nil {
		entry.Total = *update.Total
	}
	if update.CurrentRecipient != nil {
		entry.CurrentRecipient = *update.CurrentRecipient
	}
	if update.CurrentInstance != nil {
		entry.CurrentInstance = *update.CurrentInstance
	}
	if update.NextMessageAt != nil {
		entry.NextMessageAt = update.NextMessageAt
	}
	if update.ClearNextMessage {
		entry.NextMessageAt = nil
	}
	if update.AppendLog != nil {
		entry.Logs = append(entry.Logs, LogLine{At: now, Message: *update.AppendLog})
		if len(entry.Logs) > maxLogEntries {
			entry.Logs = entry.Logs[len(entry.Logs)-maxLogEntries:]
		}
	}
	entry.UpdatedAt = now
}
