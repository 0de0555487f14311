package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StringList is a []string stored as JSONB.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}
}

// TargetCriteria is the recipient targeting predicate of a campaign, stored as JSONB.
// Recipients match when they carry every listed tag and, when set, the location.
type TargetCriteria struct {
	Tags     []string `json:"tags,omitempty"`
	Location *string  `json:"location,omitempty"`
}

func (c TargetCriteria) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *TargetCriteria) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = TargetCriteria{}
		return nil
	default:
		return fmt.Errorf("unsupported type for TargetCriteria: %T", src)
	}
}

// Campaign is a bulk-message sending job with a target audience, message and configuration.
type Campaign struct {
	ID                       uuid.UUID      `db:"id" json:"id"`
	UserID                   uuid.UUID      `db:"user_id" json:"user_id"`
	Name                     string         `db:"name" json:"name"`
	MessageTemplate          string         `db:"message_template" json:"message_template"`
	Criteria                 TargetCriteria `db:"criteria" json:"criteria"`
	LotSize                  int            `db:"lot_size" json:"lot_size"`
	InterMessageDelaySeconds int            `db:"inter_message_delay_seconds" json:"inter_message_delay_seconds"`
	UseVariation             bool           `db:"use_variation" json:"use_variation"`
	VariationCount           int            `db:"variation_count" json:"variation_count"`
	ScheduledAt              *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status                   string         `db:"status" json:"status"`
	TotalLots                int            `db:"total_lots" json:"total_lots"`
	CompletedLots            int            `db:"completed_lots" json:"completed_lots"`
	SentCount                int            `db:"sent_count" json:"sent_count"`
	FailedCount              int            `db:"failed_count" json:"failed_count"`
	CreatedAt                time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at" json:"updated_at"`
}

// Lot is an ordered, immutable-once-created partition of a campaign's recipient list.
type Lot struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	CampaignID    uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	SequenceIndex int        `db:"sequence_index" json:"sequence_index"`
	Recipients    StringList `db:"recipients" json:"recipients"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// DispatchRecord is the outcome log entry for one attempted send to one recipient.
type DispatchRecord struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	CampaignID        uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	LotID             uuid.UUID  `db:"lot_id" json:"lot_id"`
	Recipient         string     `db:"recipient" json:"recipient"`
	MessageText       string     `db:"message_text" json:"message_text"`
	GatewayInstanceID *uuid.UUID `db:"gateway_instance_id" json:"gateway_instance_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	AttemptCount      int        `db:"attempt_count" json:"attempt_count"`
	LastError         *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// GatewayInstance is one connected messaging session capable of sending messages.
// BaseURL and APIKey are opaque to the dispatch engine and only consumed by the
// provider client selected through Provider.
type GatewayInstance struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Provider  string    `db:"provider" json:"provider"`
	BaseURL   string    `db:"base_url" json:"-"`
	APIKey    string    `db:"api_key" json:"-"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MaturationConfig holds the settings of an instance warm-up run, stored as JSONB
// on the schedule row.
type MaturationConfig struct {
	InstanceIDs  []uuid.UUID `json:"instance_ids"`
	MessageCount int         `json:"message_count"`
	MinDelayMs   int         `json:"min_delay_ms"`
	MaxDelayMs   int         `json:"max_delay_ms"`
}

func (c MaturationConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *MaturationConfig) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = MaturationConfig{}
		return nil
	default:
		return fmt.Errorf("unsupported type for MaturationConfig: %T", src)
	}
}

// Schedule is a time-gated job definition promoted to active dispatch when its
// start time arrives. Kind selects between campaign dispatch and maturation runs.
type Schedule struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	UserID           uuid.UUID         `db:"user_id" json:"user_id"`
	Kind             string            `db:"kind" json:"kind"`
	CampaignID       *uuid.UUID        `db:"campaign_id" json:"campaign_id,omitempty"`
	Maturation       *MaturationConfig `db:"maturation" json:"maturation,omitempty"`
	ScheduledStartAt time.Time         `db:"scheduled_start_at" json:"scheduled_start_at"`
	Status           string            `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Contact is an addressable recipient owned by a user.
type Contact struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Phone     string     `db:"phone" json:"phone"`
	Name      string     `db:"name" json:"name"`
	Location  *string    `db:"location" json:"location,omitempty"`
	Tags      StringList `db:"tags" json:"tags"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
