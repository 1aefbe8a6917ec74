package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type queueItemRecord struct {
	bun.BaseModel `bun:"table:webhook_queue_items,alias:wqi"`

	ID            string     `bun:"id,pk"`
	EventType     string     `bun:"event_type,notnull"`
	TargetURL     string     `bun:"target_url,notnull"`
	Payload       []byte     `bun:"payload,notnull"`
	Priority      int        `bun:"priority,notnull"`
	Status        string     `bun:"status,notnull"`
	AttemptCount  int        `bun:"attempt_count,notnull"`
	MaxAttempts   int        `bun:"max_attempts,notnull"`
	NextAttemptAt time.Time  `bun:"next_attempt_at,notnull"`
	ClaimedBy     *string    `bun:"claimed_by"`
	ClaimedAt     *time.Time `bun:"claimed_at,nullzero"`
	LastError     string     `bun:"last_error"`
	EntityType    string     `bun:"entity_type"`
	EntityID      string     `bun:"entity_id"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryLogRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_logs,alias:wdl"`

	ID         string    `bun:"id,pk"`
	ItemID     string    `bun:"item_id,notnull"`
	Attempt    int       `bun:"attempt,notnull"`
	StatusCode int       `bun:"status_code"`
	Outcome    string    `bun:"outcome,notnull"`
	Error      string    `bun:"error"`
	DurationMS int64     `bun:"duration_ms"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type workflowRecord struct {
	bun.BaseModel `bun:"table:webhook_workflows,alias:wwf"`

	ID         string         `bun:"id,pk"`
	EventType  string         `bun:"event_type,notnull"`
	EntityType string         `bun:"entity_type"`
	EntityID   string         `bun:"entity_id"`
	Status     string         `bun:"status,notnull"`
	Decision   string         `bun:"decision"`
	Metadata   map[string]any `bun:"metadata,type:jsonb"`
	ExpiresAt  time.Time      `bun:"expires_at,notnull"`
	ResolvedAt *time.Time     `bun:"resolved_at,nullzero"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type inboundVerificationRecord struct {
	bun.BaseModel `bun:"table:webhook_inbound_verifications,alias:wiv"`

	ID        string    `bun:"id,pk"`
	ReplayKey string    `bun:"replay_key,notnull,unique"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type endpointRecord struct {
	bun.BaseModel `bun:"table:webhook_endpoints,alias:wep"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	TargetURL   string    `bun:"target_url,notnull,unique"`
	Secret      string    `bun:"secret,notnull"`
	Enabled     bool      `bun:"enabled,notnull"`
	MaxAttempts int       `bun:"max_attempts"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:webhook_rate_limit_states,alias:wrl"`

	Key            string     `bun:"key,pk"`
	Host           string     `bun:"host,notnull"`
	Bucket         string     `bun:"bucket"`
	RateLimit      int        `bun:"rate_limit"`
	Remaining      int        `bun:"remaining"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterMS   *int64     `bun:"retry_after_ms"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status"`
	Attempts       int        `bun:"attempts,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
