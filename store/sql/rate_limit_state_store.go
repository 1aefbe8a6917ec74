package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-webhook-relay/ratelimit"
	"github.com/uptrace/bun"
)

// RateLimitStateStore shares throttle state across dispatcher replicas so
// one replica's 429 slows all of them down.
type RateLimitStateStore struct {
	db *bun.DB
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateLimitStateStore{db: db}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	normalized := ratelimit.NormalizeKey(key)
	if normalized.Host == "" {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit host is required")
	}
	record := new(rateLimitStateRecord)
	err := s.db.NewSelect().Model(record).Where("wrl.key = ?", rateLimitRecordKey(normalized)).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, err
	}
	return rateLimitRecordToState(*record), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if state.Key.Host == "" {
		return fmt.Errorf("sqlstore: rate-limit host is required")
	}
	updatedAt := state.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	record := &rateLimitStateRecord{
		Key:        rateLimitRecordKey(state.Key),
		Host:       state.Key.Host,
		Bucket:     state.Key.Bucket,
		RateLimit:  state.Limit,
		Remaining:  state.Remaining,
		LastStatus: state.LastStatus,
		Attempts:   state.Attempts,
		UpdatedAt:  updatedAt,
	}
	if state.ResetAt != nil {
		resetAt := state.ResetAt.UTC()
		record.ResetAt = &resetAt
	}
	if state.RetryAfter != nil {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}
	if state.ThrottledUntil != nil {
		until := state.ThrottledUntil.UTC()
		record.ThrottledUntil = &until
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("rate_limit = EXCLUDED.rate_limit").
		Set("remaining = EXCLUDED.remaining").
		Set("reset_at = EXCLUDED.reset_at").
		Set("retry_after_ms = EXCLUDED.retry_after_ms").
		Set("throttled_until = EXCLUDED.throttled_until").
		Set("last_status = EXCLUDED.last_status").
		Set("attempts = EXCLUDED.attempts").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func rateLimitRecordKey(key ratelimit.Key) string {
	return key.Host + "|" + key.Bucket
}

func rateLimitRecordToState(record rateLimitStateRecord) ratelimit.State {
	state := ratelimit.State{
		Key:        ratelimit.Key{Host: record.Host, Bucket: record.Bucket},
		Limit:      record.RateLimit,
		Remaining:  record.Remaining,
		LastStatus: record.LastStatus,
		Attempts:   record.Attempts,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.ResetAt != nil {
		resetAt := *record.ResetAt
		state.ResetAt = &resetAt
	}
	if record.RetryAfterMS != nil {
		retryAfter := time.Duration(*record.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retryAfter
	}
	if record.ThrottledUntil != nil {
		until := *record.ThrottledUntil
		state.ThrottledUntil = &until
	}
	return state
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)
