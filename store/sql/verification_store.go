package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationStore is the SQL-backed replay ledger. The unique constraint
// on replay_key is what makes Claim safe across relay replicas: only one
// insert wins, everyone else sees a duplicate.
type VerificationStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewVerificationStore(db *bun.DB) (*VerificationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &VerificationStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *VerificationStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: verification store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("sqlstore: replay key is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := s.clock()
	record := &inboundVerificationRecord{
		ID:        uuid.NewString(),
		ReplayKey: key,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (replay_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return true, nil
	}

	// The key exists. An expired entry can be reclaimed; a live one means
	// this is a replay.
	updateRes, err := s.db.NewUpdate().
		Model((*inboundVerificationRecord)(nil)).
		Set("expires_at = ?", now.Add(ttl)).
		Set("created_at = ?", now).
		Where("replay_key = ?", key).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	reclaimed, _ := updateRes.RowsAffected()
	return reclaimed > 0, nil
}

func (s *VerificationStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: verification store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*inboundVerificationRecord)(nil)).
		Where("expires_at <= ?", s.clock()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *VerificationStore) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

var _ core.ReplayLedger = (*VerificationStore)(nil)
