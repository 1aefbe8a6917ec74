package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// QueueStore persists outbound queue items. Claiming is a single UPDATE
// inside a transaction so concurrent dispatcher replicas never receive the
// same item.
type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*queueItemRecord]
	now  func() time.Time
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*queueItemRecord](db, queueItemHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid queue repository wiring: %w", err)
		}
	}
	return &QueueStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *QueueStore) Enqueue(ctx context.Context, item *core.QueueItem) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	record, err := s.prepareRecord(item)
	if err != nil {
		return err
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return err
	}
	*item = queueRecordToItem(*created)
	return nil
}

// EnqueueIn writes the queue row on the caller's transaction so it commits
// or rolls back with the caller's own state change.
func (s *QueueStore) EnqueueIn(ctx context.Context, tx any, item *core.QueueItem) error {
	if s == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	idb, err := resolveIDB(tx)
	if err != nil {
		return err
	}
	record, err := s.prepareRecord(item)
	if err != nil {
		return err
	}
	if _, err := idb.NewInsert().Model(record).Exec(ctx); err != nil {
		return err
	}
	*item = queueRecordToItem(*record)
	return nil
}

func (s *QueueStore) prepareRecord(item *core.QueueItem) (*queueItemRecord, error) {
	if item == nil {
		return nil, fmt.Errorf("sqlstore: queue item is required")
	}
	if strings.TrimSpace(item.TargetURL) == "" {
		return nil, fmt.Errorf("sqlstore: queue item target url is required")
	}
	if strings.TrimSpace(string(item.EventType)) == "" {
		return nil, fmt.Errorf("sqlstore: queue item event type is required")
	}
	now := s.clock()
	if strings.TrimSpace(item.ID) == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = core.QueueStatusPending
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = now
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	return queueItemToRecord(*item), nil
}

func (s *QueueStore) Get(ctx context.Context, id string) (core.QueueItem, error) {
	if s == nil || s.db == nil {
		return core.QueueItem{}, fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.QueueItem{}, fmt.Errorf("sqlstore: queue item id is required")
	}
	record := new(queueItemRecord)
	err := s.db.NewSelect().Model(record).Where("wqi.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.QueueItem{}, fmt.Errorf("sqlstore: queue item %s not found", id)
		}
		return core.QueueItem{}, err
	}
	return queueRecordToItem(*record), nil
}

// ClaimBatch picks eligible pending items by priority then due time and
// flips them to claimed in one statement. The inner status recheck guards
// against a concurrent claim between the SELECT and the UPDATE on backends
// that evaluate the CTE without locking.
func (s *QueueStore) ClaimBatch(ctx context.Context, workerID string, limit int) ([]core.QueueItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, fmt.Errorf("sqlstore: worker id is required")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.clock()
	var records []queueItemRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH eligible AS (
	SELECT id
	FROM webhook_queue_items
	WHERE status = ?
	  AND next_attempt_at <= ?
	ORDER BY priority DESC, next_attempt_at ASC
	LIMIT ?
)
UPDATE webhook_queue_items
SET status = ?, claimed_by = ?, claimed_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM eligible)
  AND status = ?
RETURNING
	id,
	event_type,
	target_url,
	payload,
	priority,
	status,
	attempt_count,
	max_attempts,
	next_attempt_at,
	claimed_by,
	claimed_at,
	last_error,
	entity_type,
	entity_id,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.QueueStatusPending),
			now,
			limit,
			string(core.QueueStatusClaimed),
			workerID,
			now,
			now,
			string(core.QueueStatusPending),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	items := make([]core.QueueItem, 0, len(records))
	for _, record := range records {
		items = append(items, queueRecordToItem(record))
	}
	return items, nil
}

func (s *QueueStore) MarkSent(ctx context.Context, id string) error {
	return s.markFromClaimed(ctx, id, func(q *bun.UpdateQuery) {
		q.Set("status = ?", string(core.QueueStatusSent)).
			Set("last_error = ?", "")
	})
}

func (s *QueueStore) MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	return s.markFromClaimed(ctx, id, func(q *bun.UpdateQuery) {
		q.Set("status = ?", string(core.QueueStatusPending)).
			Set("next_attempt_at = ?", nextAttemptAt.UTC()).
			Set("last_error = ?", lastError)
	})
}

func (s *QueueStore) MarkFailed(ctx context.Context, id string, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	return s.markFromClaimed(ctx, id, func(q *bun.UpdateQuery) {
		q.Set("status = ?", string(core.QueueStatusFailed)).
			Set("last_error = ?", lastError)
	})
}

// markFromClaimed applies one attempt outcome. Every outcome consumes an
// attempt and releases the claim; only the target status differs.
func (s *QueueStore) markFromClaimed(ctx context.Context, id string, apply func(*bun.UpdateQuery)) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queue item id is required")
	}
	query := s.db.NewUpdate().
		Model((*queueItemRecord)(nil)).
		Set("attempt_count = attempt_count + 1").
		Set("claimed_by = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", s.clock()).
		Where("id = ?", id).
		Where("status = ?", string(core.QueueStatusClaimed))
	apply(query)
	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("sqlstore: queue item %s is not claimed", id)
	}
	return nil
}

// Defer releases a claimed item back to pending without consuming an
// attempt. Used when throttling prevented the HTTP call entirely.
func (s *QueueStore) Defer(ctx context.Context, id string, until time.Time, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queue item id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*queueItemRecord)(nil)).
		Set("status = ?", string(core.QueueStatusPending)).
		Set("next_attempt_at = ?", until.UTC()).
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("claimed_by = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", s.clock()).
		Where("id = ?", id).
		Where("status = ?", string(core.QueueStatusClaimed)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("sqlstore: queue item %s is not claimed", id)
	}
	return nil
}

func (s *QueueStore) Cancel(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queue item id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*queueItemRecord)(nil)).
		Set("status = ?", string(core.QueueStatusCancelled)).
		Set("updated_at = ?", s.clock()).
		Where("id = ?", id).
		Where("status = ?", string(core.QueueStatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		item, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("sqlstore: cannot cancel queue item %s in status %s", id, item.Status)
	}
	return nil
}

// Retry is the manual operator action: a failed or cancelled item goes back
// to pending with a fresh attempt budget and becomes due immediately.
func (s *QueueStore) Retry(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queue item id is required")
	}
	now := s.clock()
	res, err := s.db.NewUpdate().
		Model((*queueItemRecord)(nil)).
		Set("status = ?", string(core.QueueStatusPending)).
		Set("attempt_count = 0").
		Set("next_attempt_at = ?", now).
		Set("last_error = ?", "").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{
			string(core.QueueStatusFailed),
			string(core.QueueStatusCancelled),
		})).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		item, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("sqlstore: cannot retry queue item %s in status %s", id, item.Status)
	}
	return nil
}

// ReleaseStaleClaims returns items claimed by a worker that never reported
// back to pending. The delivery may or may not have happened; at-least-once
// is the accepted trade.
func (s *QueueStore) ReleaseStaleClaims(ctx context.Context, claimTimeout time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if claimTimeout <= 0 {
		claimTimeout = time.Minute
	}
	cutoff := s.clock().Add(-claimTimeout)
	res, err := s.db.NewUpdate().
		Model((*queueItemRecord)(nil)).
		Set("status = ?", string(core.QueueStatusPending)).
		Set("claimed_by = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", s.clock()).
		Where("status = ?", string(core.QueueStatusClaimed)).
		Where("claimed_at <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *QueueStore) Depth(ctx context.Context) (core.QueueDepth, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	var rows []struct {
		Status   string `bun:"status"`
		Priority int    `bun:"priority"`
		Count    int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*queueItemRecord)(nil)).
		Column("status", "priority").
		ColumnExpr("count(*) AS count").
		Group("status", "priority").
		Order("status ASC", "priority DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	depth := make(core.QueueDepth, 0, len(rows))
	for _, row := range rows {
		depth = append(depth, core.DepthBucket{
			Status:   core.QueueStatus(row.Status),
			Priority: row.Priority,
			Count:    row.Count,
		})
	}
	return depth, nil
}

func (s *QueueStore) PruneTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: queue store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*queueItemRecord)(nil)).
		Where("status IN (?)", bun.In([]string{
			string(core.QueueStatusSent),
			string(core.QueueStatusFailed),
			string(core.QueueStatusCancelled),
		})).
		Where("updated_at < ?", olderThan.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *QueueStore) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func queueItemToRecord(item core.QueueItem) *queueItemRecord {
	record := &queueItemRecord{
		ID:            item.ID,
		EventType:     string(item.EventType),
		TargetURL:     item.TargetURL,
		Payload:       append([]byte(nil), item.Payload...),
		Priority:      item.Priority,
		Status:        string(item.Status),
		AttemptCount:  item.AttemptCount,
		MaxAttempts:   item.MaxAttempts,
		NextAttemptAt: item.NextAttemptAt.UTC(),
		LastError:     item.LastError,
		EntityType:    item.Entity.Type,
		EntityID:      item.Entity.ID,
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
	if trimmed := strings.TrimSpace(item.ClaimedBy); trimmed != "" {
		record.ClaimedBy = &trimmed
	}
	if item.ClaimedAt != nil {
		claimedAt := item.ClaimedAt.UTC()
		record.ClaimedAt = &claimedAt
	}
	return record
}

func queueRecordToItem(record queueItemRecord) core.QueueItem {
	item := core.QueueItem{
		ID:            record.ID,
		EventType:     core.EventType(record.EventType),
		TargetURL:     record.TargetURL,
		Payload:       append([]byte(nil), record.Payload...),
		Priority:      record.Priority,
		Status:        core.QueueStatus(record.Status),
		AttemptCount:  record.AttemptCount,
		MaxAttempts:   record.MaxAttempts,
		NextAttemptAt: record.NextAttemptAt,
		LastError:     record.LastError,
		Entity:        core.EntityRef{Type: record.EntityType, ID: record.EntityID},
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
	if record.ClaimedBy != nil {
		item.ClaimedBy = *record.ClaimedBy
	}
	if record.ClaimedAt != nil {
		claimedAt := *record.ClaimedAt
		item.ClaimedAt = &claimedAt
	}
	return item
}

func resolveIDB(candidate any) (bun.IDB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: transaction handle is required")
	case bun.Tx:
		return typed, nil
	case *bun.Tx:
		return *typed, nil
	case bun.IDB:
		return typed, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported transaction handle type %T", candidate)
	}
}

var (
	_ core.QueueStore            = (*QueueStore)(nil)
	_ core.TransactionalEnqueuer = (*QueueStore)(nil)
)
