package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeliveryLogStore is append-only; rows are never updated and outlive the
// queue items they describe.
type DeliveryLogStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryLogRecord]
}

func NewDeliveryLogStore(db *bun.DB) (*DeliveryLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryLogRecord](db, deliveryLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery log repository wiring: %w", err)
		}
	}
	return &DeliveryLogStore{db: db, repo: repo}, nil
}

func (s *DeliveryLogStore) Append(ctx context.Context, entry core.DeliveryLog) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if strings.TrimSpace(entry.ItemID) == "" {
		return fmt.Errorf("sqlstore: delivery log item id is required")
	}
	if strings.TrimSpace(entry.Outcome) == "" {
		return fmt.Errorf("sqlstore: delivery log outcome is required")
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	record := &deliveryLogRecord{
		ID:         id,
		ItemID:     strings.TrimSpace(entry.ItemID),
		Attempt:    entry.Attempt,
		StatusCode: entry.StatusCode,
		Outcome:    strings.TrimSpace(entry.Outcome),
		Error:      entry.Error,
		DurationMS: entry.Duration.Milliseconds(),
		CreatedAt:  createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *DeliveryLogStore) ListByItem(ctx context.Context, itemID string) ([]core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("sqlstore: delivery log item id is required")
	}
	var records []deliveryLogRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("wdl.item_id = ?", itemID).
		Order("wdl.attempt ASC", "wdl.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]core.DeliveryLog, 0, len(records))
	for _, record := range records {
		entries = append(entries, core.DeliveryLog{
			ID:         record.ID,
			ItemID:     record.ItemID,
			Attempt:    record.Attempt,
			StatusCode: record.StatusCode,
			Outcome:    record.Outcome,
			Error:      record.Error,
			Duration:   time.Duration(record.DurationMS) * time.Millisecond,
			CreatedAt:  record.CreatedAt,
		})
	}
	return entries, nil
}

func (s *DeliveryLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*deliveryLogRecord)(nil)).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

var _ core.DeliveryLogStore = (*DeliveryLogStore)(nil)
