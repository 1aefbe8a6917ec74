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

// WorkflowStore persists callback workflows. Resolution is a conditional
// UPDATE guarded on the awaiting status, so two racing callbacks can never
// both win; the loser observes zero affected rows and reads the winner's
// terminal state.
type WorkflowStore struct {
	db   *bun.DB
	repo repository.Repository[*workflowRecord]
	now  func() time.Time
}

func NewWorkflowStore(db *bun.DB) (*WorkflowStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*workflowRecord](db, workflowHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid workflow repository wiring: %w", err)
		}
	}
	return &WorkflowStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WorkflowStore) Create(ctx context.Context, wf core.Workflow) (core.Workflow, error) {
	if s == nil || s.repo == nil {
		return core.Workflow{}, fmt.Errorf("sqlstore: workflow store is not configured")
	}
	if strings.TrimSpace(string(wf.EventType)) == "" {
		return core.Workflow{}, fmt.Errorf("sqlstore: workflow event type is required")
	}
	now := s.clock()
	if strings.TrimSpace(wf.ID) == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = core.WorkflowStatusAwaitingCallback
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	record := workflowToRecord(wf)
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Workflow{}, err
	}
	return workflowRecordToWorkflow(*created), nil
}

func (s *WorkflowStore) Get(ctx context.Context, id string) (core.Workflow, error) {
	if s == nil || s.db == nil {
		return core.Workflow{}, fmt.Errorf("sqlstore: workflow store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Workflow{}, fmt.Errorf("sqlstore: workflow id is required")
	}
	record := new(workflowRecord)
	err := s.db.NewSelect().Model(record).Where("wwf.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Workflow{}, fmt.Errorf("sqlstore: workflow %s not found", id)
		}
		return core.Workflow{}, err
	}
	return workflowRecordToWorkflow(*record), nil
}

func (s *WorkflowStore) Resolve(ctx context.Context, id string, decision core.CallbackDecision, resolvedAt time.Time) (core.Workflow, bool, error) {
	if s == nil || s.db == nil {
		return core.Workflow{}, false, fmt.Errorf("sqlstore: workflow store is not configured")
	}
	return s.resolveOn(ctx, s.db, id, decision, resolvedAt)
}

// ResolveIn applies the resolution on the caller's transaction so a chained
// enqueue commits atomically with the state change.
func (s *WorkflowStore) ResolveIn(ctx context.Context, tx any, id string, decision core.CallbackDecision, resolvedAt time.Time) (core.Workflow, bool, error) {
	if s == nil {
		return core.Workflow{}, false, fmt.Errorf("sqlstore: workflow store is not configured")
	}
	idb, err := resolveIDB(tx)
	if err != nil {
		return core.Workflow{}, false, err
	}
	return s.resolveOn(ctx, idb, id, decision, resolvedAt)
}

func (s *WorkflowStore) resolveOn(ctx context.Context, idb bun.IDB, id string, decision core.CallbackDecision, resolvedAt time.Time) (core.Workflow, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Workflow{}, false, fmt.Errorf("sqlstore: workflow id is required")
	}
	if !decision.Valid() {
		return core.Workflow{}, false, fmt.Errorf("sqlstore: invalid workflow decision %q", decision)
	}
	at := resolvedAt.UTC()
	if at.IsZero() {
		at = s.clock()
	}

	res, err := idb.NewUpdate().
		Model((*workflowRecord)(nil)).
		Set("status = ?", string(core.WorkflowStatusResolved)).
		Set("decision = ?", string(decision)).
		Set("resolved_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", string(core.WorkflowStatusAwaitingCallback)).
		Exec(ctx)
	if err != nil {
		return core.Workflow{}, false, err
	}
	affected, _ := res.RowsAffected()

	record := new(workflowRecord)
	if err := idb.NewSelect().Model(record).Where("wwf.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Workflow{}, false, fmt.Errorf("sqlstore: workflow %s not found", id)
		}
		return core.Workflow{}, false, err
	}
	return workflowRecordToWorkflow(*record), affected > 0, nil
}

// ExpireStale flips awaiting workflows past their deadline to expired.
func (s *WorkflowStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: workflow store is not configured")
	}
	at := now.UTC()
	if at.IsZero() {
		at = s.clock()
	}
	res, err := s.db.NewUpdate().
		Model((*workflowRecord)(nil)).
		Set("status = ?", string(core.WorkflowStatusExpired)).
		Set("updated_at = ?", at).
		Where("status = ?", string(core.WorkflowStatusAwaitingCallback)).
		Where("expires_at <= ?", at).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *WorkflowStore) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func workflowToRecord(wf core.Workflow) *workflowRecord {
	record := &workflowRecord{
		ID:         wf.ID,
		EventType:  string(wf.EventType),
		EntityType: wf.Entity.Type,
		EntityID:   wf.Entity.ID,
		Status:     string(wf.Status),
		Decision:   string(wf.Decision),
		Metadata:   copyAnyMap(wf.Metadata),
		ExpiresAt:  wf.ExpiresAt.UTC(),
		CreatedAt:  wf.CreatedAt.UTC(),
		UpdatedAt:  wf.UpdatedAt.UTC(),
	}
	if wf.ResolvedAt != nil {
		resolvedAt := wf.ResolvedAt.UTC()
		record.ResolvedAt = &resolvedAt
	}
	return record
}

func workflowRecordToWorkflow(record workflowRecord) core.Workflow {
	wf := core.Workflow{
		ID:        record.ID,
		EventType: core.EventType(record.EventType),
		Entity:    core.EntityRef{Type: record.EntityType, ID: record.EntityID},
		Status:    core.WorkflowStatus(record.Status),
		Decision:  core.CallbackDecision(record.Decision),
		Metadata:  copyAnyMap(record.Metadata),
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if record.ResolvedAt != nil {
		resolvedAt := *record.ResolvedAt
		wf.ResolvedAt = &resolvedAt
	}
	return wf
}

var (
	_ core.WorkflowStore         = (*WorkflowStore)(nil)
	_ core.TransactionalResolver = (*WorkflowStore)(nil)
)
