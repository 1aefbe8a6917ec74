package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// CreateWorkflow records a paused process awaiting a signed callback from
// the remote side. The expiry defaults to the configured workflow expiry.
func (s *Service) CreateWorkflow(ctx context.Context, wf Workflow) (created Workflow, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "create_workflow", err, map[string]any{
			"workflow_id": created.ID,
			"event_type":  string(wf.EventType),
			"entity":      wf.Entity.String(),
		})
	}()

	if s == nil || s.workflowStore == nil {
		return Workflow{}, s.mapError(fmt.Errorf("core: workflow store is required"))
	}
	if !wf.EventType.Valid() {
		return Workflow{}, s.mapError(fmt.Errorf("core: unknown event type %q", wf.EventType))
	}

	now := s.clock()
	if strings.TrimSpace(wf.ID) == "" {
		wf.ID = uuid.NewString()
	}
	wf.Status = WorkflowStatusAwaitingCallback
	wf.Decision = ""
	wf.ResolvedAt = nil
	if wf.ExpiresAt.IsZero() {
		expiry := s.config.Callbacks.WorkflowExpiry
		if expiry <= 0 {
			expiry = DefaultConfig().Callbacks.WorkflowExpiry
		}
		wf.ExpiresAt = now.Add(expiry)
	}
	wf.CreatedAt = now
	wf.UpdatedAt = now

	created, createErr := s.workflowStore.Create(ctx, wf)
	if createErr != nil {
		return Workflow{}, s.mapError(createErr)
	}
	return created, nil
}

func (s *Service) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	if s == nil || s.workflowStore == nil {
		return Workflow{}, s.mapError(fmt.Errorf("core: workflow store is required"))
	}
	wf, err := s.workflowStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Workflow{}, s.mapError(err)
	}
	return wf, nil
}

// ResolveCallback applies a verified inbound decision to its workflow.
//
// Duplicate callbacks on a terminal workflow return Applied=false with no
// error; senders that set Strict get a conflict instead. When the workflow
// transitions and a chain handler is registered for its event type, the
// follow-up event is enqueued in the same transaction as the state change
// whenever the stores support it.
func (s *Service) ResolveCallback(ctx context.Context, req CallbackRequest) (outcome CallbackOutcome, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		fields := map[string]any{
			"workflow_id": req.WorkflowID,
			"decision":    string(req.Decision),
			"applied":     outcome.Applied,
		}
		if outcome.Chained != nil {
			fields["item_id"] = outcome.Chained.ID
		}
		s.observeOperation(ctx, startedAt, "resolve_callback", err, fields)
	}()

	if s == nil || s.workflowStore == nil {
		return CallbackOutcome{}, s.mapError(fmt.Errorf("core: workflow store is required"))
	}
	workflowID := strings.TrimSpace(req.WorkflowID)
	if workflowID == "" {
		return CallbackOutcome{}, s.mapError(fmt.Errorf("core: workflow id is required"))
	}
	if !req.Decision.Valid() {
		return CallbackOutcome{}, s.mapError(fmt.Errorf("core: invalid callback decision %q", req.Decision))
	}

	resolvedAt := s.clock()

	resolver, hasResolver := s.workflowStore.(TransactionalResolver)
	if s.txRunner != nil && hasResolver {
		outcome, err = s.resolveInTx(ctx, resolver, workflowID, req, resolvedAt)
	} else {
		outcome, err = s.resolveSequential(ctx, workflowID, req, resolvedAt)
	}
	if err != nil {
		return CallbackOutcome{}, err
	}

	if !outcome.Applied {
		if req.Strict {
			return CallbackOutcome{}, s.mapError(newRelayError(
				fmt.Sprintf("core: workflow %s already resolved", workflowID),
				goerrors.CategoryConflict,
				RelayErrorAlreadyResolved,
			))
		}
		s.logWarn(ctx, "duplicate callback ignored", map[string]any{
			"workflow_id": workflowID,
			"status":      string(outcome.Workflow.Status),
			"decision":    string(req.Decision),
		})
	}
	return outcome, nil
}

func (s *Service) resolveInTx(
	ctx context.Context,
	resolver TransactionalResolver,
	workflowID string,
	req CallbackRequest,
	resolvedAt time.Time,
) (CallbackOutcome, error) {
	var outcome CallbackOutcome
	err := s.txRunner.RunInTx(ctx, func(ctx context.Context, tx any) error {
		wf, applied, resolveErr := resolver.ResolveIn(ctx, tx, workflowID, req.Decision, resolvedAt)
		if resolveErr != nil {
			return resolveErr
		}
		outcome = CallbackOutcome{Workflow: wf, Applied: applied}
		if !applied {
			return nil
		}
		chained, chainErr := s.chainEmit(ctx, tx, wf, req.Decision)
		if chainErr != nil {
			return chainErr
		}
		outcome.Chained = chained
		return nil
	})
	if err != nil {
		return CallbackOutcome{}, s.mapError(err)
	}
	return outcome, nil
}

// resolveSequential is the fallback for stores without transaction support,
// such as in-memory test doubles. The state change lands first; a chained
// emit failure is surfaced but cannot roll the resolution back.
func (s *Service) resolveSequential(
	ctx context.Context,
	workflowID string,
	req CallbackRequest,
	resolvedAt time.Time,
) (CallbackOutcome, error) {
	wf, applied, err := s.workflowStore.Resolve(ctx, workflowID, req.Decision, resolvedAt)
	if err != nil {
		return CallbackOutcome{}, s.mapError(err)
	}
	outcome := CallbackOutcome{Workflow: wf, Applied: applied}
	if !applied {
		return outcome, nil
	}
	chained, chainErr := s.chainEmit(ctx, nil, wf, req.Decision)
	if chainErr != nil {
		return CallbackOutcome{}, s.mapError(chainErr)
	}
	outcome.Chained = chained
	return outcome, nil
}

func (s *Service) chainEmit(ctx context.Context, tx any, wf Workflow, decision CallbackDecision) (*QueueItem, error) {
	if s.eventRegistry == nil {
		return nil, nil
	}
	chainFn, ok := s.eventRegistry.Resolve(wf.EventType)
	if !ok || chainFn == nil {
		return nil, nil
	}
	emitReq, err := chainFn(wf, decision)
	if err != nil {
		return nil, fmt.Errorf("core: chain handler for %q failed: %w", wf.EventType, err)
	}
	if emitReq == nil {
		return nil, nil
	}
	var item QueueItem
	if tx != nil {
		item, err = s.EmitIn(ctx, tx, *emitReq)
	} else {
		item, err = s.Emit(ctx, *emitReq)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ExpireWorkflows sweeps awaiting_callback workflows past their deadline.
// Late callbacks on expired workflows are treated like duplicates.
func (s *Service) ExpireWorkflows(ctx context.Context) (expired int, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "expire_workflows", err, map[string]any{"expired": expired})
	}()
	if s == nil || s.workflowStore == nil {
		return 0, s.mapError(fmt.Errorf("core: workflow store is required"))
	}
	expired, expireErr := s.workflowStore.ExpireStale(ctx, s.clock())
	if expireErr != nil {
		return 0, s.mapError(expireErr)
	}
	return expired, nil
}
