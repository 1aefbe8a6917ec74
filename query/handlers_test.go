package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-webhook-relay/core"
)

type stubQueueReader struct {
	getItemFn          func(ctx context.Context, id string) (core.QueueItem, error)
	queueDepthFn       func(ctx context.Context) (core.QueueDepth, error)
	listDeliveryLogsFn func(ctx context.Context, itemID string) ([]core.DeliveryLog, error)
}

func (s stubQueueReader) GetItem(ctx context.Context, id string) (core.QueueItem, error) {
	return s.getItemFn(ctx, id)
}

func (s stubQueueReader) QueueDepth(ctx context.Context) (core.QueueDepth, error) {
	return s.queueDepthFn(ctx)
}

func (s stubQueueReader) ListDeliveryLogs(ctx context.Context, itemID string) ([]core.DeliveryLog, error) {
	return s.listDeliveryLogsFn(ctx, itemID)
}

type stubWorkflowReader struct {
	getWorkflowFn func(ctx context.Context, id string) (core.Workflow, error)
}

func (s stubWorkflowReader) GetWorkflow(ctx context.Context, id string) (core.Workflow, error) {
	return s.getWorkflowFn(ctx, id)
}

func TestGetQueueItemQuery_Delegates(t *testing.T) {
	reader := stubQueueReader{
		getItemFn: func(_ context.Context, id string) (core.QueueItem, error) {
			if id != "item-1" {
				t.Fatalf("unexpected item id: %q", id)
			}
			return core.QueueItem{ID: id, Status: core.QueueStatusSent}, nil
		},
	}

	item, err := NewGetQueueItemQuery(reader).Query(context.Background(), GetQueueItemMessage{ItemID: "item-1"})
	if err != nil {
		t.Fatalf("query item: %v", err)
	}
	if item.Status != core.QueueStatusSent {
		t.Fatalf("unexpected item: %#v", item)
	}
}

func TestQueueDepthQuery_Delegates(t *testing.T) {
	reader := stubQueueReader{
		queueDepthFn: func(_ context.Context) (core.QueueDepth, error) {
			return core.QueueDepth{
				{Status: core.QueueStatusPending, Priority: core.PriorityNormal, Count: 4},
				{Status: core.QueueStatusFailed, Priority: core.PriorityHigh, Count: 1},
			}, nil
		},
	}

	depth, err := NewQueueDepthQuery(reader).Query(context.Background(), QueueDepthMessage{})
	if err != nil {
		t.Fatalf("query depth: %v", err)
	}
	if depth.Total() != 5 {
		t.Fatalf("expected total 5, got %d", depth.Total())
	}
}

func TestListDeliveryLogsQuery_Delegates(t *testing.T) {
	reader := stubQueueReader{
		listDeliveryLogsFn: func(_ context.Context, itemID string) ([]core.DeliveryLog, error) {
			if itemID != "item-1" {
				t.Fatalf("unexpected item id: %q", itemID)
			}
			return []core.DeliveryLog{
				{ItemID: itemID, Attempt: 1, Outcome: core.AttemptOutcomeRetry},
				{ItemID: itemID, Attempt: 2, Outcome: core.AttemptOutcomeSent},
			}, nil
		},
	}

	logs, err := NewListDeliveryLogsQuery(reader).Query(context.Background(), ListDeliveryLogsMessage{ItemID: "item-1"})
	if err != nil {
		t.Fatalf("query logs: %v", err)
	}
	if len(logs) != 2 || logs[1].Outcome != core.AttemptOutcomeSent {
		t.Fatalf("unexpected logs: %#v", logs)
	}
}

func TestGetWorkflowQuery_Delegates(t *testing.T) {
	reader := stubWorkflowReader{
		getWorkflowFn: func(_ context.Context, id string) (core.Workflow, error) {
			return core.Workflow{ID: id, Status: core.WorkflowStatusAwaitingCallback}, nil
		},
	}

	wf, err := NewGetWorkflowQuery(reader).Query(context.Background(), GetWorkflowMessage{WorkflowID: "wf-1"})
	if err != nil {
		t.Fatalf("query workflow: %v", err)
	}
	if wf.ID != "wf-1" || wf.Status != core.WorkflowStatusAwaitingCallback {
		t.Fatalf("unexpected workflow: %#v", wf)
	}
}

func TestQueriesRequireReader(t *testing.T) {
	if _, err := NewGetQueueItemQuery(nil).Query(context.Background(), GetQueueItemMessage{ItemID: "x"}); err == nil {
		t.Fatal("expected dependency error for nil reader")
	}
	if _, err := NewGetWorkflowQuery(nil).Query(context.Background(), GetWorkflowMessage{WorkflowID: "x"}); err == nil {
		t.Fatal("expected dependency error for nil reader")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	if err := (GetQueueItemMessage{}).Validate(); err == nil {
		t.Fatal("expected missing item id to fail validation")
	}
	if err := (GetWorkflowMessage{}).Validate(); err == nil {
		t.Fatal("expected missing workflow id to fail validation")
	}
	if err := (QueueDepthMessage{}).Validate(); err != nil {
		t.Fatalf("unexpected depth validation error: %v", err)
	}
	if err := (ListDeliveryLogsMessage{ItemID: "item-1"}).Validate(); err != nil {
		t.Fatalf("unexpected logs validation error: %v", err)
	}
}
