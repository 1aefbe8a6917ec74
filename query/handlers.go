package query

import (
	"context"

	"github.com/goliatone/go-webhook-relay/core"
)

// QueueReader is the read surface for outbound delivery state.
type QueueReader interface {
	GetItem(ctx context.Context, id string) (core.QueueItem, error)
	QueueDepth(ctx context.Context) (core.QueueDepth, error)
	ListDeliveryLogs(ctx context.Context, itemID string) ([]core.DeliveryLog, error)
}

type WorkflowReader interface {
	GetWorkflow(ctx context.Context, id string) (core.Workflow, error)
}

type GetQueueItemQuery struct {
	reader QueueReader
}

func NewGetQueueItemQuery(reader QueueReader) *GetQueueItemQuery {
	return &GetQueueItemQuery{reader: reader}
}

func (q *GetQueueItemQuery) Query(ctx context.Context, msg GetQueueItemMessage) (core.QueueItem, error) {
	if q == nil || q.reader == nil {
		return core.QueueItem{}, queryDependencyError("query: queue reader is required")
	}
	return q.reader.GetItem(ctx, msg.ItemID)
}

type QueueDepthQuery struct {
	reader QueueReader
}

func NewQueueDepthQuery(reader QueueReader) *QueueDepthQuery {
	return &QueueDepthQuery{reader: reader}
}

func (q *QueueDepthQuery) Query(ctx context.Context, msg QueueDepthMessage) (core.QueueDepth, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: queue reader is required")
	}
	return q.reader.QueueDepth(ctx)
}

type ListDeliveryLogsQuery struct {
	reader QueueReader
}

func NewListDeliveryLogsQuery(reader QueueReader) *ListDeliveryLogsQuery {
	return &ListDeliveryLogsQuery{reader: reader}
}

func (q *ListDeliveryLogsQuery) Query(
	ctx context.Context,
	msg ListDeliveryLogsMessage,
) ([]core.DeliveryLog, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: queue reader is required")
	}
	return q.reader.ListDeliveryLogs(ctx, msg.ItemID)
}

type GetWorkflowQuery struct {
	reader WorkflowReader
}

func NewGetWorkflowQuery(reader WorkflowReader) *GetWorkflowQuery {
	return &GetWorkflowQuery{reader: reader}
}

func (q *GetWorkflowQuery) Query(ctx context.Context, msg GetWorkflowMessage) (core.Workflow, error) {
	if q == nil || q.reader == nil {
		return core.Workflow{}, queryDependencyError("query: workflow reader is required")
	}
	return q.reader.GetWorkflow(ctx, msg.WorkflowID)
}
