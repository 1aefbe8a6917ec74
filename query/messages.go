package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetQueueItem     = "relay.query.queue.get"
	TypeQueueDepth       = "relay.query.queue.depth"
	TypeListDeliveryLogs = "relay.query.delivery_logs.list"
	TypeGetWorkflow      = "relay.query.workflow.get"
)

type GetQueueItemMessage struct {
	ItemID string
}

func (GetQueueItemMessage) Type() string { return TypeGetQueueItem }

func (m GetQueueItemMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return fmt.Errorf("query: item id is required")
	}
	return nil
}

type QueueDepthMessage struct{}

func (QueueDepthMessage) Type() string { return TypeQueueDepth }

func (QueueDepthMessage) Validate() error { return nil }

type ListDeliveryLogsMessage struct {
	ItemID string
}

func (ListDeliveryLogsMessage) Type() string { return TypeListDeliveryLogs }

func (m ListDeliveryLogsMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return fmt.Errorf("query: item id is required")
	}
	return nil
}

type GetWorkflowMessage struct {
	WorkflowID string
}

func (GetWorkflowMessage) Type() string { return TypeGetWorkflow }

func (m GetWorkflowMessage) Validate() error {
	if strings.TrimSpace(m.WorkflowID) == "" {
		return fmt.Errorf("query: workflow id is required")
	}
	return nil
}
