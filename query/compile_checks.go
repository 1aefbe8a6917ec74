package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-relay/core"
)

var (
	_ gocmd.Querier[GetQueueItemMessage, core.QueueItem]         = (*GetQueueItemQuery)(nil)
	_ gocmd.Querier[QueueDepthMessage, core.QueueDepth]          = (*QueueDepthQuery)(nil)
	_ gocmd.Querier[ListDeliveryLogsMessage, []core.DeliveryLog] = (*ListDeliveryLogsQuery)(nil)
	_ gocmd.Querier[GetWorkflowMessage, core.Workflow]           = (*GetWorkflowQuery)(nil)
)
