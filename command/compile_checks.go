package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EmitEventMessage]          = (*EmitEventCommand)(nil)
	_ gocmd.Commander[RetryQueueItemMessage]     = (*RetryQueueItemCommand)(nil)
	_ gocmd.Commander[CancelQueueItemMessage]    = (*CancelQueueItemCommand)(nil)
	_ gocmd.Commander[CreateWorkflowMessage]     = (*CreateWorkflowCommand)(nil)
	_ gocmd.Commander[ResolveWorkflowMessage]    = (*ResolveWorkflowCommand)(nil)
	_ gocmd.Commander[ReleaseStaleClaimsMessage] = (*ReleaseStaleClaimsCommand)(nil)
	_ gocmd.Commander[ExpireWorkflowsMessage]    = (*ExpireWorkflowsCommand)(nil)
	_ gocmd.Commander[PruneRetentionMessage]     = (*PruneRetentionCommand)(nil)
)
