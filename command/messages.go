package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-relay/core"
)

const (
	TypeEmitEvent          = "relay.command.emit"
	TypeRetryQueueItem     = "relay.command.queue.retry"
	TypeCancelQueueItem    = "relay.command.queue.cancel"
	TypeCreateWorkflow     = "relay.command.workflow.create"
	TypeResolveWorkflow    = "relay.command.workflow.resolve"
	TypeReleaseStaleClaims = "relay.command.queue.release_stale"
	TypeExpireWorkflows    = "relay.command.workflow.expire"
	TypePruneRetention     = "relay.command.retention.prune"
)

type EmitEventMessage struct {
	Request core.EmitRequest
}

func (EmitEventMessage) Type() string { return TypeEmitEvent }

func (m EmitEventMessage) Validate() error {
	if !m.Request.EventType.Valid() {
		return fmt.Errorf("command: unknown event type %q", m.Request.EventType)
	}
	if strings.TrimSpace(m.Request.TargetURL) == "" {
		return fmt.Errorf("command: target url is required")
	}
	if len(m.Request.Payload) == 0 {
		return fmt.Errorf("command: payload is required")
	}
	return nil
}

type RetryQueueItemMessage struct {
	ItemID string
}

func (RetryQueueItemMessage) Type() string { return TypeRetryQueueItem }

func (m RetryQueueItemMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return fmt.Errorf("command: item id is required")
	}
	return nil
}

type CancelQueueItemMessage struct {
	ItemID string
}

func (CancelQueueItemMessage) Type() string { return TypeCancelQueueItem }

func (m CancelQueueItemMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return fmt.Errorf("command: item id is required")
	}
	return nil
}

type CreateWorkflowMessage struct {
	Workflow core.Workflow
}

func (CreateWorkflowMessage) Type() string { return TypeCreateWorkflow }

func (m CreateWorkflowMessage) Validate() error {
	if !m.Workflow.EventType.Valid() {
		return fmt.Errorf("command: unknown event type %q", m.Workflow.EventType)
	}
	return nil
}

type ResolveWorkflowMessage struct {
	Request core.CallbackRequest
}

func (ResolveWorkflowMessage) Type() string { return TypeResolveWorkflow }

func (m ResolveWorkflowMessage) Validate() error {
	if strings.TrimSpace(m.Request.WorkflowID) == "" {
		return fmt.Errorf("command: workflow id is required")
	}
	if !m.Request.Decision.Valid() {
		return fmt.Errorf("command: unknown decision %q", m.Request.Decision)
	}
	return nil
}

type ReleaseStaleClaimsMessage struct{}

func (ReleaseStaleClaimsMessage) Type() string { return TypeReleaseStaleClaims }

func (ReleaseStaleClaimsMessage) Validate() error { return nil }

type ExpireWorkflowsMessage struct{}

func (ExpireWorkflowsMessage) Type() string { return TypeExpireWorkflows }

func (ExpireWorkflowsMessage) Validate() error { return nil }

type PruneRetentionMessage struct{}

func (PruneRetentionMessage) Type() string { return TypePruneRetention }

func (PruneRetentionMessage) Validate() error { return nil }
