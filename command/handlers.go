package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-relay/core"
)

// MutatingService is the write surface of the relay the command handlers
// delegate to.
type MutatingService interface {
	Emit(ctx context.Context, req core.EmitRequest) (core.QueueItem, error)
	RetryItem(ctx context.Context, id string) error
	CancelItem(ctx context.Context, id string) error
	CreateWorkflow(ctx context.Context, wf core.Workflow) (core.Workflow, error)
	ResolveCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackOutcome, error)
	ReleaseStaleClaims(ctx context.Context) (int, error)
	ExpireWorkflows(ctx context.Context) (int, error)
	PruneTerminal(ctx context.Context) (int, error)
}

type EmitEventCommand struct {
	service MutatingService
}

func NewEmitEventCommand(service MutatingService) *EmitEventCommand {
	return &EmitEventCommand{service: service}
}

func (c *EmitEventCommand) Execute(ctx context.Context, msg EmitEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: emit service is required")
	}
	out, err := c.service.Emit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryQueueItemCommand struct {
	service MutatingService
}

func NewRetryQueueItemCommand(service MutatingService) *RetryQueueItemCommand {
	return &RetryQueueItemCommand{service: service}
}

func (c *RetryQueueItemCommand) Execute(ctx context.Context, msg RetryQueueItemMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	return c.service.RetryItem(ctx, msg.ItemID)
}

type CancelQueueItemCommand struct {
	service MutatingService
}

func NewCancelQueueItemCommand(service MutatingService) *CancelQueueItemCommand {
	return &CancelQueueItemCommand{service: service}
}

func (c *CancelQueueItemCommand) Execute(ctx context.Context, msg CancelQueueItemMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel service is required")
	}
	return c.service.CancelItem(ctx, msg.ItemID)
}

type CreateWorkflowCommand struct {
	service MutatingService
}

func NewCreateWorkflowCommand(service MutatingService) *CreateWorkflowCommand {
	return &CreateWorkflowCommand{service: service}
}

func (c *CreateWorkflowCommand) Execute(ctx context.Context, msg CreateWorkflowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workflow service is required")
	}
	out, err := c.service.CreateWorkflow(ctx, msg.Workflow)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveWorkflowCommand struct {
	service MutatingService
}

func NewResolveWorkflowCommand(service MutatingService) *ResolveWorkflowCommand {
	return &ResolveWorkflowCommand{service: service}
}

func (c *ResolveWorkflowCommand) Execute(ctx context.Context, msg ResolveWorkflowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.ResolveCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReleaseStaleClaimsCommand struct {
	service MutatingService
}

func NewReleaseStaleClaimsCommand(service MutatingService) *ReleaseStaleClaimsCommand {
	return &ReleaseStaleClaimsCommand{service: service}
}

func (c *ReleaseStaleClaimsCommand) Execute(ctx context.Context, msg ReleaseStaleClaimsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: queue maintenance service is required")
	}
	out, err := c.service.ReleaseStaleClaims(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExpireWorkflowsCommand struct {
	service MutatingService
}

func NewExpireWorkflowsCommand(service MutatingService) *ExpireWorkflowsCommand {
	return &ExpireWorkflowsCommand{service: service}
}

func (c *ExpireWorkflowsCommand) Execute(ctx context.Context, msg ExpireWorkflowsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: workflow maintenance service is required")
	}
	out, err := c.service.ExpireWorkflows(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PruneRetentionCommand struct {
	service MutatingService
}

func NewPruneRetentionCommand(service MutatingService) *PruneRetentionCommand {
	return &PruneRetentionCommand{service: service}
}

func (c *PruneRetentionCommand) Execute(ctx context.Context, msg PruneRetentionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retention service is required")
	}
	out, err := c.service.PruneTerminal(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
