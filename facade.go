package relay

import (
	"fmt"

	relaycommand "github.com/goliatone/go-webhook-relay/command"
	relayquery "github.com/goliatone/go-webhook-relay/query"
)

// CommandQueryService is the combined surface the facade builds handlers
// around. *core.Service satisfies it.
type CommandQueryService interface {
	relaycommand.MutatingService
	relayquery.QueueReader
	relayquery.WorkflowReader
}

type Commands struct {
	EmitEvent          *relaycommand.EmitEventCommand
	RetryQueueItem     *relaycommand.RetryQueueItemCommand
	CancelQueueItem    *relaycommand.CancelQueueItemCommand
	CreateWorkflow     *relaycommand.CreateWorkflowCommand
	ResolveWorkflow    *relaycommand.ResolveWorkflowCommand
	ReleaseStaleClaims *relaycommand.ReleaseStaleClaimsCommand
	ExpireWorkflows    *relaycommand.ExpireWorkflowsCommand
	PruneRetention     *relaycommand.PruneRetentionCommand
}

type Queries struct {
	GetQueueItem     *relayquery.GetQueueItemQuery
	QueueDepth       *relayquery.QueueDepthQuery
	ListDeliveryLogs *relayquery.ListDeliveryLogsQuery
	GetWorkflow      *relayquery.GetWorkflowQuery
}

// Facade bundles ready-wired command and query handlers so host
// applications can subscribe them on a dispatcher without repeating the
// constructor calls.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("relay: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		EmitEvent:          relaycommand.NewEmitEventCommand(service),
		RetryQueueItem:     relaycommand.NewRetryQueueItemCommand(service),
		CancelQueueItem:    relaycommand.NewCancelQueueItemCommand(service),
		CreateWorkflow:     relaycommand.NewCreateWorkflowCommand(service),
		ResolveWorkflow:    relaycommand.NewResolveWorkflowCommand(service),
		ReleaseStaleClaims: relaycommand.NewReleaseStaleClaimsCommand(service),
		ExpireWorkflows:    relaycommand.NewExpireWorkflowsCommand(service),
		PruneRetention:     relaycommand.NewPruneRetentionCommand(service),
	}
	facade.queries = Queries{
		GetQueueItem:     relayquery.NewGetQueueItemQuery(service),
		QueueDepth:       relayquery.NewQueueDepthQuery(service),
		ListDeliveryLogs: relayquery.NewListDeliveryLogsQuery(service),
		GetWorkflow:      relayquery.NewGetWorkflowQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
