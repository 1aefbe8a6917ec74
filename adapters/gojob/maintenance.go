package gojob

import (
	"context"
	"fmt"

	"github.com/goliatone/go-webhook-relay/core"
)

// Sweeper is the slice of the relay service the maintenance jobs drive.
type Sweeper interface {
	ReleaseStaleClaims(ctx context.Context) (int, error)
	ExpireWorkflows(ctx context.Context) (int, error)
	PruneTerminal(ctx context.Context) (int, error)
}

// ReplayPurger drops expired replay-ledger entries.
type ReplayPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// DispatchRunner drains one claim batch. Satisfied by dispatch.Dispatcher.
type DispatchRunner interface {
	RunOnce(ctx context.Context) (core.DispatchStats, error)
}

// MaintenanceRunner executes the relay's recurring jobs when the host runs
// them through a go-job worker. Each job reports how many rows it touched so
// worker hooks can log sweep sizes.
type MaintenanceRunner struct {
	sweeper    Sweeper
	purger     ReplayPurger
	dispatcher DispatchRunner
}

func NewMaintenanceRunner(sweeper Sweeper, purger ReplayPurger, dispatcher DispatchRunner) *MaintenanceRunner {
	return &MaintenanceRunner{
		sweeper:    sweeper,
		purger:     purger,
		dispatcher: dispatcher,
	}
}

// Run executes the job named by msg.JobID.
func (r *MaintenanceRunner) Run(ctx context.Context, msg *core.JobExecutionMessage) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if msg == nil {
		return 0, fmt.Errorf("gojob: execution message is required")
	}

	switch msg.JobID {
	case JobIDDispatch:
		if r.dispatcher == nil {
			return 0, fmt.Errorf("gojob: dispatcher is required for %s", msg.JobID)
		}
		stats, err := r.dispatcher.RunOnce(ctx)
		return stats.Claimed, err
	case JobIDReleaseStale:
		if r.sweeper == nil {
			return 0, fmt.Errorf("gojob: sweeper is required for %s", msg.JobID)
		}
		return r.sweeper.ReleaseStaleClaims(ctx)
	case JobIDExpireWorkflow:
		if r.sweeper == nil {
			return 0, fmt.Errorf("gojob: sweeper is required for %s", msg.JobID)
		}
		return r.sweeper.ExpireWorkflows(ctx)
	case JobIDPruneRetention:
		if r.sweeper == nil {
			return 0, fmt.Errorf("gojob: sweeper is required for %s", msg.JobID)
		}
		return r.sweeper.PruneTerminal(ctx)
	case JobIDPurgeReplays:
		if r.purger == nil {
			return 0, fmt.Errorf("gojob: replay purger is required for %s", msg.JobID)
		}
		return r.purger.PurgeExpired(ctx)
	default:
		return 0, fmt.Errorf("gojob: unknown job id %q", msg.JobID)
	}
}

// Messages lists the enqueue messages for every job the runner can execute
// given its configured dependencies. The job id doubles as the idempotency
// key so repeated schedules collapse into one pending execution.
func (r *MaintenanceRunner) Messages() []*core.JobExecutionMessage {
	if r == nil {
		return nil
	}
	var out []*core.JobExecutionMessage
	if r.dispatcher != nil {
		out = append(out, maintenanceMessage(JobIDDispatch))
	}
	if r.sweeper != nil {
		out = append(out,
			maintenanceMessage(JobIDReleaseStale),
			maintenanceMessage(JobIDExpireWorkflow),
			maintenanceMessage(JobIDPruneRetention),
		)
	}
	if r.purger != nil {
		out = append(out, maintenanceMessage(JobIDPurgeReplays))
	}
	return out
}

// Schedule enqueues every runnable maintenance job.
func (r *MaintenanceRunner) Schedule(ctx context.Context, enqueuer core.JobEnqueuer) error {
	if r == nil {
		return fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is required")
	}
	for _, msg := range r.Messages() {
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("gojob: schedule %s: %w", msg.JobID, err)
		}
	}
	return nil
}

func maintenanceMessage(jobID string) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          jobID,
		IdempotencyKey: jobID,
		Parameters:     map[string]any{},
	}
}
