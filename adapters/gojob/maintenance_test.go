package gojob

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/dispatch"
)

type stubSweeper struct {
	released int
	expired  int
	pruned   int
}

func (s *stubSweeper) ReleaseStaleClaims(context.Context) (int, error) {
	return s.released, nil
}

func (s *stubSweeper) ExpireWorkflows(context.Context) (int, error) {
	return s.expired, nil
}

func (s *stubSweeper) PruneTerminal(context.Context) (int, error) {
	return s.pruned, nil
}

type stubPurger struct {
	purged int
}

func (s *stubPurger) PurgeExpired(context.Context) (int, error) {
	return s.purged, nil
}

type stubDispatchRunner struct {
	stats core.DispatchStats
	err   error
}

func (s *stubDispatchRunner) RunOnce(context.Context) (core.DispatchStats, error) {
	return s.stats, s.err
}

type recordingEnqueuer struct {
	jobIDs []string
	failOn string
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if msg.JobID == e.failOn {
		return fmt.Errorf("enqueue refused")
	}
	e.jobIDs = append(e.jobIDs, msg.JobID)
	return nil
}

func TestMaintenanceRunnerRoutesJobs(t *testing.T) {
	ctx := context.Background()
	sweeper := &stubSweeper{released: 2, expired: 3, pruned: 4}
	purger := &stubPurger{purged: 5}
	dispatcher := &stubDispatchRunner{stats: core.DispatchStats{Claimed: 6, Sent: 5, Retried: 1}}
	runner := NewMaintenanceRunner(sweeper, purger, dispatcher)

	cases := []struct {
		jobID string
		want  int
	}{
		{JobIDDispatch, 6},
		{JobIDReleaseStale, 2},
		{JobIDExpireWorkflow, 3},
		{JobIDPruneRetention, 4},
		{JobIDPurgeReplays, 5},
	}
	for _, tc := range cases {
		got, err := runner.Run(ctx, &core.JobExecutionMessage{JobID: tc.jobID})
		if err != nil {
			t.Fatalf("run %s: %v", tc.jobID, err)
		}
		if got != tc.want {
			t.Fatalf("run %s: expected %d touched rows, got %d", tc.jobID, tc.want, got)
		}
	}

	if _, err := runner.Run(ctx, &core.JobExecutionMessage{JobID: "relay.unknown"}); err == nil {
		t.Fatal("expected unknown job id to fail")
	}
	if _, err := runner.Run(ctx, nil); err == nil {
		t.Fatal("expected nil message to fail")
	}
}

func TestMaintenanceRunnerRequiresDependencies(t *testing.T) {
	ctx := context.Background()
	runner := NewMaintenanceRunner(nil, nil, nil)

	for _, jobID := range []string{
		JobIDDispatch,
		JobIDReleaseStale,
		JobIDPurgeReplays,
	} {
		if _, err := runner.Run(ctx, &core.JobExecutionMessage{JobID: jobID}); err == nil {
			t.Fatalf("expected %s without its dependency to fail", jobID)
		}
	}
}

func TestMaintenanceMessagesMatchDependencies(t *testing.T) {
	full := NewMaintenanceRunner(&stubSweeper{}, &stubPurger{}, &stubDispatchRunner{})
	if got := len(full.Messages()); got != 5 {
		t.Fatalf("expected 5 messages, got %d", got)
	}
	for _, msg := range full.Messages() {
		if msg.IdempotencyKey != msg.JobID {
			t.Fatalf("expected job id as idempotency key, got %q for %s", msg.IdempotencyKey, msg.JobID)
		}
	}

	sweepOnly := NewMaintenanceRunner(&stubSweeper{}, nil, nil)
	if got := len(sweepOnly.Messages()); got != 3 {
		t.Fatalf("expected 3 sweep messages, got %d", got)
	}
}

func TestMaintenanceSchedule(t *testing.T) {
	ctx := context.Background()
	runner := NewMaintenanceRunner(&stubSweeper{}, &stubPurger{}, nil)

	enqueuer := &recordingEnqueuer{}
	if err := runner.Schedule(ctx, enqueuer); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(enqueuer.jobIDs) != 4 {
		t.Fatalf("expected 4 enqueued jobs, got %v", enqueuer.jobIDs)
	}

	failing := &recordingEnqueuer{failOn: JobIDExpireWorkflow}
	if err := runner.Schedule(ctx, failing); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	if err := runner.Schedule(ctx, nil); err == nil {
		t.Fatal("expected nil enqueuer to fail")
	}
}

var (
	_ Sweeper        = (*core.Service)(nil)
	_ ReplayPurger   = (*core.MemoryReplayLedger)(nil)
	_ DispatchRunner = (*dispatch.Dispatcher)(nil)
)
