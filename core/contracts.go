package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// QueueStore is the single source of truth for outbound delivery state.
// All coordination between dispatcher instances goes through it; no
// in-memory locking is relied upon for correctness.
type QueueStore interface {
	Enqueue(ctx context.Context, item *QueueItem) error
	Get(ctx context.Context, id string) (QueueItem, error)
	// ClaimBatch atomically selects up to limit eligible pending items,
	// ordered by priority DESC then next_attempt_at ASC, and marks them
	// claimed by workerID in the same operation.
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]QueueItem, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, cause error) error
	MarkFailed(ctx context.Context, id string, cause error) error
	// Defer releases a claimed item back to pending without counting an
	// attempt; used when outbound throttling prevents the HTTP call.
	Defer(ctx context.Context, id string, until time.Time, reason string) error
	Cancel(ctx context.Context, id string) error
	// Retry is the manual operator action: failed or cancelled back to
	// pending with the attempt budget reset.
	Retry(ctx context.Context, id string) error
	ReleaseStaleClaims(ctx context.Context, claimTimeout time.Duration) (int, error)
	Depth(ctx context.Context) (QueueDepth, error)
	PruneTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

// TransactionalEnqueuer is implemented by queue stores that can write the
// outbox row inside a caller-supplied transaction (outbox pattern). The tx
// argument is backend-specific, mirroring the persistence client contract.
type TransactionalEnqueuer interface {
	EnqueueIn(ctx context.Context, tx any, item *QueueItem) error
}

type DeliveryLogStore interface {
	Append(ctx context.Context, entry DeliveryLog) error
	ListByItem(ctx context.Context, itemID string) ([]DeliveryLog, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type WorkflowStore interface {
	Create(ctx context.Context, wf Workflow) (Workflow, error)
	Get(ctx context.Context, id string) (Workflow, error)
	// Resolve transitions awaiting_callback to resolved. The bool reports
	// whether the transition was applied; false means the workflow was
	// already terminal.
	Resolve(ctx context.Context, id string, decision CallbackDecision, resolvedAt time.Time) (Workflow, bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// TransactionalResolver is implemented by workflow stores that can apply
// the resolution inside a caller-supplied transaction so a chained emit
// commits atomically with the state change.
type TransactionalResolver interface {
	ResolveIn(ctx context.Context, tx any, id string, decision CallbackDecision, resolvedAt time.Time) (Workflow, bool, error)
}

type EndpointStore interface {
	Upsert(ctx context.Context, endpoint Endpoint) (Endpoint, error)
	Get(ctx context.Context, id string) (Endpoint, error)
	GetByURL(ctx context.Context, targetURL string) (Endpoint, error)
	List(ctx context.Context) ([]Endpoint, error)
}

// SecretResolver yields the per-destination shared secret for signing and
// verification. There is deliberately no global-secret fallback.
type SecretResolver interface {
	SecretFor(ctx context.Context, targetURL string) (string, error)
	SecretForEndpoint(ctx context.Context, endpointID string) (string, error)
}

// ReplayLedger claims inbound delivery keys for the replay window so a
// captured request cannot be applied twice.
type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// TxRunner runs fn inside one backend transaction. The tx handle passed to
// fn satisfies the TransactionalEnqueuer/TransactionalResolver contracts.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx any) error) error
}

// Waker nudges the dispatcher after an enqueue. Latency optimization only;
// the polling loop picks items up regardless.
type Waker interface {
	Wake()
}

type DispatchStats struct {
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	Throttled int
}

func (s DispatchStats) Merge(other DispatchStats) DispatchStats {
	return DispatchStats{
		Claimed:   s.Claimed + other.Claimed,
		Sent:      s.Sent + other.Sent,
		Retried:   s.Retried + other.Retried,
		Failed:    s.Failed + other.Failed,
		Throttled: s.Throttled + other.Throttled,
	}
}

// StoreProvider is what repository factories expose to the service builder.
type StoreProvider interface {
	QueueStore() QueueStore
	DeliveryLogStore() DeliveryLogStore
	WorkflowStore() WorkflowStore
	EndpointStore() EndpointStore
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}
