// Package dispatch runs the outbound delivery loop: claim a batch, deliver
// each item through a bounded worker pool, and record the per-attempt
// outcome in both the queue row and the delivery log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/ratelimit"
	"github.com/goliatone/go-webhook-relay/retry"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Dispatcher struct {
	workerID     string
	config       core.Config
	store        core.QueueStore
	deliveryLogs core.DeliveryLogStore
	secrets      core.SecretResolver
	sender       *Sender
	retryPolicy  core.RetryPolicy
	throttle     *ratelimit.AdaptivePolicy
	logger       core.Logger
	metrics      core.MetricsRecorder
	now          func() time.Time

	wake chan struct{}
}

type Option func(*Dispatcher)

func WithWorkerID(id string) Option {
	return func(d *Dispatcher) {
		d.workerID = strings.TrimSpace(id)
	}
}

func WithSender(sender *Sender) Option {
	return func(d *Dispatcher) {
		d.sender = sender
	}
}

func WithRetryPolicy(policy core.RetryPolicy) Option {
	return func(d *Dispatcher) {
		d.retryPolicy = policy
	}
}

func WithThrottle(policy *ratelimit.AdaptivePolicy) Option {
	return func(d *Dispatcher) {
		d.throttle = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func New(
	store core.QueueStore,
	deliveryLogs core.DeliveryLogStore,
	secrets core.SecretResolver,
	cfg core.Config,
	options ...Option,
) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("dispatch: queue store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("dispatch: secret resolver is required")
	}

	defaults := core.DefaultConfig()
	if cfg.Dispatcher.PollInterval <= 0 {
		cfg.Dispatcher.PollInterval = defaults.Dispatcher.PollInterval
	}
	if cfg.Dispatcher.BatchSize <= 0 {
		cfg.Dispatcher.BatchSize = defaults.Dispatcher.BatchSize
	}
	if cfg.Dispatcher.MaxConcurrency <= 0 {
		cfg.Dispatcher.MaxConcurrency = defaults.Dispatcher.MaxConcurrency
	}
	if cfg.Dispatcher.RequestTimeout <= 0 {
		cfg.Dispatcher.RequestTimeout = defaults.Dispatcher.RequestTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}

	d := &Dispatcher{
		config:       cfg,
		store:        store,
		deliveryLogs: deliveryLogs,
		secrets:      secrets,
		metrics:      core.NopMetricsRecorder{},
		now:          func() time.Time { return time.Now().UTC() },
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(d)
	}

	if d.workerID == "" {
		hostname, _ := os.Hostname()
		d.workerID = strings.TrimSpace(hostname) + "-" + uuid.NewString()[:8]
	}
	if d.sender == nil {
		d.sender = NewSender(nil)
		d.sender.Timeout = cfg.Dispatcher.RequestTimeout
	}
	if d.retryPolicy == nil {
		d.retryPolicy = retry.NewStepPolicy(cfg.Retry.Steps, cfg.Retry.Jitter)
	}
	d.logger = glog.Ensure(d.logger)
	if d.metrics == nil {
		d.metrics = core.NopMetricsRecorder{}
	}
	return d, nil
}

func (d *Dispatcher) WorkerID() string {
	if d == nil {
		return ""
	}
	return d.workerID
}

// Wake nudges the loop so a fresh enqueue does not wait out the poll
// interval. Safe to call from any goroutine; extra wakes coalesce.
func (d *Dispatcher) Wake() {
	if d == nil {
		return
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Claim errors are logged and retried on
// the next tick; they never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("dispatch: dispatcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.logger.Info("dispatcher started",
		"worker_id", d.workerID,
		"poll_interval", d.config.Dispatcher.PollInterval.String(),
		"batch_size", d.config.Dispatcher.BatchSize,
	)
	for {
		stats, err := d.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatch cycle failed", "worker_id", d.workerID, "error", err.Error())
		}
		// Drain the backlog without sleeping while full batches keep
		// coming back.
		if err == nil && stats.Claimed >= d.config.Dispatcher.BatchSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		case <-time.After(d.jitteredPoll()):
		}
	}
}

// RunOnce claims one batch and delivers it through the worker pool.
func (d *Dispatcher) RunOnce(ctx context.Context) (core.DispatchStats, error) {
	if d == nil || d.store == nil {
		return core.DispatchStats{}, fmt.Errorf("dispatch: dispatcher is not configured")
	}
	items, err := d.store.ClaimBatch(ctx, d.workerID, d.config.Dispatcher.BatchSize)
	if err != nil {
		return core.DispatchStats{}, err
	}
	if len(items) == 0 {
		return core.DispatchStats{}, nil
	}

	stats := core.DispatchStats{Claimed: len(items)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.config.Dispatcher.MaxConcurrency)

	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := d.deliver(ctx, item)
			mu.Lock()
			switch outcome {
			case core.AttemptOutcomeSent:
				stats.Sent++
			case core.AttemptOutcomeRetry:
				stats.Retried++
			case core.AttemptOutcomeFailed:
				stats.Failed++
			case core.AttemptOutcomeThrottled:
				stats.Throttled++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	d.metrics.IncCounter(ctx, "relay.dispatch.claimed", int64(stats.Claimed), map[string]string{"worker_id": d.workerID})
	d.metrics.IncCounter(ctx, "relay.dispatch.sent", int64(stats.Sent), map[string]string{"worker_id": d.workerID})
	d.metrics.IncCounter(ctx, "relay.dispatch.retried", int64(stats.Retried), map[string]string{"worker_id": d.workerID})
	d.metrics.IncCounter(ctx, "relay.dispatch.failed", int64(stats.Failed), map[string]string{"worker_id": d.workerID})
	d.metrics.IncCounter(ctx, "relay.dispatch.throttled", int64(stats.Throttled), map[string]string{"worker_id": d.workerID})
	return stats, nil
}

// deliver makes exactly one HTTP attempt for a claimed item and returns the
// recorded outcome. A throttled host defers the item without consuming an
// attempt from its budget.
func (d *Dispatcher) deliver(ctx context.Context, item core.QueueItem) string {
	attemptNumber := item.AttemptCount + 1
	now := d.clock()

	if d.throttle != nil {
		throttleKey := ratelimit.Key{Host: hostOf(item.TargetURL)}
		if err := d.throttle.BeforeSend(ctx, throttleKey); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				d.deferThrottled(ctx, item, attemptNumber, throttled)
				return core.AttemptOutcomeThrottled
			}
			d.logger.Warn("throttle check failed", "item_id", item.ID, "error", err.Error())
		}
	}

	secret, err := d.secrets.SecretFor(ctx, item.TargetURL)
	if err != nil || strings.TrimSpace(secret) == "" {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("dispatch: no secret registered for %s", hostOf(item.TargetURL))
		}
		d.recordAttempt(ctx, item, attemptNumber, SendResult{Err: cause}, core.AttemptOutcomeFailed)
		if markErr := d.store.MarkFailed(ctx, item.ID, cause); markErr != nil {
			d.logger.Error("mark failed errored", "item_id", item.ID, "error", markErr.Error())
		}
		return core.AttemptOutcomeFailed
	}

	result := d.sender.Send(ctx, item, secret)

	if d.throttle != nil && result.Err == nil {
		throttleKey := ratelimit.Key{Host: hostOf(item.TargetURL)}
		if err := d.throttle.AfterSend(ctx, throttleKey, ratelimit.ResponseMetaFrom(result.Response)); err != nil {
			d.logger.Warn("throttle update failed", "item_id", item.ID, "error", err.Error())
		}
	}

	outcome := classifyResult(result)
	if outcome == core.AttemptOutcomeRetry && attemptNumber >= d.maxAttempts(item) {
		outcome = core.AttemptOutcomeFailed
	}
	d.recordAttempt(ctx, item, attemptNumber, result, outcome)

	switch outcome {
	case core.AttemptOutcomeSent:
		if err := d.store.MarkSent(ctx, item.ID); err != nil {
			d.logger.Error("mark sent errored", "item_id", item.ID, "error", err.Error())
		}
	case core.AttemptOutcomeRetry:
		nextAttemptAt := now.Add(d.retryPolicy.NextDelay(attemptNumber))
		if err := d.store.MarkRetry(ctx, item.ID, nextAttemptAt, attemptError(result)); err != nil {
			d.logger.Error("mark retry errored", "item_id", item.ID, "error", err.Error())
		}
	case core.AttemptOutcomeFailed:
		if err := d.store.MarkFailed(ctx, item.ID, attemptError(result)); err != nil {
			d.logger.Error("mark failed errored", "item_id", item.ID, "error", err.Error())
		}
		d.logger.Error("delivery exhausted",
			"item_id", item.ID,
			"event_type", string(item.EventType),
			"attempt", attemptNumber,
			"status_code", result.StatusCode,
		)
	}
	return outcome
}

func (d *Dispatcher) deferThrottled(ctx context.Context, item core.QueueItem, attemptNumber int, throttled ratelimit.ThrottledError) {
	until := d.clock().Add(throttled.RetryAfter)
	if err := d.store.Defer(ctx, item.ID, until, throttled.Error()); err != nil {
		d.logger.Error("defer errored", "item_id", item.ID, "error", err.Error())
		return
	}
	d.appendLog(ctx, core.DeliveryLog{
		ItemID:    item.ID,
		Attempt:   attemptNumber,
		Outcome:   core.AttemptOutcomeThrottled,
		Error:     throttled.Error(),
		CreatedAt: d.clock(),
	})
	d.logger.Warn("delivery throttled",
		"item_id", item.ID,
		"host", throttled.Host,
		"retry_after", throttled.RetryAfter.String(),
	)
}

func (d *Dispatcher) recordAttempt(ctx context.Context, item core.QueueItem, attemptNumber int, result SendResult, outcome string) {
	entry := core.DeliveryLog{
		ItemID:     item.ID,
		Attempt:    attemptNumber,
		StatusCode: result.StatusCode,
		Outcome:    outcome,
		Duration:   result.Duration,
		CreatedAt:  d.clock(),
	}
	if err := attemptError(result); err != nil {
		entry.Error = err.Error()
	}
	d.appendLog(ctx, entry)
}

func (d *Dispatcher) appendLog(ctx context.Context, entry core.DeliveryLog) {
	if d.deliveryLogs == nil {
		return
	}
	if err := d.deliveryLogs.Append(ctx, entry); err != nil {
		d.logger.Error("delivery log append errored", "item_id", entry.ItemID, "error", err.Error())
	}
}

func (d *Dispatcher) maxAttempts(item core.QueueItem) int {
	if item.MaxAttempts > 0 {
		return item.MaxAttempts
	}
	return d.config.Retry.MaxAttempts
}

func (d *Dispatcher) jitteredPoll() time.Duration {
	base := d.config.Dispatcher.PollInterval
	if base <= 0 {
		return time.Second
	}
	// Up to 10% spread keeps replicas from polling in lockstep.
	spread := time.Duration(rand.Int63n(int64(base)/10 + 1))
	return base + spread
}

func (d *Dispatcher) clock() time.Time {
	if d != nil && d.now != nil {
		return d.now().UTC()
	}
	return time.Now().UTC()
}

func attemptError(result SendResult) error {
	if result.Err != nil {
		return result.Err
	}
	if result.StatusCode >= 200 && result.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("dispatch: endpoint returned status %d", result.StatusCode)
}

func hostOf(targetURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(targetURL))
	if err != nil {
		return strings.TrimSpace(targetURL)
	}
	return strings.ToLower(parsed.Host)
}

var _ core.Waker = (*Dispatcher)(nil)
