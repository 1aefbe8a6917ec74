package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// memQueueStore is the in-process QueueStore used by the service tests. It
// also implements TransactionalEnqueuer so the outbox paths are reachable.
type memQueueStore struct {
	mu     sync.Mutex
	items  map[string]QueueItem
	lastTx any
	failOn string
	enqErr error
}

func newMemQueueStore() *memQueueStore {
	return &memQueueStore{items: map[string]QueueItem{}}
}

func (s *memQueueStore) Enqueue(_ context.Context, item *QueueItem) error {
	if s.enqErr != nil {
		return s.enqErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

func (s *memQueueStore) EnqueueIn(ctx context.Context, tx any, item *QueueItem) error {
	s.lastTx = tx
	return s.Enqueue(ctx, item)
}

func (s *memQueueStore) Get(_ context.Context, id string) (QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return QueueItem{}, fmt.Errorf("core: queue item %s not found", id)
	}
	return item, nil
}

func (s *memQueueStore) ClaimBatch(context.Context, string, int) ([]QueueItem, error) {
	return nil, nil
}

func (s *memQueueStore) MarkSent(context.Context, string) error { return nil }

func (s *memQueueStore) MarkRetry(context.Context, string, time.Time, error) error { return nil }

func (s *memQueueStore) MarkFailed(context.Context, string, error) error { return nil }

func (s *memQueueStore) Defer(context.Context, string, time.Time, string) error { return nil }

func (s *memQueueStore) Cancel(_ context.Context, id string) error {
	if s.failOn == "cancel" {
		return fmt.Errorf("cancel failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("core: queue item %s not found", id)
	}
	item.Status = QueueStatusCancelled
	s.items[id] = item
	return nil
}

func (s *memQueueStore) Retry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("core: queue item %s not found", id)
	}
	item.Status = QueueStatusPending
	item.AttemptCount = 0
	s.items[id] = item
	return nil
}

func (s *memQueueStore) ReleaseStaleClaims(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (s *memQueueStore) Depth(context.Context) (QueueDepth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets := map[QueueStatus]int{}
	for _, item := range s.items {
		buckets[item.Status]++
	}
	var depth QueueDepth
	for status, count := range buckets {
		depth = append(depth, DepthBucket{Status: status, Count: count})
	}
	return depth, nil
}

func (s *memQueueStore) PruneTerminal(context.Context, time.Time) (int, error) { return 0, nil }

type stubEndpointLookup struct {
	endpoints map[string]Endpoint
}

func (s stubEndpointLookup) Upsert(_ context.Context, endpoint Endpoint) (Endpoint, error) {
	return endpoint, nil
}

func (s stubEndpointLookup) Get(_ context.Context, id string) (Endpoint, error) {
	for _, endpoint := range s.endpoints {
		if endpoint.ID == id {
			return endpoint, nil
		}
	}
	return Endpoint{}, fmt.Errorf("core: endpoint %s not found", id)
}

func (s stubEndpointLookup) GetByURL(_ context.Context, targetURL string) (Endpoint, error) {
	endpoint, ok := s.endpoints[targetURL]
	if !ok {
		return Endpoint{}, fmt.Errorf("core: endpoint for %s not found", targetURL)
	}
	return endpoint, nil
}

func (s stubEndpointLookup) List(context.Context) ([]Endpoint, error) { return nil, nil }

type countingWaker struct {
	mu    sync.Mutex
	wakes int
}

func (w *countingWaker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes++
}

func (w *countingWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}

func newTestService(t *testing.T, options ...Option) *Service {
	t.Helper()
	svc, err := NewService(DefaultConfig(), options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestEmitEnqueuesPendingItem(t *testing.T) {
	ctx := context.Background()
	store := newMemQueueStore()
	waker := &countingWaker{}
	svc := newTestService(t, WithQueueStore(store), WithWaker(waker))

	item, err := svc.Emit(ctx, EmitRequest{
		EventType: EventLeadQualified,
		TargetURL: "https://hooks.example.com/receive",
		Payload:   []byte(`{"lead_id":"42"}`),
		Priority:  99,
		Entity:    EntityRef{Type: "lead", ID: "42"},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if strings.TrimSpace(item.ID) == "" {
		t.Fatal("expected generated item id")
	}
	if item.Status != QueueStatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}
	if item.Priority != PriorityCritical {
		t.Fatalf("expected priority clamped to critical, got %d", item.Priority)
	}
	if item.MaxAttempts != DefaultConfig().Retry.MaxAttempts {
		t.Fatalf("expected default attempt budget, got %d", item.MaxAttempts)
	}
	if item.NextAttemptAt.IsZero() {
		t.Fatal("expected next attempt at to be set")
	}
	if waker.count() != 1 {
		t.Fatalf("expected one wake, got %d", waker.count())
	}

	stored, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if string(stored.Payload) != `{"lead_id":"42"}` {
		t.Fatalf("payload mutated: %s", stored.Payload)
	}
}

func TestEmitRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithQueueStore(newMemQueueStore()))

	cases := []struct {
		name string
		req  EmitRequest
	}{
		{
			name: "unknown event type",
			req:  EmitRequest{EventType: "bogus", TargetURL: "https://x.example.com", Payload: []byte(`{}`)},
		},
		{
			name: "missing target",
			req:  EmitRequest{EventType: EventLeadQualified, Payload: []byte(`{}`)},
		},
		{
			name: "relative target",
			req:  EmitRequest{EventType: EventLeadQualified, TargetURL: "/callback", Payload: []byte(`{}`)},
		},
		{
			name: "unsupported scheme",
			req:  EmitRequest{EventType: EventLeadQualified, TargetURL: "ftp://x.example.com", Payload: []byte(`{}`)},
		},
		{
			name: "empty payload",
			req:  EmitRequest{EventType: EventLeadQualified, TargetURL: "https://x.example.com"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Emit(ctx, tc.req); err == nil {
				t.Fatal("expected emit to fail")
			}
		})
	}
}

func TestEmitEnforcesPayloadCap(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Emitter.MaxPayloadBytes = 16
	svc, err := NewService(cfg, WithQueueStore(newMemQueueStore()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Emit(ctx, EmitRequest{
		EventType: EventVideoReady,
		TargetURL: "https://hooks.example.com",
		Payload:   []byte(strings.Repeat("x", 17)),
	})
	if err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func TestEmitHonorsEndpointRegistration(t *testing.T) {
	ctx := context.Background()
	store := newMemQueueStore()
	endpoints := stubEndpointLookup{endpoints: map[string]Endpoint{
		"https://hooks.example.com/receive": {
			ID:          "ep-1",
			Name:        "crm",
			TargetURL:   "https://hooks.example.com/receive",
			Enabled:     true,
			MaxAttempts: 5,
		},
		"https://disabled.example.com": {
			ID:        "ep-2",
			Name:      "old-crm",
			TargetURL: "https://disabled.example.com",
			Enabled:   false,
		},
	}}
	svc := newTestService(t, WithQueueStore(store), WithEndpointStore(endpoints))

	item, err := svc.Emit(ctx, EmitRequest{
		EventType: EventDemoDeployed,
		TargetURL: "https://hooks.example.com/receive",
		Payload:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if item.MaxAttempts != 5 {
		t.Fatalf("expected endpoint attempt budget 5, got %d", item.MaxAttempts)
	}

	if _, err := svc.Emit(ctx, EmitRequest{
		EventType: EventDemoDeployed,
		TargetURL: "https://disabled.example.com",
		Payload:   []byte(`{}`),
	}); err == nil {
		t.Fatal("expected disabled endpoint to be rejected")
	}
}

func TestEmitInPassesTransactionHandle(t *testing.T) {
	ctx := context.Background()
	store := newMemQueueStore()
	svc := newTestService(t, WithQueueStore(store))

	type fakeTx struct{ id int }
	tx := fakeTx{id: 7}

	item, err := svc.EmitIn(ctx, tx, EmitRequest{
		EventType: EventWorkflowStep,
		TargetURL: "https://hooks.example.com",
		Payload:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("emit in tx: %v", err)
	}
	if store.lastTx != tx {
		t.Fatalf("expected tx handle to reach the store, got %#v", store.lastTx)
	}
	if _, err := store.Get(ctx, item.ID); err != nil {
		t.Fatalf("expected enqueued item: %v", err)
	}
}

func TestRetryAndCancelValidateInput(t *testing.T) {
	ctx := context.Background()
	store := newMemQueueStore()
	svc := newTestService(t, WithQueueStore(store))

	if err := svc.RetryItem(ctx, "  "); err == nil {
		t.Fatal("expected missing id to fail retry")
	}
	if err := svc.CancelItem(ctx, ""); err == nil {
		t.Fatal("expected missing id to fail cancel")
	}

	item, err := svc.Emit(ctx, EmitRequest{
		EventType: EventCampaignSent,
		TargetURL: "https://hooks.example.com",
		Payload:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := svc.CancelItem(ctx, item.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := store.Get(ctx, item.ID)
	if got.Status != QueueStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if err := svc.RetryItem(ctx, item.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, _ = store.Get(ctx, item.ID)
	if got.Status != QueueStatusPending {
		t.Fatalf("expected pending after retry, got %s", got.Status)
	}
}

func TestServiceRequiresQueueStore(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Emit(context.Background(), EmitRequest{
		EventType: EventLeadQualified,
		TargetURL: "https://hooks.example.com",
		Payload:   []byte(`{}`),
	}); err == nil {
		t.Fatal("expected emit without a queue store to fail")
	}
}
