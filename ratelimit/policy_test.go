package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestBeforeSendAllowsUnknownHost(t *testing.T) {
	policy := NewAdaptivePolicy(NewMemoryStateStore())
	if err := policy.BeforeSend(context.Background(), Key{Host: "hooks.example.com"}); err != nil {
		t.Fatalf("expected nil for unknown host, got %v", err)
	}
}

func TestAfterSend429OpensThrottleWindow(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	policy.Now = fixedClock(now)

	key := Key{Host: "Hooks.Example.COM"}
	meta := ResponseMeta{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"retry-after": "30"},
	}
	if err := policy.AfterSend(context.Background(), key, meta); err != nil {
		t.Fatalf("AfterSend returned error: %v", err)
	}

	err := policy.BeforeSend(context.Background(), Key{Host: "hooks.example.com"})
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry-after, got %s", throttled.RetryAfter)
	}
}

func TestAfterSendEscalatesWithoutRetryAfter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	policy.Now = fixedClock(now)

	key := Key{Host: "hooks.example.com"}
	meta := ResponseMeta{StatusCode: http.StatusTooManyRequests}

	for i := 0; i < 3; i++ {
		if err := policy.AfterSend(context.Background(), key, meta); err != nil {
			t.Fatalf("AfterSend returned error: %v", err)
		}
	}
	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state.Attempts != 3 {
		t.Fatalf("expected 3 throttle attempts, got %d", state.Attempts)
	}
	// 1s, 2s, 4s escalation.
	if got := state.ThrottledUntil.Sub(now); got != 4*time.Second {
		t.Fatalf("expected 4s backoff, got %s", got)
	}
}

func TestAfterSendSuccessClearsThrottle(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	policy.Now = fixedClock(now)

	key := Key{Host: "hooks.example.com"}
	if err := policy.AfterSend(context.Background(), key, ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("AfterSend returned error: %v", err)
	}
	if err := policy.AfterSend(context.Background(), key, ResponseMeta{StatusCode: 200}); err != nil {
		t.Fatalf("AfterSend returned error: %v", err)
	}
	if err := policy.BeforeSend(context.Background(), key); err != nil {
		t.Fatalf("expected throttle cleared after success, got %v", err)
	}
}

func TestBeforeSendRespectsExhaustedQuota(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	policy.Now = fixedClock(now)

	key := Key{Host: "hooks.example.com"}
	meta := ResponseMeta{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"x-ratelimit-remaining": "0",
			"x-ratelimit-reset":     "1700000060",
		},
	}
	if err := policy.AfterSend(context.Background(), key, meta); err != nil {
		t.Fatalf("AfterSend returned error: %v", err)
	}

	err := policy.BeforeSend(context.Background(), key)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError for exhausted quota, got %v", err)
	}
	if throttled.RetryAfter != time.Minute {
		t.Fatalf("expected 1m until reset, got %s", throttled.RetryAfter)
	}
}

func TestThrottledErrorToServiceError(t *testing.T) {
	err := ThrottledError{Host: "hooks.example.com", Bucket: "default", RetryAfter: 10 * time.Second}
	svcErr := err.ToServiceError()
	if svcErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 code, got %d", svcErr.Code)
	}
	if svcErr.TextCode != "RELAY_RATE_LIMITED" {
		t.Fatalf("unexpected text code: %s", svcErr.TextCode)
	}
	if svcErr.Metadata["retry_after_ms"] != int64(10000) {
		t.Fatalf("unexpected metadata: %v", svcErr.Metadata)
	}
}
