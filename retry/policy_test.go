package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestStepPolicyLadder(t *testing.T) {
	policy := NewStepPolicy([]time.Duration{
		5 * time.Second,
		30 * time.Second,
		5 * time.Minute,
	}, 0)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 30 * time.Second},
		{attempt: 3, want: 5 * time.Minute},
		{attempt: 4, want: 5 * time.Minute},
		{attempt: 9, want: 5 * time.Minute},
		{attempt: 0, want: 5 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestStepPolicyJitterBounds(t *testing.T) {
	policy := NewStepPolicy([]time.Duration{30 * time.Second}, 0.2)
	policy.rand = rand.New(rand.NewSource(1))

	low := time.Duration(float64(30*time.Second) * 0.8)
	high := time.Duration(float64(30*time.Second) * 1.2)
	varied := false
	for i := 0; i < 200; i++ {
		delay := policy.NextDelay(1)
		if delay < low || delay > high {
			t.Fatalf("delay %s outside [%s, %s]", delay, low, high)
		}
		if delay != 30*time.Second {
			varied = true
		}
	}
	if !varied {
		t.Fatal("expected jitter to vary delays")
	}
}

func TestStepPolicyEmptySteps(t *testing.T) {
	policy := NewStepPolicy(nil, 0.2)
	if got := policy.NextDelay(1); got != 0 {
		t.Fatalf("expected zero delay for empty ladder, got %s", got)
	}
}

func TestExponentialPolicy(t *testing.T) {
	policy := ExponentialPolicy{Base: time.Second, Max: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 10 * time.Second},
		{attempt: 10, want: 10 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestDefaultPolicyMatchesConfig(t *testing.T) {
	policy := DefaultPolicy()
	if len(policy.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(policy.Steps))
	}
	if policy.Steps[0] != 5*time.Second || policy.Steps[1] != 30*time.Second || policy.Steps[2] != 5*time.Minute {
		t.Fatalf("unexpected ladder: %v", policy.Steps)
	}
	if policy.Jitter != 0.2 {
		t.Fatalf("expected 0.2 jitter, got %f", policy.Jitter)
	}
}
