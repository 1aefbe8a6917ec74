// Package retry holds the backoff policies the dispatcher uses to schedule
// the next delivery attempt after a transient failure.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Policy maps a 1-based failed attempt number to the delay before the next
// attempt.
type Policy interface {
	NextDelay(attempt int) time.Duration
}

// StepPolicy walks a fixed delay ladder and applies symmetric jitter so
// batches of failures do not retry in lockstep. Attempts past the last step
// reuse the last step.
type StepPolicy struct {
	Steps  []time.Duration
	Jitter float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewStepPolicy seeds the policy with its own rand source so concurrent
// dispatch workers do not contend on the global one.
func NewStepPolicy(steps []time.Duration, jitter float64) *StepPolicy {
	return &StepPolicy{
		Steps:  append([]time.Duration(nil), steps...),
		Jitter: jitter,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *StepPolicy) NextDelay(attempt int) time.Duration {
	if p == nil || len(p.Steps) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Steps) {
		idx = len(p.Steps) - 1
	}
	return p.applyJitter(p.Steps[idx])
}

func (p *StepPolicy) applyJitter(base time.Duration) time.Duration {
	if base <= 0 || p.Jitter <= 0 {
		return base
	}
	jitter := p.Jitter
	if jitter >= 1 {
		jitter = 0.999
	}
	p.mu.Lock()
	source := p.rand
	if source == nil {
		source = rand.New(rand.NewSource(time.Now().UnixNano()))
		p.rand = source
	}
	// Uniform in [-jitter, +jitter].
	factor := 1 + jitter*(2*source.Float64()-1)
	p.mu.Unlock()

	delayed := time.Duration(float64(base) * factor)
	if delayed < 0 {
		return 0
	}
	return delayed
}

// ExponentialPolicy doubles a base delay per attempt up to Max. Kept for
// endpoints that opt out of the tuned ladder.
type ExponentialPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func (p ExponentialPolicy) NextDelay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// DefaultPolicy is the tuned ladder: 5s after the first failure, 30s after
// the second, 5m for everything after, each with 20% jitter.
func DefaultPolicy() *StepPolicy {
	return NewStepPolicy([]time.Duration{
		5 * time.Second,
		30 * time.Second,
		5 * time.Minute,
	}, 0.2)
}
