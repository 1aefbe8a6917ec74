package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultReplayLedgerTTL = 5 * time.Minute
const defaultReplayLedgerMaxEntries = 8192

// MemoryReplayLedger is the single-instance replay ledger. Multi-instance
// deployments use the SQL-backed store so all replicas share one window.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryReplayLedger(defaultTTL time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(defaultTTL, defaultReplayLedgerMaxEntries)
}

func NewMemoryReplayLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultReplayLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultReplayLedgerMaxEntries
	}
	return &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim records key for ttl and reports whether it was unseen. A second claim
// inside the window is a replay and returns false.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	oldest := l.sweepLocked(now)
	if expiresAt, seen := l.entries[key]; seen && now.Before(expiresAt) {
		return false, nil
	}
	// Full ledger sheds its oldest live entry rather than refusing the claim.
	for len(l.entries) >= l.maxEntries && oldest != "" {
		delete(l.entries, oldest)
		oldest = l.sweepLocked(now)
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}

// PurgeExpired drops entries past their window and reports how many went.
func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: replay ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.entries)
	l.sweepLocked(now)
	return before - len(l.entries), nil
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// sweepLocked removes expired entries and returns the live key closest to
// expiry, which doubles as the eviction candidate when the ledger is full.
func (l *MemoryReplayLedger) sweepLocked(now time.Time) (oldest string) {
	var oldestExpiry time.Time
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			continue
		}
		if oldest == "" || expiresAt.Before(oldestExpiry) {
			oldest = key
			oldestExpiry = expiresAt
		}
	}
	return oldest
}

var _ ReplayLedger = (*MemoryReplayLedger)(nil)
