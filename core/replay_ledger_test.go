package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryReplayLedgerClaims(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryReplayLedger(5 * time.Minute)

	fresh, err := ledger.Claim(ctx, "ep-1:1700000000:abc", 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !fresh {
		t.Fatal("expected first claim to succeed")
	}

	replay, err := ledger.Claim(ctx, "ep-1:1700000000:abc", 0)
	if err != nil {
		t.Fatalf("replay claim: %v", err)
	}
	if replay {
		t.Fatal("expected replayed key to be rejected")
	}

	if _, err := ledger.Claim(ctx, "  ", 0); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}

func TestMemoryReplayLedgerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	ledger := NewMemoryReplayLedger(time.Minute)
	ledger.Now = func() time.Time { return now }

	if ok, _ := ledger.Claim(ctx, "key", time.Minute); !ok {
		t.Fatal("expected initial claim to succeed")
	}

	// Within the window the key stays claimed.
	now = now.Add(30 * time.Second)
	if ok, _ := ledger.Claim(ctx, "key", time.Minute); ok {
		t.Fatal("expected claim inside the window to be rejected")
	}

	// Past the window the key becomes claimable again.
	now = now.Add(time.Minute)
	if ok, _ := ledger.Claim(ctx, "key", time.Minute); !ok {
		t.Fatal("expected expired key to be reclaimable")
	}
}

func TestMemoryReplayLedgerPurgeExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	ledger := NewMemoryReplayLedger(time.Minute)
	ledger.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := ledger.Claim(ctx, fmt.Sprintf("key-%d", i), time.Minute); !ok {
			t.Fatalf("claim key-%d failed", i)
		}
	}

	now = now.Add(2 * time.Minute)
	purged, err := ledger.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}
}

func TestMemoryReplayLedgerCapacityEviction(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryReplayLedgerWithLimits(time.Hour, 2)

	for i := 0; i < 3; i++ {
		if ok, _ := ledger.Claim(ctx, fmt.Sprintf("key-%d", i), time.Hour); !ok {
			t.Fatalf("claim key-%d failed", i)
		}
	}

	// The oldest entry was evicted, so it can be claimed again even though
	// its TTL has not elapsed.
	if ok, _ := ledger.Claim(ctx, "key-0", time.Hour); !ok {
		t.Fatal("expected evicted key to be claimable")
	}
}
