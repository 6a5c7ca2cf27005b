package reconcile

import (
	"context"
	"testing"
	"time"
)

func TestCacheHitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewLookupCache(newTestStore(t), 30*time.Minute)
	cache.now = clock.Now
	ctx := context.Background()

	want := LookupResult{Found: true, LeadID: "lead-1", LeadName: "Asha"}
	if err := cache.Put(ctx, "9876543210", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Advance(29 * time.Minute)
	got, hit, err := cache.Get(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("hit = false inside TTL window")
	}
	if got.LeadID != "lead-1" || got.LeadName != "Asha" {
		t.Errorf("got %+v", got)
	}
}

func TestCacheMissAfterTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewLookupCache(newTestStore(t), 30*time.Minute)
	cache.now = clock.Now
	ctx := context.Background()

	if err := cache.Put(ctx, "9876543210", LookupResult{Found: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if _, hit, err := cache.Get(ctx, "9876543210"); err != nil {
		t.Fatalf("Get: %v", err)
	} else if hit {
		t.Error("hit = true at exactly TTL, want miss")
	}
}

func TestCacheMissForUnknownKey(t *testing.T) {
	cache := NewLookupCache(newTestStore(t), 30*time.Minute)
	if _, hit, err := cache.Get(context.Background(), "0000000000"); err != nil {
		t.Fatalf("Get: %v", err)
	} else if hit {
		t.Error("hit = true for never-written key")
	}
}

func TestCacheInvalidateForcesMiss(t *testing.T) {
	clock := newFakeClock()
	cache := NewLookupCache(newTestStore(t), 30*time.Minute)
	cache.now = clock.Now
	ctx := context.Background()

	if err := cache.Put(ctx, "9876543210", LookupResult{Found: true, CanAssignSelf: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Invalidate(ctx, "9876543210"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	// No time has passed, yet the entry must read as a miss.
	if _, hit, err := cache.Get(ctx, "9876543210"); err != nil {
		t.Fatalf("Get: %v", err)
	} else if hit {
		t.Error("hit = true after invalidation, want forced miss")
	}
}

func TestCacheInvalidateMissingKeyIsNoOp(t *testing.T) {
	cache := NewLookupCache(newTestStore(t), time.Minute)
	if err := cache.Invalidate(context.Background(), "0000000000"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
}

func TestCachePutPreservesKnownLeadID(t *testing.T) {
	clock := newFakeClock()
	cache := NewLookupCache(newTestStore(t), 30*time.Minute)
	cache.now = clock.Now
	ctx := context.Background()

	// An existence check learned the lead id.
	if err := cache.Put(ctx, "9876543210", LookupResult{Found: true, LeadID: "lead-1", LeadName: "Asha"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// A later assignment check knows ownership but not the id.
	if err := cache.Put(ctx, "9876543210", LookupResult{Found: true, CanAssignSelf: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, hit, err := cache.Get(ctx, "9876543210")
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if got.LeadID != "lead-1" {
		t.Errorf("LeadID = %q, want lead-1 preserved across writes", got.LeadID)
	}
	if !got.CanAssignSelf {
		t.Error("CanAssignSelf lost on merge")
	}
}
