package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callsync_agent/platform/kvstore"
)

const lookupKeyPrefix = "lookup:"

// LookupResult is the canonical cached answer for one match key. Existence
// checks and assignment checks both read and write this single schema, so the
// two call sites can never disagree about the same number.
type LookupResult struct {
	Found           bool   `json:"found"`
	LeadID          string `json:"leadId,omitempty"`
	LeadName        string `json:"leadName,omitempty"`
	IsMine          bool   `json:"isMine"`
	CanAssignSelf   bool   `json:"canAssignSelf"`
	AssignedToOther bool   `json:"assignedToOther"`
	OwnerID         string `json:"ownerId,omitempty"`
	OwnerName       string `json:"ownerName,omitempty"`
	CachedAt        int64  `json:"cachedAt"`
	ExpiresAt       int64  `json:"expiresAt"`
}

// LookupCache stores lookup results keyed by match key, with expiry carried
// in the value. A read past ExpiresAt is a miss; the stale entry stays in
// place until the next write overwrites it.
type LookupCache struct {
	store kvstore.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLookupCache creates a cache over the given store with a fixed TTL.
func NewLookupCache(store kvstore.Store, ttl time.Duration) *LookupCache {
	return &LookupCache{store: store, ttl: ttl, now: time.Now}
}

func lookupKey(matchKey string) string {
	return lookupKeyPrefix + matchKey
}

// Get returns the cached result for matchKey if present and unexpired.
// The second return value reports a hit.
func (c *LookupCache) Get(ctx context.Context, matchKey string) (LookupResult, bool, error) {
	var result LookupResult
	err := kvstore.GetJSON(ctx, c.store, lookupKey(matchKey), &result)
	if errors.Is(err, kvstore.ErrNotFound) {
		return LookupResult{}, false, nil
	}
	if err != nil {
		return LookupResult{}, false, fmt.Errorf("lookup cache get: %w", err)
	}
	if c.now().UnixMilli() >= result.ExpiresAt {
		return LookupResult{}, false, nil
	}
	return result, true, nil
}

// Put stores result under matchKey with a fresh TTL. Fields already known
// for the number are preserved when the incoming result omits them, so an
// assignment check never erases a lead id learned from an existence check.
func (c *LookupCache) Put(ctx context.Context, matchKey string, result LookupResult) error {
	if existing, hit, err := c.Get(ctx, matchKey); err == nil && hit && result.Found {
		if result.LeadID == "" {
			result.LeadID = existing.LeadID
		}
		if result.LeadName == "" {
			result.LeadName = existing.LeadName
		}
	}

	now := c.now()
	result.CachedAt = now.UnixMilli()
	result.ExpiresAt = now.Add(c.ttl).UnixMilli()
	if err := kvstore.SetJSON(ctx, c.store, lookupKey(matchKey), result); err != nil {
		return fmt.Errorf("lookup cache put: %w", err)
	}
	return nil
}

// Invalidate forces the entry's expiry into the past so the next read is a
// miss even when the TTL has not elapsed. A missing entry is a no-op.
func (c *LookupCache) Invalidate(ctx context.Context, matchKey string) error {
	var result LookupResult
	err := kvstore.GetJSON(ctx, c.store, lookupKey(matchKey), &result)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup cache invalidate: %w", err)
	}

	result.ExpiresAt = c.now().UnixMilli() - 1
	if err := kvstore.SetJSON(ctx, c.store, lookupKey(matchKey), result); err != nil {
		return fmt.Errorf("lookup cache invalidate: %w", err)
	}
	return nil
}
