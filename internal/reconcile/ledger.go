package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callsync_agent/platform/kvstore"
)

const ledgerKey = "ledger:posted"

// PostedLedger records which device call ids have already been submitted as
// call records, guaranteeing at-most-once posting across process restarts.
// The whole set is one persisted JSON map of call id to posting time; entries
// older than the retention window are pruned on write so the ledger stays
// bounded on long-lived installs.
type PostedLedger struct {
	store     kvstore.Store
	retention time.Duration
	now       func() time.Time
}

// NewPostedLedger creates a ledger over the given store.
func NewPostedLedger(store kvstore.Store, retention time.Duration) *PostedLedger {
	return &PostedLedger{store: store, retention: retention, now: time.Now}
}

func (l *PostedLedger) load(ctx context.Context) (map[string]int64, error) {
	entries := make(map[string]int64)
	err := kvstore.GetJSON(ctx, l.store, ledgerKey, &entries)
	if errors.Is(err, kvstore.ErrNotFound) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger load: %w", err)
	}
	return entries, nil
}

// HasPosted reports whether callID was already submitted.
func (l *PostedLedger) HasPosted(ctx context.Context, callID string) (bool, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := entries[callID]
	return ok, nil
}

// MarkPosted records callID as submitted and prunes entries older than the
// retention window before persisting.
func (l *PostedLedger) MarkPosted(ctx context.Context, callID string) error {
	entries, err := l.load(ctx)
	if err != nil {
		return err
	}

	now := l.now()
	entries[callID] = now.UnixMilli()

	if l.retention > 0 {
		cutoff := now.Add(-l.retention).UnixMilli()
		for id, postedAt := range entries {
			if postedAt < cutoff {
				delete(entries, id)
			}
		}
	}

	if err := kvstore.SetJSON(ctx, l.store, ledgerKey, entries); err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}
