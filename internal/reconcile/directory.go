package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/events"
	"callsync_agent/platform/logger"
)

// leadFetcher is the slice of the CRM client the directory needs.
type leadFetcher interface {
	AssignedLeads(ctx context.Context, page, limit int) ([]crm.Lead, error)
}

// LeadSnapshot mirrors the lead list to local storage so the agent can match
// calls before the first successful refresh after a restart.
type LeadSnapshot interface {
	ReplaceAll(ctx context.Context, leads []crm.Lead) error
	LoadAll(ctx context.Context) ([]crm.Lead, error)
}

// LeadDirectory holds the current lead list. Refreshes replace the list
// wholesale and are debounced to at most one fetch per minimum interval.
// Readers always pull the latest list on demand rather than capturing a
// copy, so a long-lived poll loop never matches against stale leads.
type LeadDirectory struct {
	fetcher     leadFetcher
	snapshot    LeadSnapshot
	bus         events.Bus
	log         *logger.Logger
	minInterval time.Duration
	pageSize    int
	now         func() time.Time

	mu        sync.RWMutex
	leads     []crm.Lead
	lastFetch time.Time
}

// NewLeadDirectory creates a directory. Snapshot and bus may be nil.
func NewLeadDirectory(fetcher leadFetcher, snapshot LeadSnapshot, bus events.Bus, log *logger.Logger, minInterval time.Duration, pageSize int) *LeadDirectory {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &LeadDirectory{
		fetcher:     fetcher,
		snapshot:    snapshot,
		bus:         bus,
		log:         log,
		minInterval: minInterval,
		pageSize:    pageSize,
		now:         time.Now,
	}
}

// Bootstrap loads the snapshot mirror into memory. Called once at startup so
// matching works before the backend answers; a later Refresh replaces it.
func (d *LeadDirectory) Bootstrap(ctx context.Context) error {
	if d.snapshot == nil {
		return nil
	}
	leads, err := d.snapshot.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("lead bootstrap: %w", err)
	}
	if len(leads) == 0 {
		return nil
	}

	d.mu.Lock()
	d.leads = leads
	d.mu.Unlock()
	d.log.Info("lead directory bootstrapped from snapshot", "count", len(leads))
	return nil
}

// Refresh walks the backend's assigned-lead pages and replaces the list.
// Calls inside the minimum interval are skipped; pass force to override
// the debounce (used after an assign-self mutation).
func (d *LeadDirectory) Refresh(ctx context.Context, force bool) error {
	d.mu.Lock()
	if !force && !d.lastFetch.IsZero() && d.now().Sub(d.lastFetch) < d.minInterval {
		d.mu.Unlock()
		return nil
	}
	d.lastFetch = d.now()
	d.mu.Unlock()

	var all []crm.Lead
	for page := 1; ; page++ {
		batch, err := d.fetcher.AssignedLeads(ctx, page, d.pageSize)
		if err != nil {
			return fmt.Errorf("lead refresh page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < d.pageSize {
			break
		}
	}

	d.mu.Lock()
	d.leads = all
	d.mu.Unlock()

	if d.snapshot != nil {
		if err := d.snapshot.ReplaceAll(ctx, all); err != nil {
			d.log.Error("lead snapshot write failed", "error", err)
		}
	}
	if d.bus != nil {
		d.bus.Publish(ctx, events.LeadsRefreshed{BaseEvent: events.NewBaseEvent(), Count: len(all)})
	}
	d.log.Info("lead directory refreshed", "count", len(all))
	return nil
}

// Leads returns the current list. The slice must be treated as read-only.
func (d *LeadDirectory) Leads() []crm.Lead {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.leads
}
