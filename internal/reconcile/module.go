// Package reconcile implements the call-to-lead reconciliation core: the
// lookup cache, the posted-call ledger, the poll watermark, the lead
// directory and matcher, the auto-post pipeline, and the call-end flow.
package reconcile

import (
	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/internal/events"
	"callsync_agent/platform/config"
	"callsync_agent/platform/kvstore"
	"callsync_agent/platform/logger"
)

// Module bundles the reconciliation components, wired once at startup.
type Module struct {
	Cache     *LookupCache
	Ledger    *PostedLedger
	Watermark *Watermark
	Directory *LeadDirectory
	Resolver  *Resolver
	Pipeline  *Pipeline
	CallEnd   *CallEndFlow
}

// NewModule wires the reconciliation core. Snapshot and uploader may be nil
// when their backing services are not configured.
func NewModule(
	cfg config.ReconcileConfig,
	store kvstore.Store,
	client *crm.Client,
	provider devicelog.Provider,
	snapshot LeadSnapshot,
	enqueuer postEnqueuer,
	uploader recordingUploader,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	cache := NewLookupCache(store, cfg.GetLookupCacheTTL())
	ledger := NewPostedLedger(store, cfg.GetLedgerRetention())
	watermark := NewWatermark(store)
	directory := NewLeadDirectory(client, snapshot, bus, log, cfg.GetLeadRefreshMinInterval(), cfg.GetLeadPageSize())
	resolver := NewResolver(client, cache, log)
	pipeline := NewPipeline(provider, directory, resolver, ledger, watermark, enqueuer, client, uploader, bus, log)
	callEnd := NewCallEndFlow(resolver, client, cache, pipeline, directory, bus, log)

	if bus != nil {
		bus.Subscribe(events.CallEnded{}.EventName(), events.HandlerFunc(callEnd.OnCallEnded))
	}

	return &Module{
		Cache:     cache,
		Ledger:    ledger,
		Watermark: watermark,
		Directory: directory,
		Resolver:  resolver,
		Pipeline:  pipeline,
		CallEnd:   callEnd,
	}
}
