package main

import (
	"context"
	"flag"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/internal/leadstore"
	"callsync_agent/internal/reconcile"
	"callsync_agent/platform/config"
	"callsync_agent/platform/kvstore"
	"callsync_agent/platform/logger"
)

// Backfill walks device call history backwards and reports how many calls
// match a known lead. It never posts anything; it exists to gauge how much
// history the auto-post pipeline missed before the agent was installed.
func main() {
	days := flag.Int("days", 30, "number of past days to scan (excluding today)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting call history backfill", "days", *days)

	ctx := context.Background()

	store, err := kvstore.NewRedis(cfg)
	if err != nil {
		log.Error("failed to initialize key-value store", "error", err)
		panic("failed to initialize key-value store: " + err.Error())
	}

	snapshot, err := leadstore.Open(cfg.GetSnapshotPath())
	if err != nil {
		log.Error("failed to open lead snapshot store", "error", err)
		panic("failed to open lead snapshot store: " + err.Error())
	}
	defer snapshot.Close()

	provider, err := devicelog.NewSpoolProvider(cfg)
	if err != nil {
		log.Error("failed to initialize device call log", "error", err)
		panic("failed to initialize device call log: " + err.Error())
	}

	crmClient := crm.NewClient(cfg, log)
	if err := crmClient.Login(ctx); err != nil {
		log.Error("failed to authenticate against crm", "error", err)
		panic("failed to authenticate against crm: " + err.Error())
	}
	if _, err := crmClient.CurrentProfile(ctx); err != nil {
		log.Error("failed to load crm profile", "error", err)
		panic("failed to load crm profile: " + err.Error())
	}

	core := reconcile.NewModule(cfg, store, crmClient, provider, snapshot, nil, nil, nil, log)

	if err := core.Directory.Bootstrap(ctx); err != nil {
		log.Warn("lead snapshot bootstrap failed", "error", err)
	}
	if err := core.Directory.Refresh(ctx, true); err != nil {
		log.Error("failed to refresh lead directory", "error", err)
		panic("failed to refresh lead directory: " + err.Error())
	}

	summary, err := core.Pipeline.Backfill(ctx, *days)
	if err != nil {
		log.Error("backfill aborted", "error", err, "scanned", summary.Scanned, "matched", summary.Matched)
		panic("backfill aborted: " + err.Error())
	}

	log.Info("backfill complete", "days", summary.Days, "scanned", summary.Scanned, "matched", summary.Matched)
}
