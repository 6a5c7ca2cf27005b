package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/internal/events"
	"callsync_agent/platform/logger"
)

// autoPostNote is attached to every auto-posted call record so agents and
// humans can tell automated submissions apart in the CRM.
const autoPostNote = "Auto-posted from device call log"

// postEnqueuer hands resolved calls to the background queue for posting.
type postEnqueuer interface {
	EnqueueCallPost(ctx context.Context, callID string, record crm.CallRecord, deduplicate bool) error
}

// callPoster is the slice of the CRM client that submits call records.
type callPoster interface {
	PostCallRecord(ctx context.Context, record crm.CallRecord) error
}

// recordingUploader pushes a local call recording to object storage and
// returns its URL.
type recordingUploader interface {
	Upload(ctx context.Context, callID, path string) (string, error)
}

// Pipeline reconciles the device call log against CRM leads and posts each
// new call at most once. A poll cycle scans calls above the watermark,
// resolves each to a lead (local match first, remote lookup second) and
// enqueues a posting task; the watermark then advances to the newest scanned
// call, but never past a call whose resolution failed transiently, so that
// call is rescanned next cycle.
type Pipeline struct {
	provider  devicelog.Provider
	directory *LeadDirectory
	resolver  *Resolver
	ledger    *PostedLedger
	watermark *Watermark
	enqueuer  postEnqueuer
	poster    callPoster
	uploader  recordingUploader
	bus       events.Bus
	log       *logger.Logger
}

// NewPipeline creates a pipeline. The uploader may be nil when recording
// storage is not configured; the bus may be nil.
func NewPipeline(provider devicelog.Provider, directory *LeadDirectory, resolver *Resolver, ledger *PostedLedger, watermark *Watermark, enqueuer postEnqueuer, poster callPoster, uploader recordingUploader, bus events.Bus, log *logger.Logger) *Pipeline {
	return &Pipeline{
		provider:  provider,
		directory: directory,
		resolver:  resolver,
		ledger:    ledger,
		watermark: watermark,
		enqueuer:  enqueuer,
		poster:    poster,
		uploader:  uploader,
		bus:       bus,
		log:       log,
	}
}

// Poll runs one reconciliation cycle over today's device calls. Individual
// call failures are isolated: they hold the watermark but never abort the
// batch.
func (p *Pipeline) Poll(ctx context.Context) error {
	mark, err := p.watermark.Load(ctx)
	if err != nil {
		return err
	}

	entries, err := p.provider.CallsToday(ctx)
	if err != nil {
		return fmt.Errorf("poll device log: %w", err)
	}
	newest := devicelog.NewestTimestamp(entries)

	fresh := entries[:0:0]
	for _, e := range entries {
		if e.Timestamp > mark {
			fresh = append(fresh, e)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Timestamp < fresh[j].Timestamp })

	var (
		matched     int
		enqueued    int
		firstFailed int64
	)
	for _, entry := range fresh {
		leadID, ok, err := p.resolveLead(ctx, entry.PhoneNumber)
		if err != nil {
			if firstFailed == 0 {
				firstFailed = entry.Timestamp
			}
			continue
		}
		if !ok {
			continue
		}
		matched++

		posted, err := p.ledger.HasPosted(ctx, entry.ID)
		if err != nil {
			p.log.Error("ledger read failed", "call_id", entry.ID, "error", err)
			if firstFailed == 0 {
				firstFailed = entry.Timestamp
			}
			continue
		}
		if posted {
			continue
		}

		record := p.buildRecord(ctx, entry, leadID)
		if err := p.enqueuer.EnqueueCallPost(ctx, entry.ID, record, true); err != nil {
			p.log.Error("enqueue call post failed", "call_id", entry.ID, "error", err)
			if firstFailed == 0 {
				firstFailed = entry.Timestamp
			}
			continue
		}
		enqueued++
	}

	target := newest
	if firstFailed > 0 && firstFailed-1 < target {
		target = firstFailed - 1
	}
	final := mark
	if target > mark {
		if final, err = p.watermark.Advance(ctx, target); err != nil {
			return err
		}
	}

	p.log.PollCycle(len(fresh), matched, enqueued, final)
	return nil
}

// resolveLead finds the lead id for a number: local directory match first,
// cache-backed remote lookup second.
func (p *Pipeline) resolveLead(ctx context.Context, phoneNumber string) (string, bool, error) {
	if lead := FindLeadByNumber(phoneNumber, p.directory.Leads()); lead != nil {
		return lead.ID, true, nil
	}

	result, err := p.resolver.ResolveExistence(ctx, phoneNumber)
	if err != nil {
		return "", false, err
	}
	if !result.Found || result.LeadID == "" {
		return "", false, nil
	}
	return result.LeadID, true, nil
}

func (p *Pipeline) buildRecord(ctx context.Context, entry devicelog.Entry, leadID string) crm.CallRecord {
	record := crm.CallRecord{
		LeadID:          leadID,
		CallTime:        time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339),
		DurationSeconds: entry.DurationSeconds,
		CallStatus:      entry.CallStatus(),
		CallType:        entry.CallType(),
		Notes:           autoPostNote,
	}

	if entry.RecordingPath != "" && p.uploader != nil {
		url, err := p.uploader.Upload(ctx, entry.ID, entry.RecordingPath)
		if err != nil {
			p.log.Error("recording upload failed", "call_id", entry.ID, "error", err)
		} else {
			record.RecordingURL = url
		}
	}
	return record
}

// SubmitCall posts one call record to the backend. With deduplicate set the
// ledger is consulted before and marked after, so queue redeliveries of the
// same call id post at most once. The call-end flow submits with deduplicate
// off: its synthetic ids live in a different namespace than device call ids.
func (p *Pipeline) SubmitCall(ctx context.Context, callID string, record crm.CallRecord, deduplicate bool) error {
	if deduplicate {
		posted, err := p.ledger.HasPosted(ctx, callID)
		if err != nil {
			return err
		}
		if posted {
			return nil
		}
	}

	if err := p.poster.PostCallRecord(ctx, record); err != nil {
		return fmt.Errorf("post call %s: %w", callID, err)
	}

	if deduplicate {
		if err := p.ledger.MarkPosted(ctx, callID); err != nil {
			return err
		}
	}
	p.log.CallPosted(callID, record.LeadID, record.CallType, record.DurationSeconds)
	if p.bus != nil {
		p.bus.Publish(ctx, events.CallPosted{BaseEvent: events.NewBaseEvent(), CallID: callID, LeadID: record.LeadID})
	}
	return nil
}

// BackfillSummary reports what a history backfill walked and matched.
type BackfillSummary struct {
	Days    int
	Scanned int
	Matched int
}

// Backfill walks device history backwards day by day and matches each batch
// against the lead directory. It never posts; posting is the poll cycle's
// exclusive responsibility.
func (p *Pipeline) Backfill(ctx context.Context, days int) (BackfillSummary, error) {
	summary := BackfillSummary{Days: days}
	for offset := 1; offset <= days; offset++ {
		entries, err := p.provider.CallsForDay(ctx, offset)
		if err != nil {
			return summary, fmt.Errorf("backfill day %d: %w", offset, err)
		}
		summary.Scanned += len(entries)
		for _, entry := range entries {
			if lead := FindLeadByNumber(entry.PhoneNumber, p.directory.Leads()); lead != nil {
				summary.Matched++
				p.log.Debug("backfill match", "call_id", entry.ID, "lead_id", lead.ID, "day_offset", offset)
			}
		}
	}
	return summary, nil
}
