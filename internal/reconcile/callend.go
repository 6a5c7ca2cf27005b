package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/events"
	"callsync_agent/platform/apperr"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/phone"

	"github.com/google/uuid"
)

// CallEndState is the call-end flow's position in its lifecycle.
type CallEndState string

const (
	StateIdle           CallEndState = "idle"
	StateChecking       CallEndState = "checking"
	StateMyLead         CallEndState = "my_lead"
	StateAssignableLead CallEndState = "assignable_lead"
	StateUnmatched      CallEndState = "unmatched"
)

// CallEndSnapshot is a read-only copy of the flow's visible state, served by
// the status endpoint and returned to the device shim after each report.
type CallEndSnapshot struct {
	State           CallEndState `json:"state"`
	Sequence        int64        `json:"sequence"`
	PhoneNumber     string       `json:"phoneNumber,omitempty"`
	LeadID          string       `json:"leadId,omitempty"`
	LeadName        string       `json:"leadName,omitempty"`
	OwnerName       string       `json:"ownerName,omitempty"`
	AssignedToOther bool         `json:"assignedToOther"`
	CanAssignSelf   bool         `json:"canAssignSelf"`
}

// CallEndFlow reconciles one finished call at a time against the CRM.
// A new call-end report replaces whatever the flow was showing: resolution
// results for a superseded report are dropped on arrival (last write wins).
type CallEndFlow struct {
	resolver  *Resolver
	backend   crmBackend
	cache     *LookupCache
	pipeline  *Pipeline
	directory *LeadDirectory
	bus       events.Bus
	log       *logger.Logger

	mu       sync.Mutex
	sequence int64
	snapshot CallEndSnapshot

	// durations and call types ride along for the MyLead auto-post
	duration int
	callType string
}

// NewCallEndFlow creates the flow. Bus may be nil.
func NewCallEndFlow(resolver *Resolver, backend crmBackend, cache *LookupCache, pipeline *Pipeline, directory *LeadDirectory, bus events.Bus, log *logger.Logger) *CallEndFlow {
	return &CallEndFlow{
		resolver:  resolver,
		backend:   backend,
		cache:     cache,
		pipeline:  pipeline,
		directory: directory,
		bus:       bus,
		log:       log,
		snapshot:  CallEndSnapshot{State: StateIdle},
	}
}

// OnCallEnded adapts the domain event to HandleCallEnded for bus wiring.
func (f *CallEndFlow) OnCallEnded(ctx context.Context, event events.Event) error {
	ended, ok := event.(events.CallEnded)
	if !ok {
		return nil
	}
	_, err := f.HandleCallEnded(ctx, ended.PhoneNumber, ended.DurationSeconds, ended.CallType)
	return err
}

// HandleCallEnded runs the flow for one finished call and returns the
// resolved snapshot. A report arriving while an older one is still resolving
// supersedes it.
func (f *CallEndFlow) HandleCallEnded(ctx context.Context, phoneNumber string, durationSeconds int, callType string) (CallEndSnapshot, error) {
	f.mu.Lock()
	f.sequence++
	seq := f.sequence
	f.snapshot = CallEndSnapshot{State: StateChecking, Sequence: seq, PhoneNumber: phoneNumber}
	f.duration = durationSeconds
	f.callType = callType
	f.mu.Unlock()

	result, err := f.resolver.ResolveAssignment(ctx, phoneNumber)
	if err != nil {
		// Conservative default from the resolver: show nothing actionable.
		f.log.CRMError("call_end_resolution", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sequence != seq {
		// A newer call-end report replaced this one while resolving.
		return f.snapshot, nil
	}

	next := CallEndSnapshot{Sequence: seq, PhoneNumber: phoneNumber}
	switch {
	case !result.Found:
		next.State = StateUnmatched
	case result.IsMine:
		next.State = StateMyLead
		next.LeadID = result.LeadID
		next.LeadName = result.LeadName
	default:
		next.State = StateAssignableLead
		next.LeadID = result.LeadID
		next.LeadName = result.LeadName
		next.OwnerName = result.OwnerName
		next.AssignedToOther = result.AssignedToOther
		next.CanAssignSelf = result.CanAssignSelf
	}
	f.snapshot = next

	if next.State == StateMyLead && next.LeadID != "" {
		f.autoPostOwnCall(next.LeadID, durationSeconds, callType)
	}
	return next, nil
}

// autoPostOwnCall fire-and-forgets a call record for a call on the user's
// own lead. The id is synthetic: this path has no device call-log id, so it
// posts outside the ledger's namespace and is not deduplicated against it.
func (f *CallEndFlow) autoPostOwnCall(leadID string, durationSeconds int, callType string) {
	callID := "callend-" + uuid.NewString()
	status := "completed"
	if callType == "missed" {
		status = "missed"
	}
	record := crm.CallRecord{
		LeadID:          leadID,
		CallTime:        time.Now().UTC().Format(time.RFC3339),
		DurationSeconds: durationSeconds,
		CallStatus:      status,
		CallType:        callType,
		Notes:           autoPostNote,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := f.pipeline.SubmitCall(ctx, callID, record, false); err != nil {
			f.log.Error("call-end auto post failed", "call_id", callID, "lead_id", leadID, "error", err)
		}
	}()
}

// AssignToSelf claims the currently shown assignable lead, invalidates the
// number's cache entry so the next lookup sees fresh ownership, and moves
// the flow to MyLead.
func (f *CallEndFlow) AssignToSelf(ctx context.Context) (CallEndSnapshot, error) {
	f.mu.Lock()
	current := f.snapshot
	seq := f.sequence
	f.mu.Unlock()

	if current.State != StateAssignableLead {
		return current, apperr.New(apperr.KindConflict, "no assignable lead is pending").WithOp("callend.assign_self")
	}
	if current.AssignedToOther {
		return current, apperr.New(apperr.KindForbidden, "lead is assigned to another user").WithOp("callend.assign_self")
	}

	number := phone.NormalizeE164(current.PhoneNumber)
	leadID := current.LeadID
	if leadID == "" {
		// The assignment check does not return a lead id; ask the backend
		// directly, bypassing the cached assignment answer.
		existence, err := f.backend.CheckPhoneExists(ctx, number)
		if err != nil {
			return current, fmt.Errorf("resolve lead for assign: %w", err)
		}
		if existence.LeadID == "" {
			return current, apperr.NotFound("no lead found for number").WithOp("callend.assign_self")
		}
		leadID = existence.LeadID
	}

	if err := f.backend.AssignSelf(ctx, leadID, number); err != nil {
		return current, fmt.Errorf("assign self: %w", err)
	}

	if key, ok := phone.MatchKey(current.PhoneNumber); ok {
		if err := f.cache.Invalidate(ctx, key); err != nil {
			f.log.Error("cache invalidate after assign failed", "error", err)
		}
	}
	if f.directory != nil {
		if err := f.directory.Refresh(ctx, true); err != nil {
			f.log.Error("lead refresh after assign failed", "error", err)
		}
	}
	if f.bus != nil {
		f.bus.Publish(ctx, events.LeadAssigned{BaseEvent: events.NewBaseEvent(), LeadID: leadID, PhoneNumber: number})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sequence == seq {
		f.snapshot.State = StateMyLead
		f.snapshot.LeadID = leadID
		f.snapshot.CanAssignSelf = false
		f.snapshot.AssignedToOther = false
	}
	return f.snapshot, nil
}

// Dismiss returns the flow to idle without side effects.
func (f *CallEndFlow) Dismiss() CallEndSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = CallEndSnapshot{State: StateIdle, Sequence: f.sequence}
	return f.snapshot
}

// Snapshot returns the flow's current visible state.
func (f *CallEndFlow) Snapshot() CallEndSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}
