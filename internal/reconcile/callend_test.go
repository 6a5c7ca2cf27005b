package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"callsync_agent/internal/crm"
)

type callEndFixture struct {
	flow    *CallEndFlow
	backend *fakeBackend
	cache   *LookupCache
}

func newCallEndFixture(t *testing.T, backend *fakeBackend) *callEndFixture {
	t.Helper()
	store := newTestStore(t)
	log := testLogger()

	cache := NewLookupCache(store, 30*time.Minute)
	ledger := NewPostedLedger(store, 30*24*time.Hour)
	watermark := NewWatermark(store)
	resolver := NewResolver(backend, cache, log)
	pipeline := NewPipeline(&fakeProvider{}, NewLeadDirectory(backend, nil, nil, log, time.Minute, 100), resolver, ledger, watermark, &fakeEnqueuer{}, backend, nil, nil, log)
	flow := NewCallEndFlow(resolver, backend, cache, pipeline, nil, nil, log)

	return &callEndFixture{flow: flow, backend: backend, cache: cache}
}

func TestCallEndUnmatched(t *testing.T) {
	fx := newCallEndFixture(t, &fakeBackend{
		assignResult: crm.AssignmentResult{State: crm.AssignmentNotExist},
	})

	snap, err := fx.flow.HandleCallEnded(context.Background(), "9000000001", 30, "incoming")
	if err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}
	if snap.State != StateUnmatched {
		t.Errorf("State = %s, want %s", snap.State, StateUnmatched)
	}
}

func TestCallEndAssignedToOtherIsReadOnly(t *testing.T) {
	fx := newCallEndFixture(t, &fakeBackend{
		selfID: "u1",
		assignResult: crm.AssignmentResult{
			State:           crm.AssignmentAssignable,
			AssignedToOther: true,
			OwnerID:         "u2",
			OwnerName:       "Bob",
		},
	})

	snap, err := fx.flow.HandleCallEnded(context.Background(), "9876543210", 30, "incoming")
	if err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}
	if snap.State != StateAssignableLead {
		t.Errorf("State = %s, want %s", snap.State, StateAssignableLead)
	}
	if !snap.AssignedToOther || snap.OwnerName != "Bob" {
		t.Errorf("snapshot = %+v, want assigned-to-Bob flags", snap)
	}
	if snap.CanAssignSelf {
		t.Error("CanAssignSelf = true for a lead assigned to another user")
	}

	// Bob's lead stays Bob's: assign-self must refuse.
	if _, err := fx.flow.AssignToSelf(context.Background()); err == nil {
		t.Fatal("AssignToSelf succeeded on a lead assigned to another user")
	}
	if len(fx.backend.assignedSelf) != 0 {
		t.Errorf("assignedSelf = %v, want none", fx.backend.assignedSelf)
	}
	if current := fx.flow.Snapshot(); current.State != StateAssignableLead {
		t.Errorf("State = %s, want %s unchanged", current.State, StateAssignableLead)
	}
}

func TestCallEndMyLeadAutoPosts(t *testing.T) {
	backend := &fakeBackend{selfID: "u1"}
	fx := newCallEndFixture(t, backend)

	// Seed the cache the way a prior existence check would: mine, with id.
	if err := fx.cache.Put(context.Background(), "9876543210", LookupResult{
		Found: true, IsMine: true, LeadID: "lead-1", LeadName: "Asha",
	}); err != nil {
		t.Fatalf("cache seed: %v", err)
	}

	snap, err := fx.flow.HandleCallEnded(context.Background(), "9876543210", 45, "outgoing")
	if err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}
	if snap.State != StateMyLead || snap.LeadID != "lead-1" {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The auto-post is fire-and-forget; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for len(backend.postedRecords()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	posted := backend.postedRecords()
	if len(posted) != 1 {
		t.Fatalf("posted = %d records, want 1", len(posted))
	}
	record := posted[0]
	if record.LeadID != "lead-1" || record.DurationSeconds != 45 || record.CallType != "outgoing" {
		t.Errorf("record = %+v", record)
	}
}

func TestCallEndNewerReportSupersedesOlder(t *testing.T) {
	fx := newCallEndFixture(t, &fakeBackend{
		assignResult: crm.AssignmentResult{State: crm.AssignmentNotExist},
	})
	ctx := context.Background()

	if _, err := fx.flow.HandleCallEnded(ctx, "9000000001", 10, "incoming"); err != nil {
		t.Fatalf("first HandleCallEnded: %v", err)
	}
	snap, err := fx.flow.HandleCallEnded(ctx, "9000000002", 20, "outgoing")
	if err != nil {
		t.Fatalf("second HandleCallEnded: %v", err)
	}

	if snap.PhoneNumber != "9000000002" {
		t.Errorf("PhoneNumber = %s, want the newer report", snap.PhoneNumber)
	}
	if current := fx.flow.Snapshot(); current.Sequence != snap.Sequence {
		t.Errorf("visible sequence = %d, want %d", current.Sequence, snap.Sequence)
	}
}

func TestCallEndAssignToSelf(t *testing.T) {
	backend := &fakeBackend{
		selfID: "u1",
		assignResult: crm.AssignmentResult{
			State: crm.AssignmentAssignable,
		},
		existsResult: crm.ExistsResult{Found: true, LeadID: "lead-7", LeadName: "Asha"},
	}
	fx := newCallEndFixture(t, backend)
	ctx := context.Background()

	if _, err := fx.flow.HandleCallEnded(ctx, "9876543210", 30, "incoming"); err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}

	snap, err := fx.flow.AssignToSelf(ctx)
	if err != nil {
		t.Fatalf("AssignToSelf: %v", err)
	}
	if snap.State != StateMyLead || snap.LeadID != "lead-7" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(backend.assignedSelf) != 1 || backend.assignedSelf[0] != "lead-7" {
		t.Errorf("assignedSelf = %v", backend.assignedSelf)
	}

	// The number's cache entry must read as a miss so the next lookup sees
	// fresh ownership.
	if _, hit, _ := fx.cache.Get(ctx, "9876543210"); hit {
		t.Error("cache entry survived assign-to-self")
	}
}

func TestCallEndAssignToSelfRequiresAssignableState(t *testing.T) {
	fx := newCallEndFixture(t, &fakeBackend{})

	_, err := fx.flow.AssignToSelf(context.Background())
	if err == nil {
		t.Fatal("AssignToSelf from idle succeeded")
	}
	if !strings.Contains(err.Error(), "no assignable lead") {
		t.Errorf("error = %v", err)
	}
}

func TestCallEndDismissReturnsToIdle(t *testing.T) {
	fx := newCallEndFixture(t, &fakeBackend{
		assignResult: crm.AssignmentResult{State: crm.AssignmentNotExist},
	})

	if _, err := fx.flow.HandleCallEnded(context.Background(), "9000000001", 10, "incoming"); err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}
	snap := fx.flow.Dismiss()
	if snap.State != StateIdle {
		t.Errorf("State = %s, want %s", snap.State, StateIdle)
	}
}
