package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/internal/events"
	"callsync_agent/internal/reconcile"
	"callsync_agent/platform/kvstore"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type fakeBackend struct {
	selfID       string
	assignResult crm.AssignmentResult
	existsResult crm.ExistsResult
	assigned     []string
}

func (b *fakeBackend) CheckPhoneExists(ctx context.Context, phone string) (crm.ExistsResult, error) {
	return b.existsResult, nil
}

func (b *fakeBackend) CheckAssignment(ctx context.Context, phone string) (crm.AssignmentResult, error) {
	return b.assignResult, nil
}

func (b *fakeBackend) AssignSelf(ctx context.Context, leadID, phone string) error {
	b.assigned = append(b.assigned, leadID)
	return nil
}

func (b *fakeBackend) SelfID() string { return b.selfID }

func (b *fakeBackend) AssignedLeads(ctx context.Context, page, limit int) ([]crm.Lead, error) {
	return nil, nil
}

func (b *fakeBackend) PostCallRecord(ctx context.Context, record crm.CallRecord) error {
	return nil
}

type fakeProvider struct{}

func (fakeProvider) CallsToday(ctx context.Context) ([]devicelog.Entry, error) { return nil, nil }
func (fakeProvider) CallsForDay(ctx context.Context, dayOffset int) ([]devicelog.Entry, error) {
	return nil, nil
}

type fakeEnqueuer struct {
	polls     int
	refreshes int
}

func (e *fakeEnqueuer) EnqueueCallPost(ctx context.Context, callID string, record crm.CallRecord, deduplicate bool) error {
	return nil
}
func (e *fakeEnqueuer) EnqueueCallPoll(ctx context.Context) error {
	e.polls++
	return nil
}
func (e *fakeEnqueuer) EnqueueLeadsRefresh(ctx context.Context) error {
	e.refreshes++
	return nil
}

func newTestRouter(t *testing.T, backend *fakeBackend) (*gin.Engine, *fakeEnqueuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("development")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := kvstore.NewRedisWithClient(client, "test")

	cache := reconcile.NewLookupCache(store, 30*time.Minute)
	ledger := reconcile.NewPostedLedger(store, 30*24*time.Hour)
	watermark := reconcile.NewWatermark(store)
	directory := reconcile.NewLeadDirectory(backend, nil, nil, log, time.Minute, 100)
	resolver := reconcile.NewResolver(backend, cache, log)
	enqueuer := &fakeEnqueuer{}
	bus := events.NewInMemoryBus(log)
	pipeline := reconcile.NewPipeline(fakeProvider{}, directory, resolver, ledger, watermark, enqueuer, backend, nil, bus, log)
	flow := reconcile.NewCallEndFlow(resolver, backend, cache, pipeline, directory, bus, log)
	bus.Subscribe(events.CallEnded{}.EventName(), events.HandlerFunc(flow.OnCallEnded))

	core := &reconcile.Module{
		Cache:     cache,
		Ledger:    ledger,
		Watermark: watermark,
		Directory: directory,
		Resolver:  resolver,
		Pipeline:  pipeline,
		CallEnd:   flow,
	}

	h := New(core, bus, enqueuer, validator.New(), log)
	engine := gin.New()
	engine.POST("/v1/events/call-ended", h.CallEnded)
	engine.POST("/v1/calls/assign-self", h.AssignSelf)
	engine.POST("/v1/calls/dismiss", h.Dismiss)
	engine.POST("/v1/reconcile/run", h.RunReconcile)
	engine.POST("/v1/leads/refresh", h.RefreshLeads)
	engine.GET("/v1/status", h.Status)
	return engine, enqueuer
}

func TestCallEndedResolvesAndResponds(t *testing.T) {
	backend := &fakeBackend{
		selfID:       "u1",
		assignResult: crm.AssignmentResult{State: crm.AssignmentNotExist},
	}
	engine, _ := newTestRouter(t, backend)

	body := `{"phoneNumber":"9876543210","durationSeconds":42,"callType":"incoming"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/call-ended", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Result reconcile.CallEndSnapshot `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.State != reconcile.StateUnmatched {
		t.Errorf("state = %s, want %s", resp.Result.State, reconcile.StateUnmatched)
	}
}

func TestCallEndedRejectsUnknownCallType(t *testing.T) {
	engine, _ := newTestRouter(t, &fakeBackend{})

	body := `{"phoneNumber":"9876543210","durationSeconds":42,"callType":"videocall"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/call-ended", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCallEndedRejectsMissingPhone(t *testing.T) {
	engine, _ := newTestRouter(t, &fakeBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/call-ended", strings.NewReader(`{"callType":"incoming"}`))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAssignSelfFlow(t *testing.T) {
	backend := &fakeBackend{
		selfID:       "u1",
		assignResult: crm.AssignmentResult{State: crm.AssignmentAssignable},
		existsResult: crm.ExistsResult{Found: true, LeadID: "lead-7"},
	}
	engine, _ := newTestRouter(t, backend)

	body := `{"phoneNumber":"9876543210","durationSeconds":10,"callType":"outgoing"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/call-ended", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("call-ended status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/calls/assign-self", nil)
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("assign-self status = %d, body %s", w.Code, w.Body.String())
	}
	if len(backend.assigned) != 1 || backend.assigned[0] != "lead-7" {
		t.Errorf("assigned = %v", backend.assigned)
	}
}

func TestAssignSelfWithoutPendingLeadConflicts(t *testing.T) {
	engine, _ := newTestRouter(t, &fakeBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/assign-self", nil)
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestRunReconcileQueuesPoll(t *testing.T) {
	engine, enqueuer := newTestRouter(t, &fakeBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile/run", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if enqueuer.polls != 1 {
		t.Errorf("polls = %d, want 1", enqueuer.polls)
	}
}

func TestStatusReportsState(t *testing.T) {
	engine, _ := newTestRouter(t, &fakeBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		CallEnd     reconcile.CallEndSnapshot `json:"callEnd"`
		LeadCount   int                       `json:"leadCount"`
		WatermarkMs int64                     `json:"watermarkMs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CallEnd.State != reconcile.StateIdle {
		t.Errorf("state = %s, want idle", resp.CallEnd.State)
	}
}
