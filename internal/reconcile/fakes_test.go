package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callsync_agent/internal/crm"
	"callsync_agent/internal/devicelog"
	"callsync_agent/platform/kvstore"
	"callsync_agent/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) kvstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return kvstore.NewRedisWithClient(client, "test")
}

func testLogger() *logger.Logger {
	return logger.New("development")
}

// fakeClock is a manually advanced clock shared by components under test.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

// fakeBackend implements the CRM surface the reconcile package consumes.
// The mutex guards posted, which the call-end flow appends to from a
// background goroutine.
type fakeBackend struct {
	mu     sync.Mutex
	selfID string

	existsResult  crm.ExistsResult
	existsErr     error
	existsCalls   int
	existsPhone   string
	assignResult  crm.AssignmentResult
	assignErr     error
	assignCalls   int
	assignPhone   string
	assignedSelf  []string
	assignSelfErr error
	leads         []crm.Lead
	postErr       error
	posted        []crm.CallRecord
}

func (b *fakeBackend) CheckPhoneExists(ctx context.Context, phone string) (crm.ExistsResult, error) {
	b.existsCalls++
	b.existsPhone = phone
	return b.existsResult, b.existsErr
}

func (b *fakeBackend) CheckAssignment(ctx context.Context, phone string) (crm.AssignmentResult, error) {
	b.assignCalls++
	b.assignPhone = phone
	return b.assignResult, b.assignErr
}

func (b *fakeBackend) AssignSelf(ctx context.Context, leadID, phone string) error {
	if b.assignSelfErr != nil {
		return b.assignSelfErr
	}
	b.assignedSelf = append(b.assignedSelf, leadID)
	return nil
}

func (b *fakeBackend) SelfID() string { return b.selfID }

func (b *fakeBackend) AssignedLeads(ctx context.Context, page, limit int) ([]crm.Lead, error) {
	start := (page - 1) * limit
	if start >= len(b.leads) {
		return nil, nil
	}
	end := start + limit
	if end > len(b.leads) {
		end = len(b.leads)
	}
	return b.leads[start:end], nil
}

func (b *fakeBackend) PostCallRecord(ctx context.Context, record crm.CallRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.postErr != nil {
		return b.postErr
	}
	b.posted = append(b.posted, record)
	return nil
}

func (b *fakeBackend) postedRecords() []crm.CallRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]crm.CallRecord(nil), b.posted...)
}

// fakeProvider serves a fixed device call log.
type fakeProvider struct {
	today []devicelog.Entry
	byDay map[int][]devicelog.Entry
	err   error
}

func (p *fakeProvider) CallsToday(ctx context.Context) ([]devicelog.Entry, error) {
	return p.today, p.err
}

func (p *fakeProvider) CallsForDay(ctx context.Context, dayOffset int) ([]devicelog.Entry, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.byDay[dayOffset], nil
}

// fakeEnqueuer records enqueued posts; with direct set it submits through
// the pipeline immediately, standing in for the queue worker.
type fakeEnqueuer struct {
	pipeline *Pipeline
	direct   bool
	err      error
	enqueued []string
}

func (e *fakeEnqueuer) EnqueueCallPost(ctx context.Context, callID string, record crm.CallRecord, deduplicate bool) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, callID)
	if e.direct && e.pipeline != nil {
		return e.pipeline.SubmitCall(ctx, callID, record, deduplicate)
	}
	return nil
}

var errNetwork = errors.New("connection refused")
