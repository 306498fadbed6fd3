package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"epibot/internal/infra/persistence/memory"
	"epibot/internal/session"
	"epibot/pkg/domain"
)

const testUser domain.UserID = 42

// tickClock advances one second per reading so records created in sequence
// get distinct timestamps.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	mu    sync.Mutex
	ended map[string][]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) levels(msg string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e.level)
		}
	}
	return out
}

// flakyStore wraps a record store and fails selected calls with
// ErrStoreUnavailable.
type flakyStore struct {
	domain.RecordStore
	mu       sync.Mutex
	fail     map[string]bool
	inserts  int
	searches int
	gets     int
}

func newFlakyStore(inner domain.RecordStore) *flakyStore {
	return &flakyStore{RecordStore: inner, fail: make(map[string]bool)}
}

func (f *flakyStore) failOn(op string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = on
}

func (f *flakyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch op {
	case "insert":
		f.inserts++
	case "search":
		f.searches++
	case "get":
		f.gets++
	}
	if f.fail[op] {
		return domain.Unavailable(op, fmt.Errorf("connection refused"))
	}
	return nil
}

func (f *flakyStore) Insert(ctx context.Context, r domain.Record) (string, error) {
	if err := f.check("insert"); err != nil {
		return "", err
	}
	return f.RecordStore.Insert(ctx, r)
}

func (f *flakyStore) SearchByName(ctx context.Context, q string, limit int) ([]domain.RecordSummary, error) {
	if err := f.check("search"); err != nil {
		return nil, err
	}
	return f.RecordStore.SearchByName(ctx, q, limit)
}

func (f *flakyStore) Get(ctx context.Context, id string) (domain.Record, error) {
	if err := f.check("get"); err != nil {
		return domain.Record{}, err
	}
	return f.RecordStore.Get(ctx, id)
}

func (f *flakyStore) DeleteByName(ctx context.Context, name string) (int, error) {
	if err := f.check("delete"); err != nil {
		return 0, err
	}
	return f.RecordStore.DeleteByName(ctx, name)
}

func (f *flakyStore) counts() (inserts, searches, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts, f.searches, f.gets
}

type harness struct {
	t     *testing.T
	svc   *Service
	store *flakyStore
	mem   *memory.Store
	clock *tickClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mem := memory.NewStore()
	store := newFlakyStore(mem)
	clock := newTickClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	svc := NewService(store, session.NewStore(), opts...)
	return &harness{t: t, svc: svc, store: store, mem: mem, clock: clock}
}

func (h *harness) text(s string) (Reply, error) {
	h.t.Helper()
	return h.svc.Handle(context.Background(), Text(testUser, s))
}

func (h *harness) press(id string) (Reply, error) {
	h.t.Helper()
	return h.svc.Handle(context.Background(), Press(testUser, id))
}

// must fails the test on any error and returns the reply.
func (h *harness) must(r Reply, err error) Reply {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func (h *harness) wizard() *session.Wizard {
	h.t.Helper()
	sess, ok := h.svc.Sessions().Get(testUser)
	if !ok || sess.Wizard == nil {
		return nil
	}
	return sess.Wizard
}

func (h *harness) step() session.Step {
	if w := h.wizard(); w != nil {
		return w.Step
	}
	return session.StepNone
}

func (h *harness) seed(names ...string) []string {
	h.t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, err := h.mem.Insert(context.Background(), domain.Record{
			Name:       name,
			MotherName: "Luna",
			FatherName: "Max",
			OwnerID:    7,
			CreatedAt:  h.clock.Now(),
		})
		if err != nil {
			h.t.Fatalf("seed %s: %v", name, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func actionIDs(m Message) []string {
	out := make([]string, 0, len(m.Actions))
	for _, a := range m.Actions {
		out = append(out, a.ID)
	}
	return out
}

func containsText(r Reply, sub string) bool {
	for _, m := range r.Messages {
		if strings.Contains(m.Text, sub) {
			return true
		}
	}
	return false
}
