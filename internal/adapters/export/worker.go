// Package export snapshots every stored record into JSON and CSV files in
// blob storage. Jobs run asynchronously on a single worker goroutine.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"epibot/internal/blob"
	"epibot/internal/core"
	"epibot/pkg/domain"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var contentTypes = map[Format]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
}

// csvHeader follows the durable column order of the records table.
var csvHeader = []string{
	"id", "name", "link", "mother_name", "mother_link", "father_name",
	"father_link", "sex", "birth_date", "owner_id", "created_at",
}

var (
	// ErrQueueFull is returned when too many jobs are waiting.
	ErrQueueFull = errors.New("export queue full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("export worker stopped")
	// ErrUnknownJob is returned by Wait for ids the worker never issued.
	ErrUnknownJob = errors.New("unknown export job")
)

// Artifact is one stored output file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Job tracks one export request.
type Job struct {
	ID          string     `json:"id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Records     int        `json:"records"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

func (j Job) copy() Job {
	out := j
	out.Formats = append([]Format(nil), j.Formats...)
	out.Artifacts = append([]Artifact(nil), j.Artifacts...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Request describes an export to enqueue. No formats means JSON and CSV.
type Request struct {
	Formats     []Format
	RequestedBy string
}

// Option configures a Worker.
type Option func(*Worker)

// WithPrefix sets the blob key prefix for artifacts.
func WithPrefix(prefix string) Option {
	return func(w *Worker) { w.prefix = prefix }
}

// WithQueueSize bounds how many jobs may wait.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l core.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAuditRecorder records one entry per finished job.
func WithAuditRecorder(rec core.AuditRecorder) Option {
	return func(w *Worker) {
		if rec != nil {
			w.audit = rec
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.nowFn = now
		}
	}
}

// WithLinkExpiry sets how long presigned artifact links stay valid.
func WithLinkExpiry(d time.Duration) Option {
	return func(w *Worker) { w.linkExpiry = d }
}

// Worker executes export jobs.
type Worker struct {
	records    domain.RecordStore
	store      blob.Store
	logger     core.Logger
	audit      core.AuditRecorder
	nowFn      func() time.Time
	prefix     string
	queueSize  int
	linkExpiry time.Duration

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job
	done  map[string]chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewWorker constructs a worker writing to store. Call Start before Enqueue.
func NewWorker(records domain.RecordStore, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		records:    records,
		store:      store,
		logger:     nopLogger{},
		audit:      nopAudit{},
		nowFn:      func() time.Time { return time.Now().UTC() },
		prefix:     "exports/",
		queueSize:  8,
		linkExpiry: 24 * time.Hour,
		jobs:       make(map[string]*Job),
		done:       make(map[string]chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan string, w.queueSize)
	return w
}

// Start begins processing jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running job to return. Queued jobs
// are marked failed.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		select {
		case id := <-w.queue:
			w.finish(id, nil, ErrStopped)
		default:
			return nil
		}
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules an export and returns the queued job.
func (w *Worker) Enqueue(_ context.Context, req Request) (Job, error) {
	formats, err := normalizeFormats(req.Formats)
	if err != nil {
		return Job{}, err
	}
	now := w.nowFn()
	job := &Job{
		ID:          uuid.NewString(),
		Formats:     formats,
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return Job{}, ErrStopped
	}
	select {
	case w.queue <- job.ID:
	default:
		return Job{}, ErrQueueFull
	}
	w.jobs[job.ID] = job
	w.done[job.ID] = make(chan struct{})
	return job.copy(), nil
}

// Get returns a snapshot of the job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// Wait blocks until the job finishes or ctx is done.
func (w *Worker) Wait(ctx context.Context, id string) (Job, error) {
	w.mu.RLock()
	done, ok := w.done[id]
	w.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	select {
	case <-done:
		job, _ := w.Get(id)
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func normalizeFormats(in []Format) ([]Format, error) {
	if len(in) == 0 {
		return []Format{FormatJSON, FormatCSV}, nil
	}
	out := make([]Format, 0, len(in))
	seen := make(map[Format]struct{}, len(in))
	for _, f := range in {
		f = Format(strings.ToLower(string(f)))
		if _, ok := contentTypes[f]; !ok {
			return nil, fmt.Errorf("unsupported export format %q", f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func (w *Worker) process(id string) {
	job, ok := w.Get(id)
	if !ok {
		return
	}
	w.setStatus(id, StatusRunning)

	records, err := w.records.List(w.ctx)
	if err != nil {
		w.finish(id, nil, fmt.Errorf("list records: %w", err))
		return
	}
	w.mu.Lock()
	w.jobs[id].Records = len(records)
	w.mu.Unlock()

	artifacts := make([]Artifact, 0, len(job.Formats))
	for _, format := range job.Formats {
		payload, err := render(format, records)
		if err != nil {
			w.finish(id, nil, err)
			return
		}
		artifact, err := w.put(id, format, payload, len(records))
		if err != nil {
			w.finish(id, nil, err)
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.finish(id, artifacts, nil)
}

func (w *Worker) put(id string, format Format, payload []byte, count int) (Artifact, error) {
	key := w.prefix + id + "/records." + string(format)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentTypes[format],
		Metadata:    map[string]string{"job": id, "records": strconv.Itoa(count)},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", key, err)
	}
	artifact := Artifact{
		Key:         info.Key,
		Format:      format,
		ContentType: contentTypes[format],
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		CreatedAt:   info.LastModified,
	}
	url, err := w.store.PresignURL(w.ctx, info.Key, w.linkExpiry)
	switch {
	case err == nil:
		artifact.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		w.logger.Warn("presign export artifact", "key", info.Key, "error", err.Error())
	}
	return artifact, nil
}

func (w *Worker) setStatus(id string, status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job, ok := w.jobs[id]; ok {
		job.Status = status
		job.UpdatedAt = w.nowFn()
	}
}

func (w *Worker) finish(id string, artifacts []Artifact, err error) {
	now := w.nowFn()
	w.mu.Lock()
	job, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusSucceeded
		job.Artifacts = artifacts
	}
	snapshot := job.copy()
	done := w.done[id]
	w.mu.Unlock()
	close(done)

	entry := core.AuditEntry{
		Operation: "export_records",
		EntityID:  id,
		Status:    core.AuditStatusSuccess,
		Duration:  now.Sub(snapshot.CreatedAt),
		Timestamp: now,
	}
	if err != nil {
		entry.Status = core.AuditStatusError
		entry.Error = err.Error()
		w.logger.Error("export failed", "job_id", id, "error", err.Error())
	} else {
		w.logger.Info("export finished", "job_id", id, "records", snapshot.Records, "artifacts", len(artifacts))
	}
	w.audit.Record(context.Background(), entry)
}

func render(format Format, records []domain.Record) ([]byte, error) {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []domain.Record{}
		}
		return json.MarshalIndent(records, "", "  ")
	case FormatCSV:
		var buf bytes.Buffer
		cw := csv.NewWriter(&buf)
		if err := cw.Write(csvHeader); err != nil {
			return nil, err
		}
		for _, r := range records {
			row := []string{
				r.ID, r.Name, r.Link, r.MotherName, r.MotherLink, r.FatherName,
				r.FatherLink, string(r.Sex), r.BirthDate,
				strconv.FormatInt(int64(r.OwnerID), 10),
				r.CreatedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := cw.Write(row); err != nil {
				return nil, err
			}
		}
		cw.Flush()
		return buf.Bytes(), cw.Error()
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopAudit struct{}

func (nopAudit) Record(context.Context, core.AuditEntry) {}
