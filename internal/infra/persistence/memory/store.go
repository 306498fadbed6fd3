// Package memory provides an in-memory implementation of the record store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"epibot/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.RecordStore = (*Store)(nil)

type entry struct {
	record domain.Record
	seq    uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Records []domain.Record `json:"records"`
}

// Store keeps records in process memory guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]entry
	seq     uint64
	nowFn   func() time.Time
	idFn    func() string
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]entry),
		nowFn:   func() time.Time { return time.Now().UTC() },
		idFn:    func() string { return uuid.NewString() },
	}
}

// SetClock overrides the timestamp source used for new records.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// Insert stores a copy of record and returns its id.
func (s *Store) Insert(ctx context.Context, record domain.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.Unavailable("insert record", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = s.idFn()
	}
	if _, exists := s.records[record.ID]; exists {
		return "", domain.Unavailable("insert record", errDuplicateID(record.ID))
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.nowFn()
	}
	s.seq++
	s.records[record.ID] = entry{record: record, seq: s.seq}
	return record.ID, nil
}

// DeleteByName removes every record whose name matches case-insensitively.
func (s *Store) DeleteByName(ctx context.Context, name string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.Unavailable("delete records", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.records {
		if strings.EqualFold(e.record.Name, name) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// SearchByName returns summaries whose name contains query, newest first.
func (s *Store) SearchByName(ctx context.Context, query string, limit int) ([]domain.RecordSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("search records", err)
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	limit = domain.NormalizeLimit(limit)

	s.mu.RLock()
	matches := make([]entry, 0)
	for _, e := range s.records {
		if strings.Contains(strings.ToLower(e.record.Name), needle) {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]domain.RecordSummary, 0, len(matches))
	for _, e := range matches {
		out = append(out, e.record.Summary())
	}
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, domain.Unavailable("get record", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return e.record, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("list records", err)
	}
	s.mu.RLock()
	all := make([]entry, 0, len(s.records))
	for _, e := range s.records {
		all = append(all, e)
	}
	s.mu.RUnlock()
	sortNewestFirst(all)
	out := make([]domain.Record, 0, len(all))
	for _, e := range all {
		out = append(out, e.record)
	}
	return out, nil
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	records, _ := s.List(context.Background())
	return Snapshot{Records: records}
}

// ImportState replaces the store contents with the snapshot. Records keep
// their ids and timestamps; insertion order follows the snapshot from oldest
// to newest so ties on CreatedAt stay stable.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]entry, len(snapshot.Records))
	s.seq = 0
	for i := len(snapshot.Records) - 1; i >= 0; i-- {
		r := snapshot.Records[i]
		if r.ID == "" {
			r.ID = s.idFn()
		}
		s.seq++
		s.records[r.ID] = entry{record: r, seq: s.seq}
	}
}

func sortNewestFirst(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
			return a.record.CreatedAt.After(b.record.CreatedAt)
		}
		return a.seq > b.seq
	})
}

type errDuplicateID string

func (e errDuplicateID) Error() string { return "record " + string(e) + " already exists" }
