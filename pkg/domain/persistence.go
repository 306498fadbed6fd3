package domain

import "context"

// DefaultSearchLimit caps the number of summaries returned by a name search.
const DefaultSearchLimit = 20

// RecordStore is the durable backend for completed records. Every method is a
// suspension point: implementations must either complete atomically or return
// an error wrapping ErrStoreUnavailable.
type RecordStore interface {
	// Insert persists a new record and returns its id. A missing ID or CreatedAt
	// is filled in by the store.
	Insert(ctx context.Context, record Record) (string, error)
	// DeleteByName removes every record whose subject name equals name
	// (case-insensitive) and returns the number removed. Zero is not an error.
	DeleteByName(ctx context.Context, name string) (int, error)
	// SearchByName returns summaries whose subject name contains query
	// (case-insensitive), newest first, at most limit entries.
	SearchByName(ctx context.Context, query string, limit int) ([]RecordSummary, error)
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// List returns every stored record, newest first.
	List(ctx context.Context) ([]Record, error)
}

// NormalizeLimit clamps a caller supplied limit to (0, DefaultSearchLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultSearchLimit {
		return DefaultSearchLimit
	}
	return limit
}
