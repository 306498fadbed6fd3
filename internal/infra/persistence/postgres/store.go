// Package postgres provides a Postgres-backed record store using pgx through
// database/sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"epibot/internal/infra/persistence/sqlstore"
	"epibot/pkg/domain"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RecordStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/epibot?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		link        TEXT NOT NULL DEFAULT '',
		mother_name TEXT NOT NULL DEFAULT '',
		mother_link TEXT NOT NULL DEFAULT '',
		father_name TEXT NOT NULL DEFAULT '',
		father_link TEXT NOT NULL DEFAULT '',
		sex         TEXT NOT NULL DEFAULT '',
		birth_date  TEXT NOT NULL DEFAULT '',
		owner_id    BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		name_key    TEXT NOT NULL,
		seq         BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS records_name_key ON records (name_key)`,
	`CREATE INDEX IF NOT EXISTS records_created_at ON records (created_at DESC, seq DESC)`,
}

const selectRecord = `SELECT id, name, link, mother_name, mother_link, father_name, father_link, sex, birth_date, owner_id, created_at FROM records`

// Store persists records to Postgres.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), verifies connectivity and ensures the records table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, nowFn: func() time.Time { return time.Now().UTC() }}, nil
}

// Insert writes record in a single statement.
func (s *Store) Insert(ctx context.Context, record domain.Record) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.nowFn()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO records (id, name, link, mother_name, mother_link, father_name, father_link, sex, birth_date, owner_id, created_at, name_key) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.Name, record.Link, record.MotherName, record.MotherLink,
		record.FatherName, record.FatherLink, string(record.Sex), record.BirthDate,
		int64(record.OwnerID), record.CreatedAt.UTC(), sqlstore.NameKey(record.Name))
	if err != nil {
		return "", domain.Unavailable("insert record", err)
	}
	return record.ID, nil
}

// DeleteByName removes all records whose name matches case-insensitively.
func (s *Store) DeleteByName(ctx context.Context, name string) (int, error) {
	key := sqlstore.NameKey(name)
	if key == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name_key = $1`, key)
	if err != nil {
		return 0, domain.Unavailable("delete records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Unavailable("delete records", err)
	}
	return int(n), nil
}

// SearchByName returns summaries whose name contains query, newest first.
func (s *Store) SearchByName(ctx context.Context, query string, limit int) ([]domain.RecordSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, mother_name, father_name, created_at FROM records WHERE name_key LIKE $1 ESCAPE '\' ORDER BY created_at DESC, seq DESC LIMIT $2`,
		sqlstore.ContainsPattern(query), domain.NormalizeLimit(limit))
	if err != nil {
		return nil, domain.Unavailable("search records", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.RecordSummary, 0)
	for rows.Next() {
		var sum domain.RecordSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.MotherName, &sum.FatherName, &sum.CreatedAt); err != nil {
			return nil, domain.Unavailable("scan summary", err)
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate summaries", err)
	}
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (domain.Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, domain.Unavailable("get record", err)
	}
	return record, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+` ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, domain.Unavailable("list records", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, domain.Unavailable("scan record", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate records", err)
	}
	return out, nil
}

func scanRecord(row sqlstore.Scanner) (domain.Record, error) {
	var (
		r     domain.Record
		sex   string
		owner int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Link, &r.MotherName, &r.MotherLink,
		&r.FatherName, &r.FatherLink, &sex, &r.BirthDate, &owner, &r.CreatedAt); err != nil {
		return domain.Record{}, err
	}
	r.Sex = domain.ParseSex(sex)
	r.OwnerID = domain.UserID(owner)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
