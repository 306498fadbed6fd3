// Package sqlite provides the embedded, file-backed record store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"epibot/internal/infra/persistence/sqlstore"
	"epibot/pkg/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.RecordStore = (*Store)(nil)

const defaultPath = "epibot.db"

const schema = `CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	link        TEXT NOT NULL DEFAULT '',
	mother_name TEXT NOT NULL DEFAULT '',
	mother_link TEXT NOT NULL DEFAULT '',
	father_name TEXT NOT NULL DEFAULT '',
	father_link TEXT NOT NULL DEFAULT '',
	sex         TEXT NOT NULL DEFAULT '',
	birth_date  TEXT NOT NULL DEFAULT '',
	owner_id    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	name_key    TEXT NOT NULL
)`

const index = `CREATE INDEX IF NOT EXISTS records_name_key ON records(name_key)`

// Store persists records to a single SQLite table.
type Store struct {
	db    *sql.DB
	path  string
	nowFn func() time.Time
}

// NewStore opens (or creates) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent users.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{schema, index} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create records table: %w", err)
		}
	}
	return &Store{db: db, path: path, nowFn: func() time.Time { return time.Now().UTC() }}, nil
}

// Insert writes record in a single statement.
func (s *Store) Insert(ctx context.Context, record domain.Record) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.nowFn()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO records
		(id, name, link, mother_name, mother_link, father_name, father_link, sex, birth_date, owner_id, created_at, name_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.Link, record.MotherName, record.MotherLink,
		record.FatherName, record.FatherLink, string(record.Sex), record.BirthDate,
		int64(record.OwnerID), record.CreatedAt.UTC().UnixNano(), sqlstore.NameKey(record.Name))
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name_key = ?`, key)
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
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, mother_name, father_name, created_at
		FROM records WHERE name_key LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sqlstore.ContainsPattern(query), domain.NormalizeLimit(limit))
	if err != nil {
		return nil, domain.Unavailable("search records", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.RecordSummary, 0)
	for rows.Next() {
		var (
			sum     domain.RecordSummary
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.MotherName, &sum.FatherName, &created); err != nil {
			return nil, domain.Unavailable("scan summary", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate summaries", err)
	}
	return out, nil
}

const selectRecord = `SELECT id, name, link, mother_name, mother_link, father_name, father_link, sex, birth_date, owner_id, created_at FROM records`

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (domain.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id)
	record, err := scanRecord(row)
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
	rows, err := s.db.QueryContext(ctx, selectRecord+` ORDER BY created_at DESC, rowid DESC`)
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
		r       domain.Record
		sex     string
		owner   int64
		created int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Link, &r.MotherName, &r.MotherLink,
		&r.FatherName, &r.FatherLink, &sex, &r.BirthDate, &owner, &created); err != nil {
		return domain.Record{}, err
	}
	r.Sex = domain.ParseSex(sex)
	r.OwnerID = domain.UserID(owner)
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
