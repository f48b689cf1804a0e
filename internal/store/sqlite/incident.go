// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Compile-time interface check.
var _ store.IncidentStore = (*IncidentStore)(nil)

// IncidentStore implements store.IncidentStore backed by SQLite. The
// dedupe_key column is UNIQUE, so the at-most-one-record-per-key invariant
// holds even against a second writer.
type IncidentStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes Upsert and Merge read-modify-write
	now func() time.Time
}

// NewIncidentStore opens (or creates) a SQLite database at dbPath and
// initialises the incidents table.
func NewIncidentStore(dbPath string) (*IncidentStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateIncidents(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &IncidentStore{db: db, now: time.Now}, nil
}

func migrateIncidents(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS incidents (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'open',
	severity         TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT,
	affected_group   TEXT,
	affected_stream  TEXT,
	first_seen       INTEGER,
	last_seen        INTEGER,
	event_count      INTEGER NOT NULL DEFAULT 0,
	sample_event_ids TEXT,
	context          TEXT,
	dedupe_key       TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status, updated_at);
`
	_, err := db.Exec(ddl)
	return err
}

// SetNowFunc overrides the clock used for created/updated timestamps.
// Intended for tests.
func (s *IncidentStore) SetNowFunc(now func() time.Time) {
	s.now = now
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const incidentColumns = `id, created_at, updated_at, status, severity, title, summary,
	affected_group, affected_stream, first_seen, last_seen, event_count,
	sample_event_ids, context, dedupe_key`

func (s *IncidentStore) FindByDedupeKey(ctx context.Context, key string) (*store.Incident, error) {
	if key == "" {
		return nil, autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "incident: dedupe key is required")
	}
	return findOne(ctx, s.db, `SELECT `+incidentColumns+` FROM incidents WHERE dedupe_key = ?`, key)
}

// Get returns the incident with id, or nil if none exists.
func (s *IncidentStore) Get(ctx context.Context, id string) (*store.Incident, error) {
	return findOne(ctx, s.db, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
}

func (s *IncidentStore) Insert(ctx context.Context, inc *store.Incident) (string, error) {
	if inc == nil {
		return "", autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "incident: nil record")
	}
	if err := inc.Validate(); err != nil {
		return "", err
	}
	return s.insert(ctx, s.db, inc)
}

func (s *IncidentStore) insert(ctx context.Context, q dbtx, inc *store.Incident) (string, error) {
	samples, err := encodeJSON(inc.SampleEventIDs)
	if err != nil {
		return "", autoirerr.Wrapf(err, autoirerr.CodeStoreInvalidInput, "encoding sample ids of %s", inc.DedupeKey)
	}
	ctxDoc, err := encodeJSON(inc.Context)
	if err != nil {
		return "", autoirerr.Wrapf(err, autoirerr.CodeStoreInvalidInput, "encoding context of %s", inc.DedupeKey)
	}

	id := uuid.New().String()
	now := s.now().UnixMilli()

	const stmt = `INSERT INTO incidents (` + incidentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, stmt,
		id,
		now,
		now,
		string(store.IncidentStatusOpen),
		string(inc.Severity),
		inc.Title,
		nullString(inc.Summary),
		nullString(inc.AffectedGroup),
		nullString(inc.AffectedStream),
		nullInt64(inc.FirstSeenMs),
		nullInt64(inc.LastSeenMs),
		inc.EventCount,
		samples,
		ctxDoc,
		inc.DedupeKey,
	)
	if isUniqueViolation(err) {
		return "", autoirerr.Wrap(store.ErrConflict, autoirerr.CodeStoreIncidentConflict,
			"incident with this dedupe key already exists", autoirerr.FieldDedupeKey(inc.DedupeKey))
	}
	if err != nil {
		return "", dbError(err, "inserting incident %s", inc.DedupeKey)
	}
	return id, nil
}

func (s *IncidentStore) Merge(ctx context.Context, id string, delta store.IncidentDelta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merge(ctx, s.db, id, delta)
}

// merge applies delta in a single UPDATE so each call is atomic.
func (s *IncidentStore) merge(ctx context.Context, q dbtx, id string, delta store.IncidentDelta) error {
	ctxDoc, err := encodeJSON(delta.Context)
	if err != nil {
		return autoirerr.Wrapf(err, autoirerr.CodeStoreInvalidInput, "encoding context of incident %s", id)
	}

	lastSeen := nullInt64(delta.LastSeenMs)

	const stmt = `UPDATE incidents SET
	updated_at      = ?,
	last_seen       = CASE
		WHEN ? IS NULL THEN last_seen
		WHEN last_seen IS NULL OR last_seen < ? THEN ?
		ELSE last_seen
	END,
	event_count     = event_count + ?,
	summary         = COALESCE(?, summary),
	affected_group  = COALESCE(?, affected_group),
	affected_stream = COALESCE(?, affected_stream),
	context         = COALESCE(?, context)
WHERE id = ?`

	res, err := q.ExecContext(ctx, stmt,
		s.now().UnixMilli(),
		lastSeen, lastSeen, lastSeen,
		delta.AdditionalEventCount,
		nullStringPtr(delta.Summary),
		nullStringPtr(delta.AffectedGroup),
		nullStringPtr(delta.AffectedStream),
		ctxDoc,
		id,
	)
	if err != nil {
		return dbError(err, "merging incident %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "merging incident %s", id)
	}
	if n == 0 {
		return autoirerr.Wrap(store.ErrNotFound, autoirerr.CodeStoreIncidentNotFound,
			"incident not found", autoirerr.FieldIncidentID(id))
	}
	return nil
}

func (s *IncidentStore) Upsert(ctx context.Context, inc *store.Incident) (store.UpsertResult, error) {
	if inc == nil {
		return store.UpsertResult{}, autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "incident: nil record")
	}
	if err := inc.Validate(); err != nil {
		return store.UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.UpsertResult{}, dbError(err, "beginning upsert of %s", inc.DedupeKey)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findOne(ctx, tx, `SELECT `+incidentColumns+` FROM incidents WHERE dedupe_key = ?`, inc.DedupeKey)
	if err != nil {
		return store.UpsertResult{}, err
	}

	var result store.UpsertResult
	if existing == nil {
		id, err := s.insert(ctx, tx, inc)
		if err != nil {
			return store.UpsertResult{}, err
		}
		result = store.UpsertResult{ID: id, Created: true}
	} else {
		if err := s.merge(ctx, tx, existing.ID, store.DeltaFrom(inc)); err != nil {
			return store.UpsertResult{}, err
		}
		result = store.UpsertResult{ID: existing.ID}
	}

	if err := tx.Commit(); err != nil {
		return store.UpsertResult{}, dbError(err, "committing upsert of %s", inc.DedupeKey)
	}
	return result, nil
}

func (s *IncidentStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Incident, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	if opts.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	q += ` ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError(err, "listing incidents")
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterating incidents")
	}
	return out, nil
}

func (s *IncidentStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func findOne(ctx context.Context, q dbtx, query string, arg any) (*store.Incident, error) {
	inc, err := scanIncident(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

func scanIncident(row rowScanner) (*store.Incident, error) {
	var (
		inc                    store.Incident
		status, severity       string
		summary, group, stream sql.NullString
		firstSeen, lastSeen    sql.NullInt64
		samples, ctxDoc        sql.NullString
	)
	err := row.Scan(
		&inc.ID, &inc.CreatedAtMs, &inc.UpdatedAtMs, &status, &severity, &inc.Title, &summary,
		&group, &stream, &firstSeen, &lastSeen, &inc.EventCount,
		&samples, &ctxDoc, &inc.DedupeKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, dbError(err, "scanning incident row")
	}

	inc.Status = store.IncidentStatus(status)
	inc.Severity = store.Severity(severity)
	inc.Summary = summary.String
	inc.AffectedGroup = group.String
	inc.AffectedStream = stream.String
	inc.FirstSeenMs = firstSeen.Int64
	inc.LastSeenMs = lastSeen.Int64

	if samples.Valid {
		if err := json.Unmarshal([]byte(samples.String), &inc.SampleEventIDs); err != nil {
			return nil, dbError(err, "decoding sample ids of incident %s", inc.ID)
		}
	}
	if ctxDoc.Valid {
		if err := json.Unmarshal([]byte(ctxDoc.String), &inc.Context); err != nil {
			return nil, dbError(err, "decoding context of incident %s", inc.ID)
		}
	}
	return &inc, nil
}

// encodeJSON returns a NULL for nil or empty values so COALESCE keeps the
// stored document.
func encodeJSON[T any](v T) (sql.NullString, error) {
	switch x := any(v).(type) {
	case []string:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// nullInt64 stores 0 as NULL; a zero timestamp means the time is unknown.
func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullStringPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
