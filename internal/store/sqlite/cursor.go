// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// Compile-time interface check.
var _ store.CursorStore = (*CursorStore)(nil)

// CursorStore implements store.CursorStore backed by SQLite.
type CursorStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCursorStore opens (or creates) a SQLite database at dbPath and
// initialises the cursors table.
func NewCursorStore(dbPath string) (*CursorStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateCursors(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &CursorStore{db: db, now: time.Now}, nil
}

func migrateCursors(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cursors (
	pipeline_id   TEXT PRIMARY KEY,
	last_position INTEGER NOT NULL,
	last_id       TEXT,
	last_seq      INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// SetNowFunc overrides the clock used for updated_at. Intended for tests.
func (s *CursorStore) SetNowFunc(now func() time.Time) {
	s.now = now
}

func (s *CursorStore) Get(ctx context.Context, pipelineID string, def int64) (int64, error) {
	c, err := s.Load(ctx, pipelineID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return def, nil
	}
	return c.LastPosition, nil
}

func (s *CursorStore) Load(ctx context.Context, pipelineID string) (*store.Cursor, error) {
	if pipelineID == "" {
		return nil, autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "cursor: pipeline ID is required")
	}

	const q = `SELECT pipeline_id, last_position, last_id, last_seq, updated_at FROM cursors WHERE pipeline_id = ?`

	var c store.Cursor
	var lastID sql.NullString
	err := s.db.QueryRowContext(ctx, q, pipelineID).Scan(&c.PipelineID, &c.LastPosition, &lastID, &c.LastSeq, &c.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "loading cursor %s", pipelineID)
	}
	c.LastID = lastID.String
	return &c, nil
}

func (s *CursorStore) Set(ctx context.Context, pipelineID string, position int64, lastID string) error {
	return s.Save(ctx, store.Cursor{PipelineID: pipelineID, LastPosition: position, LastID: lastID})
}

// Save upserts c. UpdatedAtMs is taken from the store clock.
func (s *CursorStore) Save(ctx context.Context, c store.Cursor) error {
	if c.PipelineID == "" {
		return autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "cursor: pipeline ID is required")
	}

	const q = `INSERT INTO cursors (pipeline_id, last_position, last_id, last_seq, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(pipeline_id) DO UPDATE SET
	last_position = excluded.last_position,
	last_id       = excluded.last_id,
	last_seq      = excluded.last_seq,
	updated_at    = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, q, c.PipelineID, c.LastPosition, nullString(c.LastID), c.LastSeq, s.now().UnixMilli()); err != nil {
		return dbError(err, "setting cursor %s", c.PipelineID)
	}
	return nil
}

func (s *CursorStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
