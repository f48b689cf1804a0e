// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

const metaKeyEmbeddingDim = "embedding_dim"

// VectorStore implements store.VectorStore with one SQLite database per
// logical table. Embeddings are stored as sqlite-vec float32 blobs and ranked
// with vec_distance_cosine over the filtered candidate set.
type VectorStore struct {
	dir    string
	mu     sync.Mutex // guards tables
	tables map[string]*vecTable
}

// vecTable is one open table database.
type vecTable struct {
	name string
	db   *sql.DB
	mu   sync.Mutex // serializes schema read-modify-write
	dim  int        // cached embedding dimension; 0 until the schema is known
}

// NewVectorStore creates a VectorStore whose table databases live in dir.
func NewVectorStore(dir string) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector table directory: %w", err)
	}
	return &VectorStore{dir: dir, tables: make(map[string]*vecTable)}, nil
}

func migrateTable(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS table_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	log_group  TEXT NOT NULL DEFAULT '',
	log_stream TEXT NOT NULL DEFAULT '',
	ts_ms      INTEGER NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	dims       INTEGER NOT NULL,
	embedding  BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_ms, seq);
CREATE INDEX IF NOT EXISTS idx_events_group_ts ON events(log_group, ts_ms);
`
	_, err := db.Exec(ddl)
	return err
}

func (v *VectorStore) tablePath(name string) string {
	return filepath.Join(v.dir, name+".db")
}

// openTable returns the open table handle. When create is false and the
// table has never been created, it returns nil without touching the disk.
func (v *VectorStore) openTable(name string, create bool) (*vecTable, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if t, ok := v.tables[name]; ok {
		return t, nil
	}

	path := v.tablePath(name)
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError(err, "opening table %s", name)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dbError(err, "pinging table %s", name)
	}
	if err := migrateTable(db); err != nil {
		_ = db.Close()
		return nil, dbError(err, "migrating table %s", name)
	}

	t := &vecTable{name: name, db: db}
	v.tables[name] = t
	return t, nil
}

// dimension returns the table's embedding dimension, or 0 if the schema has
// not been ensured yet.
func (t *vecTable) dimension(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dim > 0 {
		return t.dim, nil
	}
	dim, err := readDim(ctx, t.db)
	if err != nil {
		return 0, dbError(err, "reading dimension of table %s", t.name)
	}
	t.dim = dim
	return dim, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readDim(ctx context.Context, q queryRower) (int, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM table_meta WHERE key = ?`, metaKeyEmbeddingDim).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing stored dimension %q: %w", raw, err)
	}
	return dim, nil
}

// EnsureSchema creates the table if needed and records its dimension.
func (v *VectorStore) EnsureSchema(ctx context.Context, table string, embeddingDim int) error {
	if embeddingDim <= 0 {
		return autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput,
			"table %s: embedding dimension must be > 0, got %d", table, embeddingDim)
	}

	t, err := v.openTable(table, true)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(err, "beginning schema transaction for %s", table)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := readDim(ctx, tx)
	if err != nil {
		return dbError(err, "reading dimension of table %s", table)
	}

	switch {
	case stored == embeddingDim:
		t.dim = stored
		return nil
	case stored != 0:
		return schemaMismatch(table, stored, embeddingDim)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO table_meta(key, value) VALUES (?, ?)`,
		metaKeyEmbeddingDim, strconv.Itoa(embeddingDim)); err != nil {
		return dbError(err, "recording dimension of table %s", table)
	}
	if err := tx.Commit(); err != nil {
		return dbError(err, "committing schema for %s", table)
	}

	t.dim = embeddingDim
	return nil
}

// Insert appends one event to the table. The table must exist and the
// embedding must match its dimension.
func (v *VectorStore) Insert(ctx context.Context, table string, event *store.LogEvent) error {
	if event == nil {
		return autoirerr.Wrapf(store.ErrInvalidInput, autoirerr.CodeStoreInvalidInput, "table %s: nil event", table)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	t, err := v.openTable(table, false)
	if err != nil {
		return err
	}
	if t == nil {
		return tableNotFound(table)
	}

	dim, err := t.dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return tableNotFound(table)
	}
	if len(event.Embedding) != dim {
		return schemaMismatch(table, dim, len(event.Embedding))
	}

	blob, err := sqlite_vec.SerializeFloat32(event.Embedding)
	if err != nil {
		return autoirerr.Wrapf(err, autoirerr.CodeStoreInvalidInput, "serializing embedding of event %s", event.ID)
	}

	const q = `INSERT INTO events (id, log_group, log_stream, ts_ms, message, dims, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := t.db.ExecContext(ctx, q,
		event.ID,
		event.Group,
		event.Stream,
		event.TimestampMs,
		event.Message,
		len(event.Embedding),
		blob,
	); err != nil {
		return dbError(err, "inserting event %s into %s", event.ID, table)
	}
	return nil
}

// RangeScan returns events with fromMs < timestamp <= toMs, oldest first,
// truncated to limit.
func (v *VectorStore) RangeScan(ctx context.Context, table string, fromMs, toMs int64, limit int) ([]*store.LogEvent, error) {
	return v.RangeScanAfter(ctx, table, fromMs, 0, toMs, limit)
}

// RangeScanAfter returns events ordered by (timestamp, seq) that sort after
// (fromMs, afterSeq) and have timestamp <= toMs.
func (v *VectorStore) RangeScanAfter(ctx context.Context, table string, fromMs, afterSeq, toMs int64, limit int) ([]*store.LogEvent, error) {
	if limit <= 0 || toMs < fromMs || (toMs == fromMs && afterSeq <= 0) {
		return nil, nil
	}

	t, err := v.openTable(table, false)
	if err != nil || t == nil {
		return nil, err
	}

	const rangeQuery = `SELECT seq, id, log_group, log_stream, ts_ms, message, embedding
FROM events
WHERE ts_ms > ? AND ts_ms <= ?
ORDER BY ts_ms ASC, seq ASC
LIMIT ?`
	const resumeQuery = `SELECT seq, id, log_group, log_stream, ts_ms, message, embedding
FROM events
WHERE (ts_ms > ? OR (ts_ms = ? AND seq > ?)) AND ts_ms <= ?
ORDER BY ts_ms ASC, seq ASC
LIMIT ?`

	var rows *sql.Rows
	if afterSeq > 0 {
		rows, err = t.db.QueryContext(ctx, resumeQuery, fromMs, fromMs, afterSeq, toMs, limit)
	} else {
		rows, err = t.db.QueryContext(ctx, rangeQuery, fromMs, toMs, limit)
	}
	if err != nil {
		return nil, dbError(err, "scanning table %s", table)
	}
	defer func() { _ = rows.Close() }()

	var events []*store.LogEvent
	for rows.Next() {
		var e store.LogEvent
		var blob []byte
		if err := rows.Scan(&e.Seq, &e.ID, &e.Group, &e.Stream, &e.TimestampMs, &e.Message, &blob); err != nil {
			return nil, dbError(err, "scanning event row in %s", table)
		}
		e.Embedding = deserializeFloat32(blob)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterating events in %s", table)
	}
	return events, nil
}

// Search performs an exact k-nearest-neighbor scan by cosine distance over
// the events that pass filters. Rows whose stored dimension differs from the
// query are skipped.
func (v *VectorStore) Search(ctx context.Context, table string, query []float32, k int, filters store.SearchFilters) ([]store.SearchResult, error) {
	if len(query) == 0 || k <= 0 || isZeroVector(query) {
		return nil, nil
	}

	t, err := v.openTable(table, false)
	if err != nil || t == nil {
		return nil, err
	}

	dim, err := t.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, schemaMismatch(table, dim, len(query))
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, autoirerr.Wrapf(err, autoirerr.CodeStoreInvalidInput, "serializing query vector")
	}

	var where []string
	args := []any{len(query), blob}
	if filters.Group != "" {
		where = append(where, "log_group = ?")
		args = append(args, filters.Group)
	}
	if filters.MinTimestampMs != nil {
		where = append(where, "ts_ms >= ?")
		args = append(args, *filters.MinTimestampMs)
	}
	if filters.MinMessageLength != nil {
		where = append(where, "length(message) >= ?")
		args = append(args, *filters.MinMessageLength)
	}
	args = append(args, k)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// CASE guards vec_distance_cosine from rows of a foreign dimension.
	q := `SELECT seq, id, log_group, log_stream, ts_ms, message, embedding, distance FROM (
	SELECT seq, id, log_group, log_stream, ts_ms, message, embedding,
		CASE WHEN dims = ? THEN vec_distance_cosine(embedding, ?) END AS distance
	FROM events
	` + whereClause + `
)
WHERE distance IS NOT NULL
ORDER BY distance ASC, seq ASC
LIMIT ?`

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError(err, "searching table %s", table)
	}
	defer func() { _ = rows.Close() }()

	var results []store.SearchResult
	for rows.Next() {
		var e store.LogEvent
		var emb []byte
		var distance float64
		if err := rows.Scan(&e.Seq, &e.ID, &e.Group, &e.Stream, &e.TimestampMs, &e.Message, &emb, &distance); err != nil {
			return nil, dbError(err, "scanning search result in %s", table)
		}
		e.Embedding = deserializeFloat32(emb)
		results = append(results, store.SearchResult{Event: &e, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterating search results in %s", table)
	}
	return results, nil
}

// Tables lists the tables found in the store directory.
func (v *VectorStore) Tables(ctx context.Context) ([]store.TableInfo, error) {
	matches, err := filepath.Glob(filepath.Join(v.dir, "*.db"))
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	sort.Strings(matches)

	var infos []store.TableInfo
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".db")
		if store.ValidateTableName(name) != nil {
			continue
		}
		t, err := v.openTable(name, false)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		dim, err := t.dimension(ctx)
		if err != nil {
			return nil, err
		}
		var count int64
		if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
			return nil, dbError(err, "counting events in %s", name)
		}
		infos = append(infos, store.TableInfo{Name: name, EmbeddingDim: dim, EventCount: count})
	}
	return infos, nil
}

// Close closes every open table database.
func (v *VectorStore) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	for name, t := range v.tables {
		if err := t.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing table %s: %w", name, err))
		}
		delete(v.tables, name)
	}
	return errors.Join(errs...)
}

// deserializeFloat32 decodes a little-endian float32 blob as written by
// sqlite_vec.SerializeFloat32.
func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func isZeroVector(vec []float32) bool {
	for _, x := range vec {
		if x != 0 {
			return false
		}
	}
	return true
}

func tableNotFound(table string) error {
	return autoirerr.Wrapf(store.ErrNotFound, autoirerr.CodeStoreTableNotFound,
		"table %s does not exist; ensure its schema first", table)
}

func schemaMismatch(table string, stored, requested int) error {
	return autoirerr.Wrapf(store.ErrSchemaMismatch, autoirerr.CodeStoreSchemaMismatch,
		"table %s: stored embedding dimension %d, got %d", table, stored, requested)
}

// dbError classifies an I/O failure as a retryable database error.
func dbError(err error, format string, args ...any) error {
	return autoirerr.Wrapf(fmt.Errorf("%w: %w", store.ErrDatabase, err), autoirerr.CodeStoreDatabaseFailure, format, args...)
}
