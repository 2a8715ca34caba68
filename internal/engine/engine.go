// Package engine is the pooled SQL executor (C2): a thin adapter over
// the embedded SQLite engine providing typed parameter binding,
// row-to-record decoding, a single-writer/many-reader connection
// split, and query-plan-derived table dependency sets.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/zerovault/zerovault/internal/zverrors"
)

const depCacheSize = 256

// dependencyPattern pulls the table name out of an EXPLAIN QUERY PLAN
// "detail" column, e.g. "SCAN todos" or "SEARCH todos USING INDEX ...".
var dependencyPattern = regexp.MustCompile(`(?i)\b(?:SCAN|SEARCH)\s+(?:TABLE\s+)?([A-Za-z0-9_]+)`)

// Engine is the pooled SQL executor. A writer connection is pinned to
// a single open connection (write-serial); a reader pool is sized to
// the host's CPU count (read-parallel), matching spec 4.2.
type Engine struct {
	writer *sqlx.DB
	reader *sqlx.DB
	path   string

	writeMu sync.Mutex
	inTxn   atomic.Bool

	depCache *lru.Cache[string, []string]
}

// Open opens (or creates) a SQLite database file at path.
func Open(path string) (*Engine, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	return openDSN(dsn, path)
}

// OpenMemory opens a shared in-memory database identified by name, so
// that multiple *Engine handles in the same process (e.g. two
// replicas in a test) can share state by reusing the same name, or
// stay isolated by using distinct names.
func OpenMemory(name string) (*Engine, error) {
	if name == "" {
		name = "default"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", name)
	return openDSN(dsn, "memory:"+name)
}

func openDSN(dsn, path string) (*Engine, error) {
	writer, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "open writer", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "open reader", err)
	}
	readers := runtime.NumCPU()
	if readers < 1 {
		readers = 1
	}
	reader.SetMaxOpenConns(readers)

	if err := writer.Ping(); err != nil {
		return nil, zverrors.New(zverrors.Engine, "ping", err)
	}

	cache, err := lru.New[string, []string](depCacheSize)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "dependency cache", err)
	}

	return &Engine{writer: writer, reader: reader, path: path, depCache: cache}, nil
}

// Path returns the file path the engine was opened with, or
// "memory:<name>" for an in-memory database.
func (e *Engine) Path() string { return e.path }

// Exec runs a one-shot statement against the writer connection,
// outside of an explicit transaction. Used for schema DDL and
// metadata bookkeeping that doesn't need the write-txn contract.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "exec", err)
	}
	return res, nil
}

// Select runs query against the reader pool and scans all rows into
// dest (a pointer to a slice), via sqlx's db-tag reflection.
func (e *Engine) Select(ctx context.Context, dest any, query string, args ...any) error {
	if err := e.reader.SelectContext(ctx, dest, query, args...); err != nil {
		return zverrors.New(zverrors.Engine, "select", err)
	}
	return nil
}

// SelectMap runs query against the reader pool and scans every row
// into a column-name-keyed map, for callers (the REPL) that don't
// know a static row type ahead of time.
func (e *Engine) SelectMap(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.reader.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "select map", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, zverrors.New(zverrors.Engine, "select map scan", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, zverrors.New(zverrors.Engine, "select map", err)
	}
	return out, nil
}

// Get runs query and scans a single row into dest. Returns
// sql.ErrNoRows unwrapped, so callers can use the stdlib sentinel
// directly.
func (e *Engine) Get(ctx context.Context, dest any, query string, args ...any) error {
	err := e.reader.GetContext(ctx, dest, query, args...)
	if err == nil || err == sql.ErrNoRows {
		return err
	}
	return zverrors.New(zverrors.Engine, "get", err)
}

// WithWriteTxn acquires the single write connection, begins a
// transaction, and calls fn. fn's error rolls the transaction back and
// propagates unchanged; a nil error commits. Re-entrant calls (from a
// write already in flight) return an Engine error instead of
// deadlocking, per spec 4.2's "re-entrant use is forbidden".
func (e *Engine) WithWriteTxn(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if !e.inTxn.CompareAndSwap(false, true) {
		return zverrors.New(zverrors.Engine, "with_write_txn", fmt.Errorf("re-entrant write transaction"))
	}
	defer e.inTxn.Store(false)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	tx, err := e.writer.BeginTxx(ctx, nil)
	if err != nil {
		return zverrors.New(zverrors.Engine, "begin", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return zverrors.New(zverrors.Engine, "commit", err)
	}
	return nil
}

// DependenciesOf returns the set of user tables query reads, derived
// by parsing EXPLAIN QUERY PLAN's output. Results are cached by raw
// SQL text, so repeated subscriptions to the same query skip the
// query-plan parse.
func (e *Engine) DependenciesOf(ctx context.Context, query string, args ...any) ([]string, error) {
	if tables, ok := e.depCache.Get(query); ok {
		return tables, nil
	}

	rows, err := e.reader.QueryxContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, zverrors.New(zverrors.Engine, "explain query plan", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return nil, zverrors.New(zverrors.Engine, "scan query plan", err)
		}
		for _, m := range dependencyPattern.FindAllStringSubmatch(detail, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, zverrors.New(zverrors.Engine, "query plan", err)
	}

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	e.depCache.Add(query, tables)
	return tables, nil
}

// Close checkpoints the WAL and closes both connections.
func (e *Engine) Close() error {
	_, _ = e.writer.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := e.writer.Close(); err != nil {
		return zverrors.New(zverrors.Engine, "close writer", err)
	}
	if err := e.reader.Close(); err != nil {
		return zverrors.New(zverrors.Engine, "close reader", err)
	}
	return nil
}
