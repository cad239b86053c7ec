// Package journal provides SQLite-backed durable storage for the event
// log. The in-memory sequencer retains a bounded replay window; the
// journal keeps the whole history for export and post-session audit.
//
// # Critical Patterns
//
// All ordering uses seq (the sequencer's logical position), never
// timestamps: wall clock is recorded for humans only.
//
// Writes are idempotent: ON CONFLICT(seq) DO NOTHING, so replaying a
// window of records after a crash never duplicates rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/eventlog"
)

//go:embed schema.sql
var schemaSQL string

// Journal is an append-only SQLite log of event records.
// Uses WAL mode for concurrent read access.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY on the append path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Append inserts one event record. Idempotent: a record whose seq is
// already present is silently ignored, so re-appending a replay window
// after a crash is safe.
func (j *Journal) Append(ctx context.Context, rec eventlog.Record) error {
	paths, err := marshalPaths(rec.Paths)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(seq, state_version, kind, paths, cause, bundle_id, at_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		rec.Seq,
		rec.StateVersion,
		string(rec.Kind),
		paths,
		string(rec.Cause),
		rec.BundleID,
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// AppendAll inserts a batch of records in one transaction.
func (j *Journal) AppendAll(ctx context.Context, recs []eventlog.Record) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append batch: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		paths, err := marshalPaths(rec.Paths)
		if err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events
			(seq, state_version, kind, paths, cause, bundle_id, at_utc)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(seq) DO NOTHING
		`,
			rec.Seq, rec.StateVersion, string(rec.Kind), paths,
			string(rec.Cause), rec.BundleID, rec.At.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
	}
	return tx.Commit()
}

// ReadRange returns records with from <= seq <= to, ordered by seq.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) ReadRange(ctx context.Context, from, to uint64) ([]eventlog.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, state_version, kind, paths, cause, bundle_id, at_utc
		FROM events
		WHERE seq >= ? AND seq <= ?
		ORDER BY seq ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	recs := []eventlog.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return recs, nil
}

// ReadBundle returns all records for a bundle, ordered by seq.
func (j *Journal) ReadBundle(ctx context.Context, bundleID string) ([]eventlog.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, state_version, kind, paths, cause, bundle_id, at_utc
		FROM events
		WHERE bundle_id = ?
		ORDER BY seq ASC
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("query bundle events: %w", err)
	}
	defer rows.Close()

	recs := []eventlog.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundle events: %w", err)
	}
	return recs, nil
}

// LastSeq returns the highest persisted seq, or 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// scanRecord reads one row into an event record.
func scanRecord(rows *sql.Rows) (eventlog.Record, error) {
	var (
		rec   eventlog.Record
		kind  string
		paths string
		cause string
		atUTC string
	)
	if err := rows.Scan(&rec.Seq, &rec.StateVersion, &kind, &paths, &cause, &rec.BundleID, &atUTC); err != nil {
		return eventlog.Record{}, fmt.Errorf("scan event: %w", err)
	}
	rec.Kind = eventlog.Kind(kind)
	rec.Cause = action.Cause(cause)

	parsed, err := unmarshalPaths(paths)
	if err != nil {
		return eventlog.Record{}, err
	}
	rec.Paths = parsed

	at, err := time.Parse(time.RFC3339Nano, atUTC)
	if err != nil {
		return eventlog.Record{}, fmt.Errorf("parse event time: %w", err)
	}
	rec.At = at
	return rec, nil
}

// marshalPaths converts a sorted path list to JSON TEXT for storage.
func marshalPaths(paths []string) (string, error) {
	if len(paths) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("marshal paths: %w", err)
	}
	return string(data), nil
}

// unmarshalPaths parses JSON TEXT to a path list. Empty lists come back
// nil to round-trip with records that carried no paths.
func unmarshalPaths(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(data), &paths); err != nil {
		return nil, fmt.Errorf("unmarshal paths: %w", err)
	}
	return paths, nil
}
