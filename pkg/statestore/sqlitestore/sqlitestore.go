// Package sqlitestore implements statestore.Store on a local SQLite database.
// It is meant for local runs and offline replays where DynamoDB is not
// available. All logical tables share one SQL table, keyed by table name.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eunmann/s3-chunkproc/pkg/logging"
	"github.com/eunmann/s3-chunkproc/pkg/statestore"
)

// Store is a SQLite-backed statestore.Store.
type Store struct {
	db *sql.DB
}

var _ statestore.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	log := logging.WithPhase("sqlite_open")

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info().Str("db_path", path).Msg("opened SQLite state store")

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state_records (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name    TEXT NOT NULL,
			partition_key TEXT NOT NULL,
			event_type    TEXT NOT NULL,
			recorded_at   TEXT NOT NULL,
			message       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_state_records_lookup
			ON state_records(table_name, partition_key, event_type);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// QueryByKind implements statestore.Store. Messages are returned in write order.
func (s *Store) QueryByKind(ctx context.Context, table, partitionKey string, kind statestore.Kind, opts ...statestore.QueryOption) (statestore.QueryResult, error) {
	o := statestore.ApplyQueryOptions(opts...)

	if o.CountOnly {
		var n int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM state_records
			WHERE table_name = ? AND partition_key = ? AND event_type = ?
		`, table, partitionKey, string(kind)).Scan(&n)
		if err != nil {
			return statestore.QueryResult{}, fmt.Errorf("count %s records in %s for %s: %w", kind, table, partitionKey, err)
		}
		return statestore.QueryResult{Count: n}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message FROM state_records
		WHERE table_name = ? AND partition_key = ? AND event_type = ?
		ORDER BY id
	`, table, partitionKey, string(kind))
	if err != nil {
		return statestore.QueryResult{}, fmt.Errorf("query %s records in %s for %s: %w", kind, table, partitionKey, err)
	}
	defer rows.Close()

	var res statestore.QueryResult
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return statestore.QueryResult{}, fmt.Errorf("scan %s record: %w", kind, err)
		}
		res.Messages = append(res.Messages, msg)
		res.Count++
	}
	if err := rows.Err(); err != nil {
		return statestore.QueryResult{}, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return res, nil
}

// Put implements statestore.Store.
func (s *Store) Put(ctx context.Context, table string, rec statestore.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_records (table_name, partition_key, event_type, recorded_at, message)
		VALUES (?, ?, ?, ?, ?)
	`, table, rec.PartitionKey, string(rec.Kind), rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Message)
	if err != nil {
		return fmt.Errorf("put %s record in %s for %s: %w", rec.Kind, table, rec.PartitionKey, err)
	}
	return nil
}
