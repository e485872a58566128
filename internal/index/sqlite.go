package index

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nebula-labs/nebula/internal/bundle"
)

//go:embed schema.sql
var schemaSQL string

const dbFileName = "index.db"

const (
	metaOriginID   = "origin_id"
	metaOriginName = "origin_name"
	metaLastSync   = "last_sync"
)

// SQLiteStore keeps the index in <dir>/index.db. Row order is the index order.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates or opens <dir>/index.db and applies the schema.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	path := filepath.Join(dir, dbFileName)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to index database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying index schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (*bundle.Index, error) {
	idx := bundle.NewIndex()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, version, content_hash, dependencies, updated_at,
		       storage_path, manifest_path, synced_at, notes, metadata
		FROM entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying index entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                 bundle.IndexEntry
			deps, meta        string
			updated, syncedAt string
		)
		if err := rows.Scan(&e.ID, &e.DisplayName, &e.Version, &e.ContentHash, &deps, &updated,
			&e.StoragePath, &e.ManifestPath, &syncedAt, &e.Notes, &meta); err != nil {
			return nil, fmt.Errorf("scanning index entry: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &e.Dependencies); err != nil {
			return nil, fmt.Errorf("decoding dependencies of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", e.ID, err)
		}
		if len(e.Dependencies) == 0 {
			e.Dependencies = nil
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		if e.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("decoding updated_at of %s: %w", e.ID, err)
		}
		if e.SyncedAt, err = parseTime(syncedAt); err != nil {
			return nil, fmt.Errorf("decoding synced_at of %s: %w", e.ID, err)
		}
		idx.Entries = append(idx.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading index entries: %w", err)
	}

	metaRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("querying index metadata: %w", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning index metadata: %w", err)
		}
		switch key {
		case metaOriginID:
			idx.Meta.OriginID = value
		case metaOriginName:
			idx.Meta.OriginName = value
		case metaLastSync:
			if idx.Meta.LastSync, err = parseTime(value); err != nil {
				return nil, fmt.Errorf("decoding last_sync: %w", err)
			}
		}
	}
	if err := metaRows.Err(); err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}

	return idx, nil
}

func (s *SQLiteStore) Save(ctx context.Context, idx *bundle.Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	if err := replaceAll(ctx, tx, idx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

func replaceAll(ctx context.Context, tx *sql.Tx, idx *bundle.Index) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clearing index entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return fmt.Errorf("clearing index metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (position, id, display_name, version, content_hash, dependencies,
		                     updated_at, storage_path, manifest_path, synced_at, notes, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range idx.Entries {
		deps, err := json.Marshal(nonNilSlice(e.Dependencies))
		if err != nil {
			return fmt.Errorf("encoding dependencies of %s: %w", e.ID, err)
		}
		meta, err := json.Marshal(nonNilMap(e.Metadata))
		if err != nil {
			return fmt.Errorf("encoding metadata of %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, e.ID, e.DisplayName, e.Version, e.ContentHash, string(deps),
			formatTime(e.UpdatedAt), e.StoragePath, e.ManifestPath, formatTime(e.SyncedAt), e.Notes, string(meta)); err != nil {
			return fmt.Errorf("inserting index entry %s: %w", e.ID, err)
		}
	}

	meta := map[string]string{
		metaOriginID:   idx.Meta.OriginID,
		metaOriginName: idx.Meta.OriginName,
		metaLastSync:   formatTime(idx.Meta.LastSync),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("writing index metadata %s: %w", k, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
