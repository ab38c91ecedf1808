package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the lookup map in an embedded SQLite database,
// one row per key. Save rewrites the whole table in a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the SQLite database at path.
// A file that exists but cannot be opened as a database is renamed to
// <path>.corrupt-<unix> and a fresh database is created in its place.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("sqlite store: mkdir %s: %w", dir, err)
		}
	}
	s, err := openSQLite(path)
	if err == nil {
		return s, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, err
	}
	slog.Warn("cache: sqlite store unreadable, moved aside and starting empty",
		slog.String("path", path), slog.String("moved_to", aside), slog.Any("error", err))
	return openSQLite(path)
}

func openSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initLookupSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initLookupSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS lookup_entries (
		key        TEXT PRIMARY KEY,
		results    TEXT NOT NULL,
		fetched_at REAL NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context) (map[string]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, results, fetched_at FROM lookup_entries`)
	if err != nil {
		return nil, &StoreLoadError{Store: s.Name(), Err: err}
	}
	defer rows.Close()

	entries := map[string]CacheEntry{}
	for rows.Next() {
		var (
			key     string
			results string
			entry   CacheEntry
		)
		if err := rows.Scan(&key, &results, &entry.FetchedAt); err != nil {
			return nil, &StoreLoadError{Store: s.Name(), Err: err}
		}
		if err := json.Unmarshal([]byte(results), &entry.Results); err != nil {
			return nil, &StoreLoadError{Store: s.Name(), Err: fmt.Errorf("decode %q: %w", key, err)}
		}
		if entry.Results == nil {
			entry.Results = []Video{}
		}
		entries[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreLoadError{Store: s.Name(), Err: err}
	}
	return entries, nil
}

func (s *SQLiteStore) Save(ctx context.Context, entries map[string]CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM lookup_entries`); err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO lookup_entries (key, results, fetched_at) VALUES (?, ?, ?)`)
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	defer stmt.Close()

	for key, entry := range entries {
		results := entry.Results
		if results == nil {
			results = []Video{}
		}
		data, err := json.Marshal(results)
		if err != nil {
			return &StoreSaveError{Store: s.Name(), Err: fmt.Errorf("encode %q: %w", key, err)}
		}
		if _, err := stmt.ExecContext(ctx, key, string(data), entry.FetchedAt); err != nil {
			return &StoreSaveError{Store: s.Name(), Err: fmt.Errorf("insert %q: %w", key, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	return nil
}
