// Package sqlite persists the run catalog to a single SQLite state table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"mute/internal/catalog/core"
	"mute/internal/infra/persistence/memory"
)

const runsBucket = "runs"

// Store persists the in-memory catalog as a JSON blob after every Record.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ core.Store = (*Store)(nil)

// NewStore opens or creates the database at path and loads the catalog it holds.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "mute.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, runsBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(payload, &snapshot.Runs); err != nil {
		return fmt.Errorf("decode %s: %w", runsBucket, err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.ExportState().Runs)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, runsBucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", runsBucket, err)
	}
	return tx.Commit()
}

// Record adds r to the catalog and snapshots the catalog to SQLite. A failed
// snapshot leaves the catalog unchanged.
func (s *Store) Record(ctx context.Context, r core.Run) (core.Run, error) {
	rec, err := s.Store.Record(ctx, r)
	if err != nil {
		return core.Run{}, err
	}
	if err := s.persist(ctx); err != nil {
		s.Rollback(rec.ID)
		return core.Run{}, err
	}
	return rec, nil
}

// Driver reports the sqlite driver.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
