package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"mute/internal/infra/persistence/sqlite"
)

// deferredSQLite opens the sqlite catalog on the first Record. Until then a
// missing database file lists as empty and nothing is created on disk.
type deferredSQLite struct {
	mu    sync.Mutex
	path  string
	store *sqlite.Store
}

func (d *deferredSQLite) open(create bool) (*sqlite.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store != nil {
		return d.store, nil
	}
	if !create {
		if _, err := os.Stat(d.path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	}
	s, err := sqlite.NewStore(d.path)
	if err != nil {
		return nil, err
	}
	d.store = s
	return s, nil
}

func (d *deferredSQLite) Record(ctx context.Context, r Run) (Run, error) {
	s, err := d.open(true)
	if err != nil {
		return Run{}, err
	}
	return s.Record(ctx, r)
}

func (d *deferredSQLite) List(ctx context.Context, f Filter) ([]Run, error) {
	s, err := d.open(false)
	if err != nil || s == nil {
		return nil, err
	}
	return s.List(ctx, f)
}

func (d *deferredSQLite) Driver() Driver { return DriverSQLite }

func (d *deferredSQLite) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
