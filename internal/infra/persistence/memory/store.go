// Package memory provides the in-memory run catalog that the SQL backends
// snapshot into their state tables.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mute/internal/catalog/core"
)

// Snapshot is the serializable catalog state.
type Snapshot struct {
	Runs []core.Run `json:"runs"`
}

// Store keeps runs in insertion order.
type Store struct {
	mu   sync.RWMutex
	runs []core.Run
	now  func() time.Time
}

var _ core.Store = (*Store)(nil)

// NewStore returns an empty catalog.
func NewStore() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// Driver reports the memory driver.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Record validates r, assigns an ID and timestamp when missing and appends it.
func (s *Store) Record(_ context.Context, r core.Run) (core.Run, error) {
	if err := validate(r); err != nil {
		return core.Run{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	for _, existing := range s.runs {
		if existing.ID == r.ID {
			return core.Run{}, fmt.Errorf("%w: duplicate id %s", core.ErrInvalidRun, r.ID)
		}
	}
	s.runs = append(s.runs, r)
	return r, nil
}

// List returns the runs matching f, oldest first.
func (s *Store) List(_ context.Context, f core.Filter) ([]core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ExportState returns a copy of the catalog.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Runs: append([]core.Run(nil), s.runs...)}
}

// ImportState replaces the catalog with snap.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append([]core.Run(nil), snap.Runs...)
}

// Rollback drops the run with id, undoing a Record whose snapshot failed to persist.
func (s *Store) Rollback(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == id {
			s.runs = append(s.runs[:i], s.runs[i+1:]...)
			return
		}
	}
}

func validate(r core.Run) error {
	switch r.Kind {
	case core.KindShard, core.KindTensor:
	default:
		return fmt.Errorf("%w: unknown kind %q", core.ErrInvalidRun, r.Kind)
	}
	switch {
	case !r.Medium.Valid():
		return fmt.Errorf("%w: medium %q", core.ErrInvalidRun, r.Medium)
	case r.BlobKey == "":
		return fmt.Errorf("%w: blob key is required", core.ErrInvalidRun)
	case r.MuonCount < 1:
		return fmt.Errorf("%w: muon count must be at least 1", core.ErrInvalidRun)
	case r.JobIndex < 0 || r.Lines < 0 || r.Survivors < 0:
		return fmt.Errorf("%w: negative counter", core.ErrInvalidRun)
	}
	return nil
}
