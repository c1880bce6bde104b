// Package core defines the run catalog contract shared by the catalog facade
// and its persistence backends.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mute/internal/config"
)

// Driver names a catalog backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Kind says which artifact a run produced.
type Kind string

const (
	KindShard  Kind = "shard"
	KindTensor Kind = "tensor"
)

// ErrInvalidRun is returned when a run cannot be recorded as given.
var ErrInvalidRun = errors.New("invalid run")

// Run records one artifact written for a cache key. Lines is the number of
// shard lines or tensor rows; Survivors is only set for shards.
type Run struct {
	ID        uuid.UUID     `json:"id"`
	Kind      Kind          `json:"kind"`
	Medium    config.Medium `json:"medium"`
	Density   float64       `json:"density"`
	MuonCount int           `json:"muon_count"`
	JobIndex  int           `json:"job_index"`
	Seed      int64         `json:"seed"`
	BlobKey   string        `json:"blob_key"`
	Lines     int           `json:"lines"`
	Survivors int           `json:"survivors"`
	CreatedAt time.Time     `json:"created_at"`
}

// Key returns the cache key the run was produced for.
func (r Run) Key() config.Key {
	return config.Key{Medium: r.Medium, Density: r.Density, MuonCount: r.MuonCount}
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Key  *config.Key
	Kind Kind
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Run) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Key != nil && r.Key() != *f.Key {
		return false
	}
	return true
}

// Store records and lists runs.
type Store interface {
	// Record stores r and returns it with ID and CreatedAt filled in when they were zero.
	Record(ctx context.Context, r Run) (Run, error)
	// List returns the matching runs oldest first.
	List(ctx context.Context, f Filter) ([]Run, error)
	Driver() Driver
	Close() error
}
