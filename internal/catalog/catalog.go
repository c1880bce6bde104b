// Package catalog records the shards and tensors produced for each cache key
// and selects a persistence backend from configuration. It is the only
// package allowed to import internal/infra/persistence.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"mute/internal/catalog/core"
	"mute/internal/config"
	"mute/internal/infra/persistence/memory"
	"mute/internal/infra/persistence/postgres"
)

type (
	// Run records one produced artifact.
	Run = core.Run
	// Kind says which artifact a run produced.
	Kind = core.Kind
	// Filter narrows List.
	Filter = core.Filter
	// Store records and lists runs.
	Store = core.Store
	// Driver names a catalog backend.
	Driver = core.Driver
)

const (
	KindShard  = core.KindShard
	KindTensor = core.KindTensor

	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

// ErrInvalidRun is returned for runs that cannot be recorded.
var ErrInvalidRun = core.ErrInvalidRun

// DefaultSQLiteName is the database file created below the artifact directory
// when no sqlite path is configured.
const DefaultSQLiteName = "mute.db"

// Open selects a Store from cfg.Catalog. The sqlite database is created on
// the first recorded run, so commands that only read leave the directory alone.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	driver := Driver(cfg.Catalog.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		path := cfg.Catalog.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Directory, DefaultSQLiteName)
		}
		return &deferredSQLite{path: path}, nil
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.Catalog.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown catalog driver %s", driver)
	}
}

// ShardRun describes shard job of key written under blobKey.
func ShardRun(key config.Key, job int, seed int64, blobKey string, lines, survivors int) Run {
	return Run{
		Kind:      KindShard,
		Medium:    key.Medium,
		Density:   key.Density,
		MuonCount: key.MuonCount,
		JobIndex:  job,
		Seed:      seed,
		BlobKey:   blobKey,
		Lines:     lines,
		Survivors: survivors,
	}
}

// TensorRun describes the survival probability file of key written under blobKey.
func TensorRun(key config.Key, blobKey string, rows int) Run {
	return Run{
		Kind:      KindTensor,
		Medium:    key.Medium,
		Density:   key.Density,
		MuonCount: key.MuonCount,
		BlobKey:   blobKey,
		Lines:     rows,
	}
}
