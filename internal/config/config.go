// Package config holds the global simulation parameters shared by the sweep,
// the shard loader, the tensor builder and the cache coordinator.
package config

import (
	"fmt"
	"math"
	"strings"
)

// Medium identifies the material the muons traverse.
type Medium string

const (
	MediumRock  Medium = "rock"
	MediumWater Medium = "water"
	MediumIce   Medium = "ice"
)

// ParseMedium returns the Medium named by s, ignoring case and surrounding space.
func ParseMedium(s string) (Medium, error) {
	m := Medium(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", &Error{Field: "medium", Reason: fmt.Sprintf("medium type %q not implemented", s)}
	}
	return m, nil
}

// Valid reports whether m is one of the supported media.
func (m Medium) Valid() bool {
	switch m {
	case MediumRock, MediumWater, MediumIce:
		return true
	}
	return false
}

// DefaultDensity returns the reference density of m in g/cm^3, or 0 for an unknown medium.
func DefaultDensity(m Medium) float64 {
	switch m {
	case MediumRock:
		return 2.65
	case MediumWater:
		return 0.997
	case MediumIce:
		return 0.918
	}
	return 0
}

// Config carries every tunable of a run. Energies are in MeV, slant depths in
// km.w.e. and density in g/cm^3.
type Config struct {
	Medium      Medium    `yaml:"medium" env:"MEDIUM"`
	Density     float64   `yaml:"density" env:"DENSITY"`
	MuonCount   int       `yaml:"muon_count" env:"N_MUON"`
	Energies    []float64 `yaml:"energies" env:"ENERGIES"`
	SlantDepths []float64 `yaml:"slant_depths" env:"SLANT_DEPTHS"`
	EnergyBins  []float64 `yaml:"energy_bins" env:"ENERGY_BINS"`
	Output      bool      `yaml:"output" env:"OUTPUT"`
	Verbose     int       `yaml:"verbose" env:"VERBOSE"`
	Directory   string    `yaml:"directory" env:"DIRECTORY"`
	// Workers > 1 runs the sweep on that many independent engines.
	Workers int `yaml:"workers" env:"WORKERS"`

	Engine  EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	Blob    BlobConfig    `yaml:"blob" envPrefix:"BLOB_"`
	Catalog CatalogConfig `yaml:"catalog" envPrefix:"CATALOG_"`
}

// EngineConfig locates the external propagation engine.
type EngineConfig struct {
	// Command is the worker process argv; it speaks the JSON line protocol of internal/engine/proc.
	Command []string `yaml:"command" env:"COMMAND" envSeparator:" "`
}

// BlobConfig selects the artifact storage backend. The filesystem driver is
// rooted at Config.Directory.
type BlobConfig struct {
	Driver string   `yaml:"driver" env:"DRIVER"`
	S3     S3Config `yaml:"s3" envPrefix:"S3_"`
}

// S3Config addresses a bucket holding shards and tensors.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"session_token" env:"SESSION_TOKEN"`
}

// CatalogConfig selects where produced runs are recorded.
type CatalogConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// Key returns the cache key derived from the configuration.
func (c Config) Key() Key {
	return Key{Medium: c.Medium, Density: c.Density, MuonCount: c.MuonCount}
}

// Cells is the number of (energy, slant depth) cells of the sweep grid.
func (c Config) Cells() int {
	return len(c.Energies) * len(c.SlantDepths)
}

// TensorRows is the number of rows of a survival probability file.
func (c Config) TensorRows() int {
	return len(c.Energies) * len(c.SlantDepths) * len(c.Energies)
}

// Clone returns a deep copy so callers may mutate grids without aliasing.
func (c Config) Clone() Config {
	out := c
	out.Energies = append([]float64(nil), c.Energies...)
	out.SlantDepths = append([]float64(nil), c.SlantDepths...)
	out.EnergyBins = append([]float64(nil), c.EnergyBins...)
	out.Engine.Command = append([]string(nil), c.Engine.Command...)
	return out
}

// Validate checks every constraint of the configuration and returns the first violation.
func (c Config) Validate() error {
	if !c.Medium.Valid() {
		return &Error{Field: "medium", Reason: fmt.Sprintf("medium type %q not implemented", string(c.Medium))}
	}
	if !(c.Density > 0) || math.IsInf(c.Density, 0) {
		return &Error{Field: "density", Reason: "must be a positive number"}
	}
	if c.MuonCount < 1 {
		return &Error{Field: "muon_count", Reason: "must be at least 1"}
	}
	if len(c.Energies) == 0 {
		return &Error{Field: "energies", Reason: "grid is empty"}
	}
	for i, e := range c.Energies {
		if !(e > 0) || math.IsInf(e, 0) {
			return &Error{Field: "energies", Reason: fmt.Sprintf("energy %d (%g) must be positive", i, e)}
		}
		if i > 0 && !(e > c.Energies[i-1]) {
			return &Error{Field: "energies", Reason: "grid must be strictly increasing"}
		}
	}
	if len(c.SlantDepths) == 0 {
		return &Error{Field: "slant_depths", Reason: "grid is empty"}
	}
	for i, x := range c.SlantDepths {
		if !(x >= 0) || math.IsInf(x, 0) {
			return &Error{Field: "slant_depths", Reason: fmt.Sprintf("slant depth %d (%g) must be non-negative", i, x)}
		}
		if i > 0 && !(x > c.SlantDepths[i-1]) {
			return &Error{Field: "slant_depths", Reason: "grid must be strictly increasing"}
		}
	}
	if len(c.EnergyBins) != len(c.Energies)+1 {
		return &Error{Field: "energy_bins", Reason: fmt.Sprintf("need %d edges for %d energies, got %d", len(c.Energies)+1, len(c.Energies), len(c.EnergyBins))}
	}
	for i := 1; i < len(c.EnergyBins); i++ {
		if !(c.EnergyBins[i] > c.EnergyBins[i-1]) {
			return &Error{Field: "energy_bins", Reason: "edges must be strictly increasing"}
		}
	}
	if c.Verbose < 0 {
		return &Error{Field: "verbose", Reason: "must be non-negative"}
	}
	if strings.TrimSpace(c.Directory) == "" {
		return &Error{Field: "directory", Reason: "must not be empty"}
	}
	if c.Workers < 1 {
		return &Error{Field: "workers", Reason: "must be at least 1"}
	}
	return nil
}
