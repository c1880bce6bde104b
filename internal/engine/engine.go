// Package engine defines the narrow contract through which the sweep talks to
// the external particle-propagation engine. The physics lives behind it.
package engine

import (
	"context"
	"errors"

	"mute/internal/config"
)

// MuonMass is the muon rest mass in MeV.
const MuonMass = 105.6583745

// ErrEngine wraps failures reported by an engine implementation.
var ErrEngine = errors.New("propagation engine")

// Vec3 is a cartesian vector in engine units (cm).
type Vec3 [3]float64

// InteractionType tags the last stochastic or continuous process of a track.
type InteractionType string

const (
	InteractionDecay        InteractionType = "decay"
	InteractionContinuous   InteractionType = "continuous_energy_loss"
	InteractionIonization   InteractionType = "ioniz"
	InteractionBrems        InteractionType = "brems"
	InteractionPairProd     InteractionType = "epair"
	InteractionPhotonuclear InteractionType = "photonuclear"
)

// State is the initial state of a particle: total energy in MeV, position and direction.
type State struct {
	Energy    float64 `json:"energy"`
	Position  Vec3    `json:"position"`
	Direction Vec3    `json:"direction"`
}

// Track is the outcome of one propagation.
type Track struct {
	FinalEnergy float64         `json:"energy"`
	FinalType   InteractionType `json:"type"`
}

// Engine propagates one particle at a time. Implementations are not safe for
// concurrent use; give each worker its own.
type Engine interface {
	SetSeed(seed int64) error
	Propagate(ctx context.Context, initial State, distance float64) (Track, error)
	Close() error
}

// Factory constructs an engine configured with settings.
type Factory func(ctx context.Context, settings Settings) (Engine, error)

// EnergyCuts mirrors the engine's energy cut settings.
type EnergyCuts struct {
	ECut                    float64 `json:"ecut"`
	VCut                    float64 `json:"vcut"`
	ContinuousRandomization bool    `json:"cont_rand"`
}

// Geometry is the spherical detector volume the particle is propagated in.
type Geometry struct {
	Radius      float64 `json:"radius"`
	InnerRadius float64 `json:"inner_radius"`
}

// Settings is everything an engine needs at construction time.
type Settings struct {
	Particle    string        `json:"particle"`
	Medium      config.Medium `json:"medium"`
	Density     float64       `json:"density"`
	Geometry    Geometry      `json:"geometry"`
	Interpolate bool          `json:"interpolate"`
	Cuts        EnergyCuts    `json:"cuts"`
}

// SettingsFor derives the engine settings of cfg.
func SettingsFor(cfg config.Config) Settings {
	return Settings{
		Particle:    "MuMinus",
		Medium:      cfg.Medium,
		Density:     cfg.Density,
		Geometry:    Geometry{Radius: 1e7},
		Interpolate: true,
		Cuts:        EnergyCuts{ECut: 500, VCut: 0.05, ContinuousRandomization: true},
	}
}
