// Package propagation runs muons through the external engine: the single-trial
// adapter, the engine pool, and the sweep over the energy x slant-depth grid.
package propagation

import (
	"context"
	"fmt"

	"mute/internal/config"
	"mute/internal/engine"
)

// cmPerKmWE converts km.w.e. to cm of water; dividing by the medium density
// gives the physical path length.
const cmPerKmWE = 1e5 * 0.997

// Trialer runs the muon_count trials of one grid cell and returns the
// underground energies of the survivors.
type Trialer interface {
	RunTrial(ctx context.Context, surfaceEnergy, slantDepth float64, muonCount int) ([]float64, error)
}

// TrialerFunc adapts a function to Trialer.
type TrialerFunc func(ctx context.Context, surfaceEnergy, slantDepth float64, muonCount int) ([]float64, error)

// RunTrial implements Trialer.
func (f TrialerFunc) RunTrial(ctx context.Context, surfaceEnergy, slantDepth float64, muonCount int) ([]float64, error) {
	return f(ctx, surfaceEnergy, slantDepth, muonCount)
}

// Adapter drives one engine. It does not persist anything.
type Adapter struct {
	engine  engine.Engine
	density float64
}

// NewAdapter wraps e for a medium of the given density (g/cm^3).
func NewAdapter(e engine.Engine, density float64) *Adapter {
	return &Adapter{engine: e, density: density}
}

// Distance converts a slant depth in km.w.e. into engine centimetres.
func (a *Adapter) Distance(slantDepth float64) float64 {
	return slantDepth * cmPerKmWE / a.density
}

// Survived reports whether a track counts as a surviving muon: energy left
// above the rest mass and a terminal process other than decay.
func Survived(tr engine.Track) bool {
	return tr.FinalEnergy > engine.MuonMass && tr.FinalType != engine.InteractionDecay
}

// RunTrial propagates muonCount muons with kinetic energy surfaceEnergy (MeV)
// straight down through slantDepth km.w.e. and returns the final energies of
// those that survived. Dropped trials are the expected outcome, not an error.
func (a *Adapter) RunTrial(ctx context.Context, surfaceEnergy, slantDepth float64, muonCount int) ([]float64, error) {
	if !(surfaceEnergy > 0) {
		return nil, &config.Error{Field: "surface_energy", Reason: fmt.Sprintf("%g must be positive", surfaceEnergy)}
	}
	if !(slantDepth >= 0) {
		return nil, &config.Error{Field: "slant_depth", Reason: fmt.Sprintf("%g must be non-negative", slantDepth)}
	}
	if muonCount < 1 {
		return nil, &config.Error{Field: "muon_count", Reason: "must be at least 1"}
	}
	initial := engine.State{
		Energy:    surfaceEnergy + engine.MuonMass,
		Position:  engine.Vec3{0, 0, 0},
		Direction: engine.Vec3{0, 0, -1},
	}
	distance := a.Distance(slantDepth)
	survivors := make([]float64, 0, muonCount)
	for n := 0; n < muonCount; n++ {
		tr, err := a.engine.Propagate(ctx, initial, distance)
		if err != nil {
			return nil, err
		}
		if Survived(tr) {
			survivors = append(survivors, tr.FinalEnergy)
		}
	}
	return survivors, nil
}
