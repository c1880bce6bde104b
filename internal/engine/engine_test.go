package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mute/internal/config"
)

func TestSettingsFor(t *testing.T) {
	cfg := config.Default()
	cfg.Medium = config.MediumIce
	cfg.Density = 0.918
	s := SettingsFor(cfg)
	assert.Equal(t, Settings{
		Particle:    "MuMinus",
		Medium:      config.MediumIce,
		Density:     0.918,
		Geometry:    Geometry{Radius: 1e7},
		Interpolate: true,
		Cuts:        EnergyCuts{ECut: 500, VCut: 0.05, ContinuousRandomization: true},
	}, s)
}

func TestSettingsIgnoreGrids(t *testing.T) {
	a := config.Default()
	b := a.Clone()
	b.MuonCount = 5
	b.Energies = []float64{1, 2}
	assert.Equal(t, SettingsFor(a), SettingsFor(b))
}
