package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mute/internal/config"
	"mute/internal/engine/enginetest"
)

const testConfigYAML = `medium: rock
muon_count: 3
energies: [1000, 10000]
energy_bins: [500, 5000, 50000]
slant_depths: [1, 2]
output: true
`

type harness struct {
	dir     string
	cfgPath string
	factory *enginetest.Factory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mute.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfigYAML), 0o600))
	return &harness{
		dir:     dir,
		cfgPath: cfgPath,
		factory: enginetest.NewFactory(enginetest.Fraction(0.5)),
	}
}

// exec runs one invocation with stdin and returns what it printed.
func (h *harness) exec(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		stdin:   strings.NewReader(stdin),
		stdout:  &out,
		stderr:  &out,
		factory: h.factory.Build,
		logger:  zap.NewNop(),
	}
	full := append([]string{"--config", h.cfgPath, "--directory", filepath.Join(h.dir, "data")}, args...)
	err := a.run(context.Background(), full)
	return out.String(), err
}

func TestTensorDeclinedPrintsMessage(t *testing.T) {
	h := newHarness(t)
	out, err := h.exec(t, "n\n", "tensor")
	require.NoError(t, err)
	assert.Contains(t, out, "Would you like to create one (y/n)?")
	assert.Contains(t, out, "Survival probabilities not calculated.")
	assert.Empty(t, h.factory.Engines())
	assert.NoDirExists(t, filepath.Join(h.dir, "data"))
}

func TestTensorConfirmedThenCached(t *testing.T) {
	h := newHarness(t)
	out, err := h.exec(t, "y\ny\ny\n", "tensor", "--seed", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Survival probabilities for rock_2.65_3: 2 x 2 x 2 (computed).")
	require.Len(t, h.factory.Engines(), 1)
	assert.Equal(t, []int64{4}, h.factory.Engines()[0].Seeds())

	key := config.Key{Medium: config.MediumRock, Density: 2.65, MuonCount: 3}
	assert.FileExists(t, filepath.Join(h.dir, "data", key.ShardName(0)))
	assert.FileExists(t, filepath.Join(h.dir, "data", key.TensorName()))

	out, err = h.exec(t, "", "tensor")
	require.NoError(t, err)
	assert.Contains(t, out, "(tensor_loaded)")
	assert.Len(t, h.factory.Engines(), 1)

	out, err = h.exec(t, "", "tensor", "--print")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8)
	// half the kinetic energy survives, which stays in the bin of the surface energy
	assert.Equal(t, "1000.00000000000000 1.00000 1000.00000000000000 1.00000000000000e+00", lines[0])

	out, err = h.exec(t, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "shard")
	assert.Contains(t, out, "tensor")
	assert.Contains(t, out, key.ShardName(0))
	assert.NotContains(t, out, "URL")

	out, err = h.exec(t, "", "runs", "--urls")
	require.NoError(t, err)
	assert.Contains(t, out, "URL")
	assert.Contains(t, out, "file://"+filepath.ToSlash(filepath.Join(h.dir, "data", key.TensorName())))
}

func TestForceCreatesDirectoriesWithoutAsking(t *testing.T) {
	h := newHarness(t)
	metricsPath := filepath.Join(h.dir, "metrics.prom")
	out, err := h.exec(t, "", "--force", "--metrics-file", metricsPath, "calc")
	require.NoError(t, err)
	assert.NotContains(t, out, "(y/n)")
	assert.Contains(t, out, "(computed)")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mute_trials_total")
	assert.Contains(t, string(data), `mute_cache_outcomes_total{outcome="computed"} 1`)
}

func TestPropagateAndLoadShards(t *testing.T) {
	h := newHarness(t)
	out, err := h.exec(t, "", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "Underground energies not loaded.")
	_, err = h.exec(t, "", "runs")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(h.dir, "data"))

	for _, job := range []string{"0", "1"} {
		out, err = h.exec(t, "", "--force", "propagate", "--job", job, "--seed", job)
		require.NoError(t, err)
		assert.Contains(t, out, "12 of 12 muons survived.")
	}
	out, err = h.exec(t, "", "load", "--shards", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 24 underground energies from 2 shards.")

	_, err = h.exec(t, "", "load", "--shards", "3")
	assert.Error(t, err)
}

func TestShardLinesCountWritesAndReads(t *testing.T) {
	h := newHarness(t)
	written := filepath.Join(h.dir, "written.prom")
	_, err := h.exec(t, "", "--force", "--metrics-file", written, "propagate")
	require.NoError(t, err)
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mute_shard_lines_total 4\n")

	read := filepath.Join(h.dir, "read.prom")
	_, err = h.exec(t, "", "--metrics-file", read, "load")
	require.NoError(t, err)
	data, err = os.ReadFile(read)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mute_shard_lines_total 4\n")
	assert.Contains(t, string(data), "mute_shards_merged_total 1\n")
}

func TestGridsReadsStoredTensor(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec(t, "", "--force", "calc")
	require.NoError(t, err)

	out, err := h.exec(t, "", "grids", "rock_2.65_3_Survival_Probabilities.txt")
	require.NoError(t, err)
	assert.Equal(t, "This file has 2 surface energies:\n[1000.0, 10000.0]\n"+
		"This file has 2 slant depths:\n[1.0, 2.0]\n"+
		"This file has 2 underground energies:\n[1000.0, 10000.0]\n", out)

	_, err = h.exec(t, "", "grids", "missing.txt")
	assert.Error(t, err)
}

func TestMediumFlagOverridesConfig(t *testing.T) {
	h := newHarness(t)
	out, err := h.exec(t, "", "--medium", "Water", "--force", "calc")
	require.NoError(t, err)
	assert.Contains(t, out, "water_0.997_3")
	require.Len(t, h.factory.Engines(), 1)
	assert.Equal(t, config.MediumWater, h.factory.Engines()[0].Settings().Medium)

	_, err = h.exec(t, "", "--medium", "lava", "calc")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestSweepWithoutEngine(t *testing.T) {
	h := newHarness(t)
	var out bytes.Buffer
	a := &app{stdin: strings.NewReader(""), stdout: &out, stderr: &out, logger: zap.NewNop()}
	err := a.run(context.Background(), []string{"--config", h.cfgPath, "--directory", h.dir, "--output=false", "--force", "calc"})
	assert.ErrorIs(t, err, errNoEngine)
}
