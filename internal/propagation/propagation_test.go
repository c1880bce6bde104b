package propagation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mute/internal/config"
	"mute/internal/engine"
	"mute/internal/engine/enginetest"
	"mute/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.MuonCount = 4
	cfg.Energies = []float64{1e3, 1e4}
	cfg.EnergyBins = []float64{500, 5e3, 5e4}
	cfg.SlantDepths = []float64{1, 2, 3}
	return cfg
}

func TestRunTrialAllSurvive(t *testing.T) {
	e := enginetest.New(engine.Settings{}, enginetest.Fraction(0.9))
	a := NewAdapter(e, 2.65)
	got, err := a.RunTrial(context.Background(), 1e5, 1, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, v := range got {
		assert.InDelta(t, engine.MuonMass+0.9e5, v, 1e-6)
	}
}

func TestRunTrialDropsDecays(t *testing.T) {
	e := enginetest.New(engine.Settings{}, enginetest.Pattern(0.5, true, false, false, true, false))
	a := NewAdapter(e, 1)
	got, err := a.RunTrial(context.Background(), 1e4, 3, 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRunTrialBelowRestMassIsDropped(t *testing.T) {
	e := enginetest.New(engine.Settings{}, func(int64, int, engine.State, float64) engine.Track {
		return engine.Track{FinalEnergy: engine.MuonMass, FinalType: engine.InteractionContinuous}
	})
	got, err := NewAdapter(e, 1).RunTrial(context.Background(), 10, 1, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunTrialRejectsInput(t *testing.T) {
	a := NewAdapter(enginetest.New(engine.Settings{}, enginetest.Fraction(1)), 1)
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		e, x float64
		n    int
	}{
		{"zero energy", 0, 1, 1},
		{"negative depth", 1e3, -1, 1},
		{"no muons", 1e3, 1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.RunTrial(ctx, tc.e, tc.x, tc.n)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestRunTrialInitialState(t *testing.T) {
	var seen engine.State
	var dist float64
	e := enginetest.New(engine.Settings{}, func(_ int64, _ int, st engine.State, d float64) engine.Track {
		seen, dist = st, d
		return engine.Track{}
	})
	_, err := NewAdapter(e, 0.997).RunTrial(context.Background(), 1e3, 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1e3+engine.MuonMass, seen.Energy, 1e-9)
	assert.Equal(t, engine.Vec3{0, 0, -1}, seen.Direction)
	assert.InDelta(t, 2e5, dist, 1e-6)
}

func TestRunTrialPropagatesEngineError(t *testing.T) {
	e := enginetest.New(engine.Settings{}, enginetest.Fraction(1)).FailAfter(1)
	_, err := NewAdapter(e, 1).RunTrial(context.Background(), 1e3, 1, 3)
	assert.ErrorIs(t, err, engine.ErrEngine)
}

func TestPoolReusesAndReseeds(t *testing.T) {
	f := enginetest.NewFactory(enginetest.Fraction(1))
	p := NewPool(f.Build, nil)
	cfg := smallConfig()
	ctx := context.Background()

	_, err := p.Trialers(ctx, cfg, 10, 2)
	require.NoError(t, err)
	_, err = p.Trialers(ctx, cfg, 20, 2)
	require.NoError(t, err)
	engines := f.Engines()
	require.Len(t, engines, 2)
	assert.Equal(t, []int64{10, 20}, engines[0].Seeds())
	assert.Equal(t, []int64{11, 21}, engines[1].Seeds())

	cfg.Medium = config.MediumWater
	cfg.Density = config.DefaultDensity(config.MediumWater)
	_, err = p.Trialers(ctx, cfg, 1, 1)
	require.NoError(t, err)
	assert.True(t, engines[0].Closed())
	assert.True(t, engines[1].Closed())
	require.Len(t, f.Engines(), 3)
	assert.Equal(t, config.MediumWater, f.Engines()[2].Settings().Medium)

	require.NoError(t, p.Close())
	assert.True(t, f.Engines()[2].Closed())
}

func TestPoolFactoryError(t *testing.T) {
	f := enginetest.NewFactory(enginetest.Fraction(1))
	boom := errors.New("no engine")
	f.FailWith(boom)
	_, err := NewPool(f.Build, nil).Trialers(context.Background(), smallConfig(), 1, 1)
	assert.ErrorIs(t, err, boom)
}

type recordingSink struct {
	mu    sync.Mutex
	order [][2]int
	sizes []int
	err   error
}

func (s *recordingSink) WriteCell(i, x int, energies []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, [2]int{i, x})
	s.sizes = append(s.sizes, len(energies))
	return s.err
}

func TestSweepFillsEveryCellInOrder(t *testing.T) {
	f := enginetest.NewFactory(enginetest.Fraction(0.9))
	p := NewPool(f.Build, nil)
	defer func() { require.NoError(t, p.Close()) }()
	cfg := smallConfig()
	cfg.Workers = 3
	m := metrics.New()
	sink := &recordingSink{}

	table, err := NewSweeper(p, WithMetrics(m)).Run(context.Background(), cfg, 42, sink)
	require.NoError(t, err)
	ne, nx := table.Shape()
	assert.Equal(t, 2, ne)
	assert.Equal(t, 3, nx)
	for i := range cfg.Energies {
		for x := range cfg.SlantDepths {
			cell := table.Cell(i, x)
			require.Len(t, cell, 4)
			for _, v := range cell {
				assert.InDelta(t, engine.MuonMass+0.9*cfg.Energies[i], v, 1e-6)
			}
		}
	}
	want := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	assert.Equal(t, want, sink.order)
	assert.Equal(t, []int{4, 4, 4, 4, 4, 4}, sink.sizes)
}

func TestSweepIsDeterministicPerSeed(t *testing.T) {
	fn := func(seed int64, call int, st engine.State, _ float64) engine.Track {
		frac := float64((seed+int64(call))%7+1) / 10
		return engine.Track{FinalEnergy: engine.MuonMass + frac*(st.Energy-engine.MuonMass), FinalType: engine.InteractionBrems}
	}
	run := func() [][]float64 {
		p := NewPool(enginetest.NewFactory(fn).Build, nil)
		defer func() { _ = p.Close() }()
		cfg := smallConfig()
		cfg.Workers = 2
		table, err := NewSweeper(p).Run(context.Background(), cfg, 5, nil)
		require.NoError(t, err)
		out := make([][]float64, table.Cells())
		for k := range out {
			out[k] = table.At(k)
		}
		return out
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("sweep not reproducible (-first +second):\n%s", diff)
	}
}

func TestSweepValidatesBeforeEngineWork(t *testing.T) {
	f := enginetest.NewFactory(enginetest.Fraction(1))
	cfg := smallConfig()
	cfg.SlantDepths = []float64{2, 1}
	_, err := NewSweeper(NewPool(f.Build, nil)).Run(context.Background(), cfg, 1, nil)
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Empty(t, f.Engines())
}

func TestSweepStopsOnTrialError(t *testing.T) {
	boom := errors.New("engine lost")
	src := Static(TrialerFunc(func(ctx context.Context, e, x float64, n int) ([]float64, error) {
		if x == 2 {
			return nil, boom
		}
		return []float64{e}, ctx.Err()
	}))
	cfg := smallConfig()
	cfg.Workers = 2
	_, err := NewSweeper(src).Run(context.Background(), cfg, 1, nil)
	assert.ErrorIs(t, err, boom)
}

func TestSweepStopsOnSinkError(t *testing.T) {
	boom := errors.New("disk full")
	src := Static(TrialerFunc(func(ctx context.Context, e, _ float64, _ int) ([]float64, error) {
		return []float64{e}, ctx.Err()
	}))
	sink := &recordingSink{err: boom}
	_, err := NewSweeper(src).Run(context.Background(), smallConfig(), 1, sink)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sink.order, 1)
}

func TestSweepRecordsEmptyCells(t *testing.T) {
	src := Static(TrialerFunc(func(context.Context, float64, float64, int) ([]float64, error) {
		return nil, nil
	}))
	sink := &recordingSink{}
	table, err := NewSweeper(src).Run(context.Background(), smallConfig(), 1, sink)
	require.NoError(t, err)
	assert.Zero(t, table.Total())
	assert.Len(t, sink.order, 6)
}
