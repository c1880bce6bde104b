package propagation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mute/internal/config"
	"mute/internal/grid"
	"mute/internal/metrics"
)

// CellSink receives finished cells in row-major order, one call per cell,
// including cells without survivors.
type CellSink interface {
	WriteCell(i, x int, energies []float64) error
}

// Sweeper runs RunTrial over every grid cell.
type Sweeper struct {
	source  Source
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the sweep logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records per-cell counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper returns a sweeper drawing trialers from source.
func NewSweeper(source Source, opts ...Option) *Sweeper {
	s := &Sweeper{
		source: source,
		logger: zap.NewNop(),
		tracer: otel.Tracer("mute/internal/propagation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps cfg's grid and returns a fresh survival table. Cells are split
// statically across cfg.Workers trialers (cell k goes to worker k mod W) so a
// given seed always yields the same table; sink, when non-nil, still sees the
// cells in row-major order. The config is validated before any engine work.
func (s *Sweeper) Run(ctx context.Context, cfg config.Config, seed int64, sink CellSink) (*grid.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ne, nx := len(cfg.Energies), len(cfg.SlantDepths)
	cells := cfg.Cells()
	workers := cfg.Workers
	if workers > cells {
		workers = cells
	}

	ctx, span := s.tracer.Start(ctx, "propagation.sweep", trace.WithAttributes(
		attribute.String("mute.medium", string(cfg.Medium)),
		attribute.Float64("mute.density", cfg.Density),
		attribute.Int("mute.muon_count", cfg.MuonCount),
		attribute.Int("mute.cells", cells),
		attribute.Int("mute.workers", workers),
		attribute.Int64("mute.seed", seed),
	))
	defer span.End()

	trialers, err := s.source.Trialers(ctx, cfg, seed, workers)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.logger.Info(fmt.Sprintf("Propagating %d muons.", cfg.MuonCount*cells),
		zap.String("medium", string(cfg.Medium)), zap.Float64("density", cfg.Density), zap.Int("workers", workers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float64, cells)
	done := make(chan int, cells)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		t := trialers[w]
		g.Go(func() error {
			for k := w; k < cells; k += workers {
				i, x := k/nx, k%nx
				start := time.Now()
				vals, err := t.RunTrial(gctx, cfg.Energies[i], cfg.SlantDepths[x], cfg.MuonCount)
				if err != nil {
					return fmt.Errorf("propagate cell (%d, %d): %w", i, x, err)
				}
				s.metrics.ObserveCell(string(cfg.Medium), cfg.MuonCount, len(vals), time.Since(start))
				results[k] = vals
				done <- k
			}
			return nil
		})
	}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(done)
	}()

	table := grid.NewTable(ne, nx)
	ready := make([]bool, cells)
	next := 0
	var sinkErr error
	for k := range done {
		ready[k] = true
		for next < cells && ready[next] {
			i, x := next/nx, next%nx
			table.Extend(i, x, results[next]...)
			if sink != nil && sinkErr == nil {
				if sinkErr = sink.WriteCell(i, x, results[next]); sinkErr != nil {
					cancel()
				}
			}
			results[next] = nil
			if x == nx-1 {
				s.logger.Debug("energy row complete", zap.Int("energy_index", i), zap.Float64("energy_mev", cfg.Energies[i]))
			}
			next++
		}
	}
	err = <-waitErr
	if sinkErr != nil {
		err = sinkErr
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.logger.Info("Finished propagation.", zap.Int("survivors", table.Total()))
	span.SetAttributes(attribute.Int("mute.survivors", table.Total()))
	return table, nil
}
