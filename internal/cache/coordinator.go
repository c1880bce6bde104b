// Package cache decides whether survival probabilities can be served from
// memory or from stored artifacts, or must be recomputed from a fresh sweep.
package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mute/internal/artifact"
	"mute/internal/blob"
	"mute/internal/catalog"
	"mute/internal/config"
	"mute/internal/grid"
	"mute/internal/metrics"
	"mute/internal/prompt"
	"mute/internal/propagation"
	"mute/internal/shard"
	"mute/internal/survival"
)

// State is what the coordinator holds for the current configuration.
type State int

const (
	NoData State = iota
	RawLoaded
	TensorReady
)

func (s State) String() string {
	switch s {
	case NoData:
		return "no_data"
	case RawLoaded:
		return "raw_loaded"
	case TensorReady:
		return "tensor_ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome says how a result was obtained.
type Outcome string

const (
	OutcomeTensorReused Outcome = "tensor_reused"
	OutcomeTensorLoaded Outcome = "tensor_loaded"
	OutcomeRawReused    Outcome = "raw_reused"
	OutcomeRawLoaded    Outcome = "raw_loaded"
	OutcomeComputed     Outcome = "computed"
	OutcomeDeclined     Outcome = "declined"
)

// Questions put to the Confirmer.
const (
	AskSweep     = "No underground energy file currently exists for the set lab, medium, or number of muons. Would you like to create one (y/n)?: "
	AskDirectory = "%s does not exist. Would you like to create it (y/n)?: "
)

// Result is a survival tensor and how it was obtained. Table is the raw table
// the tensor was built from and is nil when the tensor came from a file. A
// declined computation yields a Result with a nil Tensor and no error.
type Result struct {
	Tensor  *survival.Tensor
	Table   *grid.Table
	Outcome Outcome
}

// Missing reports whether nothing was produced.
func (r Result) Missing() bool { return r.Tensor == nil }

// PropagateOptions controls a sweep.
type PropagateOptions struct {
	Seed int64
	// Job names the shard written when Output is set.
	Job    int
	Output bool
	// Force creates missing output directories without asking.
	Force bool
}

// CalculateOptions controls Calculate.
type CalculateOptions struct {
	Seed   int64
	Output bool
	// Force sweeps even when raw data is available and never asks.
	Force bool
}

// TensorOptions controls Tensor.
type TensorOptions struct {
	// Seed is used when a sweep turns out to be necessary.
	Seed int64
	// Force recomputes from a fresh sweep without consulting any cache.
	Force bool
}

// snapshot pins data to the configuration it was produced for.
type snapshot struct {
	key         config.Key
	energies    []float64
	slantDepths []float64
	energyBins  []float64
}

func snapshotOf(cfg config.Config) snapshot {
	c := cfg.Clone()
	return snapshot{key: c.Key(), energies: c.Energies, slantDepths: c.SlantDepths, energyBins: c.EnergyBins}
}

func (s snapshot) matches(cfg config.Config) bool {
	return s.key == cfg.Key() &&
		slices.Equal(s.energies, cfg.Energies) &&
		slices.Equal(s.slantDepths, cfg.SlantDepths) &&
		slices.Equal(s.energyBins, cfg.EnergyBins)
}

// Coordinator owns the in-memory raw table and tensor and the policy that
// refills them. It is safe for concurrent use; operations are serialized.
type Coordinator struct {
	mu        sync.Mutex
	cfg       config.Config
	artifacts *artifact.Store
	sweeper   *propagation.Sweeper
	loader    *shard.Loader
	catalog   catalog.Store
	confirm   prompt.Confirmer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	rawFor    *snapshot
	raw       *grid.Table
	tensorFor *snapshot
	tensor    *survival.Tensor
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCatalog records every written shard and tensor in c.
func WithCatalog(c catalog.Store) Option {
	return func(co *Coordinator) { co.catalog = c }
}

// WithConfirmer sets who is asked before a sweep or a directory creation.
// Without one every question is answered no.
func WithConfirmer(c prompt.Confirmer) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.confirm = c
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithMetrics counts cache outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// New returns a coordinator with no data for cfg.
func New(cfg config.Config, artifacts *artifact.Store, sweeper *propagation.Sweeper, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	co := &Coordinator{
		cfg:       cfg.Clone(),
		artifacts: artifacts,
		sweeper:   sweeper,
		confirm:   prompt.Fixed(false),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("mute/internal/cache"),
	}
	for _, opt := range opts {
		opt(co)
	}
	co.loader = shard.NewLoader(artifacts, blob.ErrNotFound, shard.WithLogger(co.logger), shard.WithMetrics(co.metrics))
	return co, nil
}

// Config returns a copy of the current configuration.
func (c *Coordinator) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// Configure replaces the configuration. Data produced for another key or
// other grids stops being served but is kept until replaced.
func (c *Coordinator) Configure(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.Key() != c.cfg.Key() {
		c.logger.Debug("cache key changed", zap.Stringer("from", c.cfg.Key()), zap.Stringer("to", cfg.Key()))
	}
	c.cfg = cfg.Clone()
	return nil
}

// State reports what is held for the current configuration.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.tensorFor != nil && c.tensorFor.matches(c.cfg):
		return TensorReady
	case c.rawFor != nil && c.rawFor.matches(c.cfg):
		return RawLoaded
	}
	return NoData
}

// Propagate runs a sweep for the current configuration and keeps its table.
// With Output set the table is streamed to shard opts.Job as it is produced.
func (c *Coordinator) Propagate(ctx context.Context, opts PropagateOptions) (*grid.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.propagate(ctx, c.cfg, opts)
}

// LoadRaw merges shards 0..shards-1 of the current key and keeps the result.
// A missing shard directory or shard 0 is reported as shard.ErrNoShards.
func (c *Coordinator) LoadRaw(ctx context.Context, shards int) (*grid.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadRaw(ctx, c.cfg, shards)
}

// Calculate builds the tensor from raw data, sweeping when none is available
// and the Confirmer agrees.
func (c *Coordinator) Calculate(ctx context.Context, opts CalculateOptions) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calculate(ctx, c.cfg, opts)
}

// Tensor returns the survival tensor of the current configuration: from
// memory, then from its file, then by Calculate.
func (c *Coordinator) Tensor(ctx context.Context, opts TensorOptions) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.cfg
	ctx, span := c.tracer.Start(ctx, "cache.tensor", trace.WithAttributes(
		attribute.String("mute.key", cfg.Key().String()),
		attribute.Bool("mute.force", opts.Force),
	))
	defer span.End()

	res, err := c.serveTensor(ctx, cfg, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.String("mute.outcome", string(res.Outcome)))
	return res, nil
}
