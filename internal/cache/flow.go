package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mute/internal/catalog"
	"mute/internal/config"
	"mute/internal/grid"
	"mute/internal/propagation"
	"mute/internal/shard"
	"mute/internal/survival"
)

// The methods below expect c.mu to be held.

func (c *Coordinator) serveTensor(ctx context.Context, cfg config.Config, opts TensorOptions) (Result, error) {
	if opts.Force {
		return c.calculate(ctx, cfg, CalculateOptions{Seed: opts.Seed, Output: cfg.Output, Force: true})
	}
	if c.tensorFor != nil && c.tensorFor.matches(cfg) {
		c.metrics.CacheOutcome(string(OutcomeTensorReused))
		return Result{Tensor: c.tensor, Outcome: OutcomeTensorReused}, nil
	}
	key := cfg.Key()
	exists, err := c.artifacts.TensorExists(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if exists {
		c.logger.Debug(fmt.Sprintf("Loading survival probabilities from %s.", key.TensorName()))
		t, err := c.readTensor(ctx, cfg)
		switch {
		case err == nil:
			c.logger.Debug("Loaded survival probabilities.")
			s := snapshotOf(cfg)
			c.tensorFor, c.tensor = &s, t
			c.metrics.CacheOutcome(string(OutcomeTensorLoaded))
			return Result{Tensor: t, Outcome: OutcomeTensorLoaded}, nil
		case errors.Is(err, grid.ErrStructuralMismatch):
			c.logger.Warn("stored survival probabilities do not match the configured grids", zap.Error(err))
		default:
			return Result{}, err
		}
	}
	return c.calculate(ctx, cfg, CalculateOptions{Seed: opts.Seed, Output: cfg.Output})
}

func (c *Coordinator) readTensor(ctx context.Context, cfg config.Config) (*survival.Tensor, error) {
	rc, err := c.artifacts.OpenTensor(ctx, cfg.Key())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	t, err := survival.Parse(rc, len(cfg.Energies), len(cfg.SlantDepths))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Key().TensorName(), err)
	}
	return t, nil
}

func (c *Coordinator) calculate(ctx context.Context, cfg config.Config, opts CalculateOptions) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	var (
		tbl     *grid.Table
		outcome Outcome
		err     error
	)
	switch {
	case opts.Force:
		outcome = OutcomeComputed
		tbl, err = c.propagate(ctx, cfg, PropagateOptions{Seed: opts.Seed, Output: opts.Output, Force: true})
	case c.rawFor != nil && c.rawFor.matches(cfg):
		outcome = OutcomeRawReused
		tbl = c.raw
	default:
		tbl, outcome, err = c.acquireRaw(ctx, cfg, opts)
	}
	if err != nil {
		return Result{}, err
	}
	if tbl == nil {
		c.logger.Info("Underground energies not calculated.")
		c.logger.Info("Survival probabilities not calculated.")
		c.metrics.CacheOutcome(string(OutcomeDeclined))
		return Result{Outcome: OutcomeDeclined}, nil
	}

	c.logger.Debug("Calculating survival probabilities.")
	t, err := survival.Build(tbl, cfg.EnergyBins, cfg.MuonCount)
	if err != nil {
		return Result{}, err
	}
	c.logger.Debug("Finished calculating survival probabilities.")
	if opts.Output {
		if err := c.writeTensor(ctx, cfg, t, opts.Force); err != nil {
			return Result{}, err
		}
	}
	s := snapshotOf(cfg)
	c.tensorFor, c.tensor = &s, t
	c.metrics.CacheOutcome(string(outcome))
	return Result{Tensor: t, Table: tbl, Outcome: outcome}, nil
}

// acquireRaw loads shard 0 when it exists and otherwise sweeps if confirmed.
// A refusal returns a nil table and no error.
func (c *Coordinator) acquireRaw(ctx context.Context, cfg config.Config, opts CalculateOptions) (*grid.Table, Outcome, error) {
	exists, err := c.artifacts.ShardExists(ctx, cfg.Key(), 0)
	if err != nil {
		return nil, "", err
	}
	if exists {
		tbl, err := c.loadRaw(ctx, cfg, 1)
		return tbl, OutcomeRawLoaded, err
	}
	ok, err := c.confirm.Confirm(ctx, AskSweep)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, OutcomeDeclined, nil
	}
	tbl, err := c.propagate(ctx, cfg, PropagateOptions{Seed: opts.Seed, Output: opts.Output})
	return tbl, OutcomeComputed, err
}

func (c *Coordinator) propagate(ctx context.Context, cfg config.Config, opts PropagateOptions) (*grid.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Job < 0 {
		return nil, &config.Error{Field: "job", Reason: "must be non-negative"}
	}
	key := cfg.Key()
	var w *shard.Writer
	var sink propagation.CellSink
	if opts.Output {
		if err := c.ensureDir(ctx, config.ShardDir, opts.Force); err != nil {
			return nil, err
		}
		dst, err := c.artifacts.CreateShard(ctx, key, opts.Job)
		if err != nil {
			return nil, fmt.Errorf("create shard: %w", err)
		}
		w = shard.NewWriter(dst)
		sink = w
	}
	tbl, err := c.sweeper.Run(ctx, cfg, opts.Seed, sink)
	if w != nil {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close shard: %w", cerr)
		}
	}
	if err != nil {
		return nil, err
	}
	c.keepRaw(cfg, tbl)
	if w != nil {
		name := key.ShardName(opts.Job)
		c.logger.Debug(fmt.Sprintf("Underground energies written to %s.", name))
		c.metrics.ShardLines(w.Lines())
		c.record(ctx, catalog.ShardRun(key, opts.Job, opts.Seed, name, w.Lines(), w.Survivors()))
	}
	return tbl, nil
}

func (c *Coordinator) loadRaw(ctx context.Context, cfg config.Config, shards int) (*grid.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ok, err := c.artifacts.DirExists(ctx, config.ShardDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Info(fmt.Sprintf("%s does not exist. Underground energies not loaded.", config.ShardDir))
		return nil, fmt.Errorf("%w: %s", shard.ErrNoShards, config.ShardDir)
	}
	m, err := c.loader.LoadAndMerge(ctx, cfg, shards)
	if errors.Is(err, shard.ErrNoShards) {
		c.logger.Info(fmt.Sprintf("%s does not exist. Underground energies not loaded.", cfg.Key().ShardName(0)))
	}
	if err != nil {
		return nil, err
	}
	c.keepRaw(cfg, m.Table)
	return m.Table, nil
}

// keepRaw replaces the raw table; a tensor built from older data goes with it.
func (c *Coordinator) keepRaw(cfg config.Config, tbl *grid.Table) {
	s := snapshotOf(cfg)
	c.rawFor, c.raw = &s, tbl
	c.tensorFor, c.tensor = nil, nil
}

func (c *Coordinator) writeTensor(ctx context.Context, cfg config.Config, t *survival.Tensor, force bool) error {
	if err := c.ensureDir(ctx, config.TensorDir, force); err != nil {
		return err
	}
	key := cfg.Key()
	w, err := c.artifacts.CreateTensor(ctx, key)
	if err != nil {
		return fmt.Errorf("create tensor file: %w", err)
	}
	if err := survival.Write(w, t, cfg.Energies, cfg.SlantDepths); err != nil {
		_ = w.Close()
		return fmt.Errorf("write tensor file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close tensor file: %w", err)
	}
	c.logger.Debug(fmt.Sprintf("Survival probabilities written to %s.", key.TensorName()))
	c.record(ctx, catalog.TensorRun(key, key.TensorName(), t.Len()))
	return nil
}

// ensureDir asks before creating a missing output directory unless force is set.
func (c *Coordinator) ensureDir(ctx context.Context, dir string, force bool) error {
	exists, err := c.artifacts.DirExists(ctx, dir)
	if err != nil || exists {
		return err
	}
	create := force
	if !create {
		if create, err = c.confirm.Confirm(ctx, fmt.Sprintf(AskDirectory, dir)); err != nil {
			return err
		}
	}
	return c.artifacts.EnsureDir(ctx, dir, create)
}

// record adds r to the catalog. The artifact is already written, so a catalog
// failure is logged and not returned.
func (c *Coordinator) record(ctx context.Context, r catalog.Run) {
	if c.catalog == nil {
		return
	}
	if _, err := c.catalog.Record(ctx, r); err != nil {
		c.logger.Warn("record run", zap.String("blob_key", r.BlobKey), zap.Error(err))
	}
}
