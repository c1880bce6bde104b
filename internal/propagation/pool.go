package propagation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mute/internal/config"
	"mute/internal/engine"
)

// Source hands out one Trialer per sweep worker, seeded for the sweep.
type Source interface {
	Trialers(ctx context.Context, cfg config.Config, seed int64, workers int) ([]Trialer, error)
}

// Pool keeps engines alive across sweeps. Engines are built once per settings
// and worker slot; a change of medium or density rebuilds them.
type Pool struct {
	factory engine.Factory
	logger  *zap.Logger

	mu       sync.Mutex
	settings engine.Settings
	engines  []engine.Engine
}

// NewPool returns a pool building engines with factory.
func NewPool(factory engine.Factory, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{factory: factory, logger: logger}
}

// Trialers implements Source. Worker w is seeded with seed+w so a single worker
// reproduces the sequential stream.
func (p *Pool) Trialers(ctx context.Context, cfg config.Config, seed int64, workers int) ([]Trialer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	settings := engine.SettingsFor(cfg)
	if len(p.engines) > 0 && settings != p.settings {
		p.logger.Debug("engine settings changed; rebuilding propagators",
			zap.String("medium", string(settings.Medium)), zap.Float64("density", settings.Density))
		if err := p.closeLocked(); err != nil {
			return nil, err
		}
	}
	p.settings = settings
	for len(p.engines) < workers {
		p.logger.Debug("creating propagator", zap.Int("worker", len(p.engines)))
		e, err := p.factory(ctx, settings)
		if err != nil {
			return nil, fmt.Errorf("create propagator: %w", err)
		}
		p.engines = append(p.engines, e)
	}
	out := make([]Trialer, workers)
	for w := 0; w < workers; w++ {
		if err := p.engines[w].SetSeed(seed + int64(w)); err != nil {
			return nil, fmt.Errorf("seed propagator %d: %w", w, err)
		}
		out[w] = NewAdapter(p.engines[w], cfg.Density)
	}
	return out, nil
}

// Close releases every engine.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Pool) closeLocked() error {
	var errs []error
	for _, e := range p.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.engines = nil
	return errors.Join(errs...)
}

// Static is a Source handing the same Trialer to every worker; it must be safe
// for concurrent use when workers > 1.
func Static(t Trialer) Source {
	return staticSource{t: t}
}

type staticSource struct{ t Trialer }

func (s staticSource) Trialers(_ context.Context, _ config.Config, _ int64, workers int) ([]Trialer, error) {
	out := make([]Trialer, workers)
	for w := range out {
		out[w] = s.t
	}
	return out, nil
}
