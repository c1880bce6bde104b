// Package enginetest provides deterministic engines for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"mute/internal/engine"
)

// PropagateFunc computes the track of one propagation. call counts propagations
// since the last SetSeed, starting at zero.
type PropagateFunc func(seed int64, call int, initial engine.State, distance float64) engine.Track

// Engine is a scripted engine.Engine that records how it is used.
type Engine struct {
	mu       sync.Mutex
	fn       PropagateFunc
	settings engine.Settings
	seed     int64
	calls    int
	total    int
	seeds    []int64
	closed   bool
	failAt   int
}

// New returns an engine answering with fn.
func New(settings engine.Settings, fn PropagateFunc) *Engine {
	return &Engine{fn: fn, settings: settings, failAt: -1}
}

// FailAfter makes the n-th propagation (zero based, counted across seeds) fail.
func (e *Engine) FailAfter(n int) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAt = n
	return e
}

// SetSeed implements engine.Engine.
func (e *Engine) SetSeed(seed int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seed = seed
	e.calls = 0
	e.seeds = append(e.seeds, seed)
	return nil
}

// Propagate implements engine.Engine.
func (e *Engine) Propagate(ctx context.Context, initial engine.State, distance float64) (engine.Track, error) {
	if err := ctx.Err(); err != nil {
		return engine.Track{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.Track{}, fmt.Errorf("%w: engine closed", engine.ErrEngine)
	}
	if e.failAt >= 0 && e.total == e.failAt {
		e.total++
		return engine.Track{}, fmt.Errorf("%w: scripted failure", engine.ErrEngine)
	}
	tr := e.fn(e.seed, e.calls, initial, distance)
	e.calls++
	e.total++
	return tr, nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Settings returns the settings the engine was built with.
func (e *Engine) Settings() engine.Settings { return e.settings }

// Seeds returns every seed set so far.
func (e *Engine) Seeds() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.seeds...)
}

// Propagations returns the number of propagations served.
func (e *Engine) Propagations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory builds scripted engines and remembers them in creation order.
type Factory struct {
	mu      sync.Mutex
	fn      PropagateFunc
	engines []*Engine
	err     error
}

// NewFactory returns a factory of engines answering with fn.
func NewFactory(fn PropagateFunc) *Factory {
	return &Factory{fn: fn}
}

// FailWith makes subsequent constructions fail with err.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Build is an engine.Factory.
func (f *Factory) Build(_ context.Context, settings engine.Settings) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := New(settings, f.fn)
	f.engines = append(f.engines, e)
	return e, nil
}

// Engines returns the engines built so far.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Engine(nil), f.engines...)
}

// Fraction keeps frac of the kinetic energy for every particle.
func Fraction(frac float64) PropagateFunc {
	return func(_ int64, _ int, initial engine.State, _ float64) engine.Track {
		kinetic := initial.Energy - engine.MuonMass
		return engine.Track{FinalEnergy: engine.MuonMass + frac*kinetic, FinalType: engine.InteractionContinuous}
	}
}

// Pattern cycles through outcomes: a true entry survives with frac of its
// kinetic energy, a false entry decays.
func Pattern(frac float64, survive ...bool) PropagateFunc {
	keep := Fraction(frac)
	return func(seed int64, call int, initial engine.State, distance float64) engine.Track {
		if survive[call%len(survive)] {
			return keep(seed, call, initial, distance)
		}
		return engine.Track{FinalEnergy: engine.MuonMass, FinalType: engine.InteractionDecay}
	}
}
