// Package proc runs the propagation engine as a child process that speaks one
// JSON object per line on stdin/stdout. The process is started and configured
// once, then serves seed and propagate requests until Close.
package proc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"mute/internal/engine"
)

const (
	opConfigure = "configure"
	opSeed      = "seed"
	opPropagate = "propagate"
	opClose     = "close"
)

type request struct {
	Op       string           `json:"op"`
	Settings *engine.Settings `json:"settings,omitempty"`
	Seed     *int64           `json:"seed,omitempty"`
	State    *engine.State    `json:"state,omitempty"`
	Distance float64          `json:"distance,omitempty"`
}

type response struct {
	OK     bool                   `json:"ok,omitempty"`
	Energy float64                `json:"energy"`
	Type   engine.InteractionType `json:"type,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Engine is an engine.Engine backed by a worker process.
type Engine struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	logger *zap.Logger
	closed bool
}

// Option customises the worker process.
type Option func(*exec.Cmd)

// WithEnv appends environment entries to the worker's environment.
func WithEnv(kv ...string) Option {
	return func(c *exec.Cmd) {
		if c.Env == nil {
			c.Env = os.Environ()
		}
		c.Env = append(c.Env, kv...)
	}
}

// WithStderr redirects the worker's stderr.
func WithStderr(w io.Writer) Option {
	return func(c *exec.Cmd) { c.Stderr = w }
}

// Start launches argv and configures it with settings.
func Start(ctx context.Context, argv []string, settings engine.Settings, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: no engine command configured", engine.ErrEngine)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// The worker outlives ctx; it is stopped by Close.
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // command comes from operator configuration
	cmd.Stderr = os.Stderr
	for _, opt := range opts {
		opt(cmd)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", engine.ErrEngine, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", engine.ErrEngine, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", engine.ErrEngine, argv[0], err)
	}
	e := &Engine{
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(bufio.NewReader(stdout)),
		logger: logger,
	}
	logger.Debug("engine worker started", zap.Strings("argv", argv), zap.Int("pid", cmd.Process.Pid))
	if err := ctx.Err(); err != nil {
		_ = e.Close()
		return nil, err
	}
	s := settings
	if _, err := e.roundTrip(request{Op: opConfigure, Settings: &s}); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// Factory returns an engine.Factory starting argv for every engine.
func Factory(argv []string, logger *zap.Logger, opts ...Option) engine.Factory {
	args := append([]string(nil), argv...)
	return func(ctx context.Context, settings engine.Settings) (engine.Engine, error) {
		return Start(ctx, args, settings, logger, opts...)
	}
}

// SetSeed reseeds the worker's random generator.
func (e *Engine) SetSeed(seed int64) error {
	_, err := e.roundTrip(request{Op: opSeed, Seed: &seed})
	return err
}

// Propagate sends one particle across distance (cm).
func (e *Engine) Propagate(ctx context.Context, initial engine.State, distance float64) (engine.Track, error) {
	if err := ctx.Err(); err != nil {
		return engine.Track{}, err
	}
	st := initial
	resp, err := e.roundTrip(request{Op: opPropagate, State: &st, Distance: distance})
	if err != nil {
		return engine.Track{}, err
	}
	return engine.Track{FinalEnergy: resp.Energy, FinalType: resp.Type}, nil
}

// Close asks the worker to exit and waits for it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	_ = e.enc.Encode(request{Op: opClose})
	_ = e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: worker exited: %v", engine.ErrEngine, err)
		}
		return err
	}
	return nil
}

func (e *Engine) roundTrip(req request) (response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return response{}, fmt.Errorf("%w: engine closed", engine.ErrEngine)
	}
	if err := e.enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("%w: send %s: %v", engine.ErrEngine, req.Op, err)
	}
	var resp response
	if err := e.dec.Decode(&resp); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return response{}, fmt.Errorf("%w: read %s reply: %v", engine.ErrEngine, req.Op, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("%w: %s: %s", engine.ErrEngine, req.Op, resp.Error)
	}
	return resp, nil
}
