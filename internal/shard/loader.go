package shard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mute/internal/config"
	"mute/internal/grid"
	"mute/internal/metrics"
)

// ErrNoShards is returned when the first shard of a key does not exist.
var ErrNoShards = errors.New("no shards found")

// Source opens shards by key and job index. A missing shard is reported with
// an error matching notFound as given to NewLoader.
type Source interface {
	OpenShard(ctx context.Context, key config.Key, job int) (io.ReadCloser, error)
}

// Merged is a table pooled from shards together with the key it was loaded for.
type Merged struct {
	Key    config.Key
	Table  *grid.Table
	Shards int
}

// Loader merges shards written by independent sweeps.
type Loader struct {
	src      Source
	notFound error
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithMetrics counts merged shards and lines.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// NewLoader returns a loader reading from src. notFound is the sentinel src
// uses for missing shards.
func NewLoader(src Source, notFound error, opts ...Option) *Loader {
	ld := &Loader{
		src:      src,
		notFound: notFound,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("mute/internal/shard"),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadAndMerge pools shards 0..count-1 of cfg's key in increasing order. Every
// shard is checked in full before it is merged; any bad shard aborts the whole
// load and nothing is returned. A missing shard 0 yields ErrNoShards.
func (l *Loader) LoadAndMerge(ctx context.Context, cfg config.Config, count int) (*Merged, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, &config.Error{Field: "shards", Reason: "must be at least 1"}
	}
	key := cfg.Key()
	ctx, span := l.tracer.Start(ctx, "shard.load_and_merge", trace.WithAttributes(
		attribute.String("mute.key", key.String()),
		attribute.Int("mute.shards", count),
	))
	defer span.End()

	ne, nx := len(cfg.Energies), len(cfg.SlantDepths)
	acc := grid.NewTable(ne, nx)
	l.logger.Debug(fmt.Sprintf("Loading underground energies from %s.", key.ShardName(0)), zap.Int("shards", count))
	for job := 0; job < count; job++ {
		t, err := l.readShard(ctx, key, job, ne, nx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if err := acc.Merge(t); err != nil {
			return nil, err
		}
		l.metrics.ShardMerged()
		l.metrics.ShardLines(t.Cells())
	}
	l.logger.Debug("Loaded underground energies.", zap.Int("survivors", acc.Total()))
	span.SetAttributes(attribute.Int("mute.survivors", acc.Total()))
	return &Merged{Key: key, Table: acc, Shards: count}, nil
}

func (l *Loader) readShard(ctx context.Context, key config.Key, job, ne, nx int) (*grid.Table, error) {
	rc, err := l.src.OpenShard(ctx, key, job)
	if err != nil {
		if job == 0 && l.notFound != nil && errors.Is(err, l.notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoShards, key.ShardName(0))
		}
		return nil, fmt.Errorf("open shard %d: %w", job, err)
	}
	defer rc.Close()
	t, err := Decode(rc, ne, nx)
	if err != nil {
		var mm *grid.MismatchError
		if errors.As(err, &mm) {
			mm.Artifact = key.ShardName(job)
		}
		return nil, fmt.Errorf("shard %d: %w", job, err)
	}
	return t, nil
}

// Decode reads a whole shard for an ne x nx grid. The line count is checked
// before any parse error is reported, so a truncated file is always a
// structural mismatch.
func Decode(r io.Reader, ne, nx int) (*grid.Table, error) {
	want := ne * nx
	t := grid.NewTable(ne, nx)
	br := bufio.NewReaderSize(r, 1<<16)
	lines := 0
	var parseErr error
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if lines < want && parseErr == nil {
				vals, perr := ParseLine(line)
				if perr != nil {
					parseErr = &LineError{Line: lines + 1, Reason: perr.Error()}
				} else {
					t.Extend(lines/nx, lines%nx, vals...)
				}
			}
			lines++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if lines != want {
		return nil, &grid.MismatchError{Artifact: "shard", Want: want, Got: lines}
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return t, nil
}
