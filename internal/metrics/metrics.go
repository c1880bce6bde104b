// Package metrics counts the work done by a pipeline run. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mute"

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	trials       *prometheus.CounterVec
	survivors    *prometheus.CounterVec
	cells        *prometheus.CounterVec
	cellSeconds  prometheus.Histogram
	shardLines   prometheus.Counter
	shardsMerged prometheus.Counter
	cache        *prometheus.CounterVec
}

// New registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trials_total",
			Help: "Muons propagated.",
		}, []string{"medium"}),
		survivors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "survivors_total",
			Help: "Muons that reached the slant depth.",
		}, []string{"medium"}),
		cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "grid_cells_total",
			Help: "Grid cells swept.",
		}, []string{"medium"}),
		cellSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "grid_cell_seconds",
			Help:    "Wall time spent on one grid cell.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		shardLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "shard_lines_total",
			Help: "Shard lines written by sweeps or read by merges.",
		}),
		shardsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "shards_merged_total",
			Help: "Shards folded into the survival table.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_outcomes_total",
			Help: "How survival tensor requests were satisfied.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.trials, m.survivors, m.cells, m.cellSeconds, m.shardLines, m.shardsMerged, m.cache)
	return m
}

// Registry exposes the collectors for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCell records one finished grid cell.
func (m *Metrics) ObserveCell(medium string, trials, survivors int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.trials.WithLabelValues(medium).Add(float64(trials))
	m.survivors.WithLabelValues(medium).Add(float64(survivors))
	m.cells.WithLabelValues(medium).Inc()
	m.cellSeconds.Observe(elapsed.Seconds())
}

// ShardLines adds n shard lines.
func (m *Metrics) ShardLines(n int) {
	if m == nil {
		return
	}
	m.shardLines.Add(float64(n))
}

// ShardMerged counts one merged shard.
func (m *Metrics) ShardMerged() {
	if m == nil {
		return
	}
	m.shardsMerged.Inc()
}

// CacheOutcome counts one tensor request by how it was served.
func (m *Metrics) CacheOutcome(outcome string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(outcome).Inc()
}

// WriteFile dumps the registry in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
