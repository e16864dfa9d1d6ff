package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for a harvest. Each instance has its own
// registry so that several batches (and tests) never collide.
//
// Metrics:
//   - biosbias_shards_total{status} - shards finished, status "ok" or "failed"
//   - biosbias_bios_total - bio records extracted from successful shards
//   - biosbias_shard_duration_seconds - time to process one shard
//   - biosbias_retry_rounds_total - retry rounds started for failed shards
type Metrics struct {
	registry *prometheus.Registry

	ShardsTotal   *prometheus.CounterVec
	BiosTotal     prometheus.Counter
	ShardDuration prometheus.Histogram
	RetryRounds   prometheus.Counter
}

// NewMetrics creates metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ShardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biosbias_shards_total",
				Help: "Total number of shards processed",
			},
			[]string{"status"},
		),
		BiosTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "biosbias_bios_total",
				Help: "Total number of bio records extracted",
			},
		),
		ShardDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "biosbias_shard_duration_seconds",
				Help:    "Duration of shard processing in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
		RetryRounds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "biosbias_retry_rounds_total",
				Help: "Total number of retry rounds for failed shards",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeShard(r *ShardResult) {
	if m == nil {
		return
	}
	m.ShardDuration.Observe(r.Duration.Seconds())
	if r.Error != nil {
		m.ShardsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.ShardsTotal.WithLabelValues("ok").Inc()
	m.BiosTotal.Add(float64(len(r.Records)))
}

func (m *Metrics) observeRetryRound() {
	if m == nil {
		return
	}
	m.RetryRounds.Inc()
}
