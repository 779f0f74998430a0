// Package metrics implements the engine's internal statistics surface:
// Prometheus counters/gauges against a private registry (never the global
// default, per the engine's no-global-singletons rule), HdrHistogram
// latency distributions, and decimal-exact ratio arithmetic for the
// dedup/reduction/compression ratios that get persisted in manifests.
// Grounded on the metrics concern named in SPEC_FULL.md's AMBIENT STACK;
// the registry-construction idiom follows
// _examples/dolthub-dolt/go/libraries/doltcore/sqle/binlogreplication/binlog_replication_reconnect_test.go's
// `prometheus.NewRegistry()` usage.
package metrics

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Registry bundles the engine's private Prometheus registry with the named
// instruments callers increment/observe directly.
type Registry struct {
	reg *prometheus.Registry

	ChunksStored prometheus.Counter
	BytesWritten prometheus.Counter
	DedupHits    prometheus.Counter
	GCReclaimed  prometheus.Counter
	OpenChunks   prometheus.Gauge

	storeLatency *hdrhistogram.Histogram
	getLatency   *hdrhistogram.Histogram
	deltaLatency *hdrhistogram.Histogram
}

// New builds a Registry with its own private prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ChunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talaria_chunks_stored_total",
			Help: "Number of chunks newly persisted to the chunk store.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talaria_bytes_written_total",
			Help: "Number of raw bytes written across all stores.",
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talaria_dedup_hits_total",
			Help: "Number of store operations that found an existing canonical hash.",
		}),
		GCReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talaria_gc_reclaimed_bytes_total",
			Help: "Bytes reclaimed by garbage collection.",
		}),
		OpenChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "talaria_open_chunks",
			Help: "Number of chunks currently resident in the chunk store.",
		}),
		// Microsecond-resolution histograms over [1us, 10min], 3 significant figures.
		storeLatency: hdrhistogram.New(1, 600_000_000, 3),
		getLatency:   hdrhistogram.New(1, 600_000_000, 3),
		deltaLatency: hdrhistogram.New(1, 600_000_000, 3),
	}

	reg.MustRegister(r.ChunksStored, r.BytesWritten, r.DedupHits, r.GCReclaimed, r.OpenChunks)
	return r
}

// Registerer exposes the private registry for an optional /metrics adapter.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the private registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveStoreLatency records a chunk-store-put latency in microseconds.
func (r *Registry) ObserveStoreLatency(micros int64) {
	_ = r.storeLatency.RecordValue(micros)
}

// ObserveGetLatency records a chunk-store-get latency in microseconds.
func (r *Registry) ObserveGetLatency(micros int64) {
	_ = r.getLatency.RecordValue(micros)
}

// ObserveDeltaLatency records a delta-encode latency in microseconds.
func (r *Registry) ObserveDeltaLatency(micros int64) {
	_ = r.deltaLatency.RecordValue(micros)
}

// LatencyQuantiles summarizes one histogram's p50/p95/p99, in microseconds.
type LatencyQuantiles struct {
	P50, P95, P99 int64
}

func quantiles(h *hdrhistogram.Histogram) LatencyQuantiles {
	return LatencyQuantiles{
		P50: h.ValueAtQuantile(50),
		P95: h.ValueAtQuantile(95),
		P99: h.ValueAtQuantile(99),
	}
}

// StoreLatencyQuantiles returns the chunk-store-put latency distribution.
func (r *Registry) StoreLatencyQuantiles() LatencyQuantiles { return quantiles(r.storeLatency) }

// GetLatencyQuantiles returns the chunk-store-get latency distribution.
func (r *Registry) GetLatencyQuantiles() LatencyQuantiles { return quantiles(r.getLatency) }

// DeltaLatencyQuantiles returns the delta-encode latency distribution.
func (r *Registry) DeltaLatencyQuantiles() LatencyQuantiles { return quantiles(r.deltaLatency) }

// Ratio computes numerator/denominator with decimal.Decimal to avoid the
// float drift that would otherwise accumulate across repeated persistence
// and comparison of dedup/reduction/compression ratios (spec.md §3's
// ReductionManifest.statistics and TemporalManifest discrepancy tracking).
// Returns zero when denominator is zero.
func Ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	num := decimal.NewFromInt(numerator)
	den := decimal.NewFromInt(denominator)
	ratio, _ := num.DivRound(den, 8).Float64()
	return ratio
}

// ReductionRatio computes 1 - (reduced/original) with decimal precision,
// matching reduce.Driver's statistics field of the same name.
func ReductionRatio(originalBytes, reducedBytes int64) float64 {
	if originalBytes == 0 {
		return 0
	}
	one := decimal.NewFromInt(1)
	reduced := decimal.NewFromInt(reducedBytes)
	original := decimal.NewFromInt(originalBytes)
	ratio, _ := one.Sub(reduced.DivRound(original, 8)).Float64()
	return ratio
}
