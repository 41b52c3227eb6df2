// Package metrics exposes Prometheus collectors for the control-thread
// cycle, segment occupancy, cluster density, and recompile routing
// mismatches, grounded on Voskan/arena-cache's hits/misses/evictions
// atomic counters registered with client_golang — the pack's precedent for
// a small, hand-picked collector set attached to a background worker
// rather than auto-instrumented middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric JBolt's control thread and recompile
// driver update. Register it once with a prometheus.Registerer at process
// startup.
type Collectors struct {
	CyclesTotal        prometheus.Counter
	CycleDuration       prometheus.Histogram
	SegmentOccupancy    *prometheus.GaugeVec
	ClusterDensity      prometheus.Histogram
	RoutingMismatches   prometheus.Counter
	CompileTasksSkipped prometheus.Counter
}

// NewCollectors constructs a fresh Collectors. Callers register the
// returned value with a prometheus.Registerer; NewCollectors itself never
// touches a global registry, mirroring arena-cache's
// prometheus.NewRegistry()-per-instance pattern rather than relying on
// prometheus.DefaultRegisterer.
func NewCollectors(namespace string) *Collectors {
	return &Collectors{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of completed JBolt control-thread cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full JBolt cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SegmentOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segment_occupancy_bytes",
			Help:      "Bytes currently occupied in a hot segment.",
		}, []string{"role"}),
		ClusterDensity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cluster_density",
			Help:      "Heat-per-byte density of surviving clusters after an HFSort run.",
			Buckets:   prometheus.DefBuckets,
		}),
		RoutingMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_mismatches_total",
			Help:      "Compiles whose resulting nmethod landed outside the expected segment.",
		}),
		CompileTasksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_tasks_skipped_total",
			Help:      "Recompile tasks skipped because the method holder was unloaded or the task was an OSR target.",
		}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate-registration error — the same fail-fast startup contract
// client_golang's own MustRegister uses.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.CyclesTotal,
		c.CycleDuration,
		c.SegmentOccupancy,
		c.ClusterDensity,
		c.RoutingMismatches,
		c.CompileTasksSkipped,
	)
}
