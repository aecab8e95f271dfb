package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics mirrors the gauge/counter pattern in friggdb/pool.Pool: a
// small set of promauto collectors created once at construction and
// updated inline from the hot path, never behind their own lock.
type metrics struct {
	liveEntries  prometheus.Gauge
	hits         prometheus.Counter
	misses       prometheus.Counter
	evictions    prometheus.Counter
	unrecognized prometheus.Counter
	samePage     prometheus.Counter
	changedPage  prometheus.Counter
	storeDropped prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		liveEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ljx",
			Subsystem: "cache",
			Name:      "live_entries",
			Help:      "Current number of live cache entries across all backends.",
		}),
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "cache",
			Name:      "fetch_hits_total",
			Help:      "Total number of fetch calls that were satisfied from cache.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "cache",
			Name:      "fetch_misses_total",
			Help:      "Total number of fetch calls that missed the cache.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted under the LRU policy.",
		}),
		unrecognized: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "page_reuse",
			Name:      "unrecognized_total",
			Help:      "Total number of pages observed with no prior checksum on record.",
		}),
		samePage: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "page_reuse",
			Name:      "same_total",
			Help:      "Total number of pages observed whose checksum matched the prior observation.",
		}),
		changedPage: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "page_reuse",
			Name:      "changed_total",
			Help:      "Total number of pages observed whose checksum differed from the prior observation.",
		}),
		storeDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ljx",
			Subsystem: "cache",
			Name:      "store_dropped_total",
			Help:      "Total number of store calls dropped due to allocation or mapping failure.",
		}),
	}
}
