package query

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "hits_total",
		Help:      "Reads answered from fresh cached data.",
	}, []string{"resource", "kind"})

	cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "misses_total",
		Help:      "Reads that needed a fetch.",
	}, []string{"resource", "kind"})

	cacheFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "fetches_total",
		Help:      "Network fetches started, by result.",
	}, []string{"resource", "kind", "result"})

	cacheDedup = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "deduplicated_total",
		Help:      "Reads that joined an in-flight fetch instead of starting one.",
	}, []string{"resource", "kind"})

	cacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "invalidations_total",
		Help:      "Entries marked stale.",
	}, []string{"resource", "kind"})

	cacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "backoffice",
		Subsystem: "query_cache",
		Name:      "entries",
		Help:      "Live cache entries.",
	}, []string{"resource", "kind"})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheFetches, cacheDedup, cacheInvalidations, cacheEntries)
}
