package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fwdproxy",
			Name:      "requests_total",
			Help:      "Total number of proxied requests by outcome and status code",
		},
		[]string{"outcome", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fwdproxy",
			Name:      "request_duration_seconds",
			Help:      "Duration of proxied requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fwdproxy",
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
	)

	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fwdproxy",
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
	)

	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fwdproxy",
			Name:      "cache_evictions_total",
			Help:      "Total entries evicted from the cache",
		},
	)

	cacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fwdproxy",
			Name:      "cache_bytes",
			Help:      "Bytes currently held by the cache",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fwdproxy",
			Name:      "cache_entries",
			Help:      "Entries currently held by the cache",
		},
	)

	activeConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fwdproxy",
			Name:      "active_connections",
			Help:      "Client connections currently being served",
		},
	)

	upstreamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fwdproxy",
			Name:      "upstream_bytes_total",
			Help:      "Response bytes relayed from origin servers",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		requestTotal,
		requestDuration,
		cacheHits,
		cacheMisses,
		cacheEvictions,
		cacheBytes,
		cacheEntries,
		activeConns,
		upstreamBytes,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(outcome, code string, d time.Duration) {
	requestTotal.WithLabelValues(outcome, code).Inc()
	requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func IncCacheHit() {
	cacheHits.Inc()
}

func IncCacheMiss() {
	cacheMisses.Inc()
}

func IncCacheEviction() {
	cacheEvictions.Inc()
}

func SetCacheUsage(bytes, entries float64) {
	cacheBytes.Set(bytes)
	cacheEntries.Set(entries)
}

func ConnOpened() {
	activeConns.Inc()
}

func ConnClosed() {
	activeConns.Dec()
}

func AddUpstreamBytes(n int64) {
	upstreamBytes.Add(float64(n))
}
