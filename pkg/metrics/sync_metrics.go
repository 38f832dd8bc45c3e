package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "config_sync_total",
	Help: "Config synchronisation attempts, partitioned by outcome and trigger",
}, []string{"outcome", "trigger"})

var syncDur = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "config_sync_duration_seconds",
	Help:    "How long a fetch, validate and write cycle took",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var syncLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "config_sync_last_success_timestamp_seconds",
	Help: "Unix time of the last sync that left a valid config on disk",
})

var configBytes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "config_sync_document_size_bytes",
	Help: "Size of the config document currently on disk",
})

var startupAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "config_sync_startup_attempts_total",
	Help: "Attempts made by the blocking startup fetch",
})

var cacheDegraded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cache_degraded",
	Help: "1 when the cache is serving from the in-memory fallback",
})

var cacheFallbackOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_fallback_operations_total",
	Help: "Cache operations served by the in-memory fallback",
}, []string{"op"})

// ObserveSync records one Sync call. size is only meaningful for successful outcomes.
func ObserveSync(outcome, trigger string, elapsed time.Duration, size int, ok bool) {
	syncCount.WithLabelValues(outcome, trigger).Inc()
	syncDur.Observe(elapsed.Seconds())
	if ok {
		syncLastSuccess.SetToCurrentTime()
		configBytes.Set(float64(size))
	}
}

func StartupAttempt() {
	startupAttempts.Inc()
}

func SetCacheDegraded(degraded bool) {
	if degraded {
		cacheDegraded.Set(1)
	} else {
		cacheDegraded.Set(0)
	}
}

func CacheFallback(op string) {
	cacheFallbackOps.WithLabelValues(op).Inc()
}
