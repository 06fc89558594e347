package metrics

import (
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Captures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifedb",
		Name:      "captures_total",
		Help:      "Capture attempts by result (ok, invalid, extract_failed, store_failed).",
	}, []string{"result"})
	ExtractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lifedb",
		Name:      "extract_duration_seconds",
		Help:      "Metadata extraction latency.",
		Buckets:   prometheus.DefBuckets,
	})
	ProjectionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lifedb",
		Name:      "projection_failures_total",
		Help:      "Graph projections that failed and were queued for replay.",
	})
	OutboxReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lifedb",
		Name:      "outbox_replayed_total",
		Help:      "Items re-projected from the outbox.",
	})
	ItemsImported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lifedb",
		Name:      "items_imported_total",
		Help:      "Items inserted by bulk import.",
	})
)

var once sync.Once

// Init registers collectors; safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Captures, ExtractDuration, ProjectionFailures, OutboxReplayed, ItemsImported)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve starts a /metrics server on the given addr (e.g., ":9090"). Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// AddrFromEnv returns listen address from METRICS_ADDR or default ":9090".
func AddrFromEnv() string {
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		return v
	}
	return ":9090"
}
