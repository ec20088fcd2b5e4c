package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CollectionRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kolmeter_collection_runs_total",
		Help: "Total collection runs",
	})
	CollectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kolmeter_collection_duration_seconds",
		Help:    "Collection run duration seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})
	AccountResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_account_results_total",
		Help: "Per-account collection outcomes",
	}, []string{"status"})
	SnapshotsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kolmeter_snapshots_written_total",
		Help: "Tweet snapshots upserted, placeholders included",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint", "class"})
	NormalizeSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_normalize_skipped_total",
		Help: "Entities dropped by the response normalizer",
	}, []string{"reason"})
	Interactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_interactions_total",
		Help: "Classified interactions by kind",
	}, []string{"kind"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kolmeter_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(CollectionRuns, CollectionDuration, AccountResults, SnapshotsWritten,
		APIRetries, NormalizeSkipped, Interactions, CommandRuns, CommandErrors)
}

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
}

// ObserveCollectionDuration records a run duration.
func ObserveCollectionDuration(start time.Time) {
	CollectionDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint and failure class.
func IncAPIRetry(endpoint, class string) { APIRetries.WithLabelValues(endpoint, class).Inc() }

func IncAccountResult(status string) { AccountResults.WithLabelValues(status).Inc() }

func IncNormalizeSkipped(reason string) { NormalizeSkipped.WithLabelValues(reason).Inc() }

func AddInteractions(kind string, n int) { Interactions.WithLabelValues(kind).Add(float64(n)) }

func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
