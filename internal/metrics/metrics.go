package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adforge_jobs_started_total",
		Help: "The total number of pipeline jobs started",
	}, []string{"platform", "objective"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adforge_jobs_finished_total",
		Help: "The total number of pipeline jobs reaching a terminal stage",
	}, []string{"stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adforge_stage_duration_seconds",
		Help:    "Duration of individual pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	StageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adforge_stage_retries_total",
		Help: "The total number of stage retry attempts",
	}, []string{"stage"})
)

// ObserveStage records one stage invocation's wall time.
func ObserveStage(stage string, elapsed time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StartServer exposes /metrics on addr in a background goroutine.
func StartServer(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}
