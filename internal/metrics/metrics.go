// Package metrics exposes Prometheus collectors for the session engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// queryTotal counts ad-hoc statements by class and outcome
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionlake_query_total",
		Help: "Total ad-hoc SQL statements by class and outcome",
	}, []string{"class", "outcome"}) // class: read|write, outcome: ok|syntax|runtime|resource

	// queryDuration tracks statement latency including artifact caching
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessionlake_query_duration_seconds",
		Help:    "Ad-hoc SQL duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"class"})

	// queryTruncated counts results cut at the row cap
	queryTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionlake_query_truncated_total",
		Help: "Total query results truncated at the row cap",
	})

	// bindTotal counts source bindings by kind and outcome
	bindTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionlake_bind_total",
		Help: "Total source bindings by kind and outcome",
	}, []string{"kind", "outcome"})

	// initDuration tracks whole session initializations
	initDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sessionlake_init_duration_seconds",
		Help:    "Session initialization duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	// initRejected counts initializations refused by the limiter
	initRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionlake_init_rejected_total",
		Help: "Total session initializations rejected by the concurrency limiter",
	})

	// analysisTotal counts quick analyses by target type and outcome
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionlake_analysis_total",
		Help: "Total quick analyses by target type and outcome",
	}, []string{"target", "outcome"}) // target: view|artifact

	// scriptTotal counts sandboxed scripts by outcome
	scriptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionlake_script_total",
		Help: "Total sandboxed scripts by outcome",
	}, []string{"outcome"}) // ok|failed|timeout

	// resetFiles counts files removed by resets
	resetFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionlake_reset_files_total",
		Help: "Total files removed by session resets",
	}, []string{"scope"})
)

// ObserveQuery records one ad-hoc statement.
func ObserveQuery(class, outcome string, d time.Duration, truncated bool) {
	queryTotal.WithLabelValues(class, outcome).Inc()
	queryDuration.WithLabelValues(class).Observe(d.Seconds())
	if truncated {
		queryTruncated.Inc()
	}
}

// ObserveBind records one source binding.
func ObserveBind(kind, outcome string) {
	bindTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveInit records one session initialization.
func ObserveInit(d time.Duration) {
	initDuration.Observe(d.Seconds())
}

// InitRejected records a limiter rejection.
func InitRejected() {
	initRejected.Inc()
}

// ObserveAnalysis records one quick analysis target.
func ObserveAnalysis(target, outcome string) {
	analysisTotal.WithLabelValues(target, outcome).Inc()
}

// ObserveScript records one sandboxed script run.
func ObserveScript(outcome string) {
	scriptTotal.WithLabelValues(outcome).Inc()
}

// ObserveReset records files removed by a reset.
func ObserveReset(scope string, files int) {
	resetFiles.WithLabelValues(scope).Add(float64(files))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
