package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brandpulse",
			Name:      "classification_batches_total",
			Help:      "Classification batch calls, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	classificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brandpulse",
			Name:      "classifications_total",
			Help:      "Classifications produced by successful batches.",
		},
	)

	estimatedCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brandpulse",
			Name:      "estimated_cost_usd_total",
			Help:      "Best-effort model spend estimate in USD, by call kind.",
		},
		[]string{"kind"},
	)

	searchPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brandpulse",
			Name:      "search_pages_total",
			Help:      "Search provider page requests, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brandpulse",
			Name:      "analysis_runs_total",
			Help:      "Analysis runs, partitioned by final status.",
		},
		[]string{"status"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "brandpulse",
			Name:      "analysis_run_seconds",
			Help:      "Analysis run latency in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
	)
)

// Register attaches brandpulse collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		batchesTotal,
		classificationsTotal,
		estimatedCostTotal,
		searchPagesTotal,
		runsTotal,
		runDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveBatch records one classification batch. outcome is "success" or an
// error kind such as "service_error".
func ObserveBatch(outcome string, classifications int) {
	if outcome == "" {
		outcome = OutcomeError
	}
	batchesTotal.WithLabelValues(outcome).Inc()
	if classifications > 0 {
		classificationsTotal.Add(float64(classifications))
	}
}

func ObserveCost(kind string, usd float64) {
	if usd <= 0 {
		return
	}
	estimatedCostTotal.WithLabelValues(kind).Add(usd)
}

func ObserveSearchPage(outcome string) {
	searchPagesTotal.WithLabelValues(outcome).Inc()
}

func ObserveRun(duration time.Duration, status string) {
	runsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}
