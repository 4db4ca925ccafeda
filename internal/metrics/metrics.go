package metrics

import (
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxgapfill_runs_total",
			Help: "Total gap-fill runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxgapfill_run_duration_seconds",
			Help:    "Gap-fill run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"mode"},
	)

	ValuesFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxgapfill_values_filled_total",
			Help: "Total missing values estimated",
		},
		[]string{"station", "variable"},
	)

	ValuesUnfilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxgapfill_values_unfilled_total",
			Help: "Total missing values left unfilled",
		},
		[]string{"station", "variable"},
	)

	ModelCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxgapfill_model_cache_lookups_total",
			Help: "Regression model cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	QueuedRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wxgapfill_queued_runs",
			Help: "Runs waiting for the engine",
		},
	)
)

// ObserveResult records the counters of one finished run.
func ObserveResult(res *gapfill.Result, mode string, seconds float64) {
	RunsTotal.WithLabelValues(string(res.Status)).Inc()
	RunDuration.WithLabelValues(mode).Observe(seconds)
	if res.Report == nil {
		return
	}
	for _, s := range res.Report.Summaries {
		ValuesFilled.WithLabelValues(res.Station.Name, s.Variable).Add(float64(s.Filled))
		ValuesUnfilled.WithLabelValues(res.Station.Name, s.Variable).Add(float64(s.Unfilled))
	}
	ModelCacheLookups.WithLabelValues("hit").Add(float64(res.Cache.Hits))
	ModelCacheLookups.WithLabelValues("miss").Add(float64(res.Cache.Misses))
}
