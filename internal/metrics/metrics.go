// Package metrics exposes Prometheus instrumentation for analysis runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vigil/internal/stage"
)

var (
	initOnce sync.Once

	runsTotalCounter       *prometheus.CounterVec
	stageCallsCounter      *prometheus.CounterVec
	stageDurationMetric    *prometheus.HistogramVec
	runDurationMetric      *prometheus.HistogramVec
	runsActiveGauge        prometheus.Gauge
	rejectedRunsCounter    *prometheus.CounterVec
	notificationErrCounter prometheus.Counter
)

// Run outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Rejection reasons.
const (
	RejectInvalidConfiguration = "invalid_configuration"
	RejectAlreadyInProgress    = "already_in_progress"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_runs_total",
				Help: "Total number of finished analysis runs by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		stageCallsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_stage_calls_total",
				Help: "Total number of stage executions by stage and result.",
			},
			[]string{"stage", "result"},
		)

		stageDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vigil_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		)

		runDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vigil_run_duration_seconds",
				Help:    "Duration of analysis runs in seconds.",
				Buckets: []float64{5, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{"mode"},
		)

		runsActiveGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vigil_runs_active",
				Help: "Number of analysis runs currently executing.",
			},
		)

		rejectedRunsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vigil_runs_rejected_total",
				Help: "Total number of run requests rejected before any backend call.",
			},
			[]string{"reason"},
		)

		notificationErrCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vigil_notification_errors_total",
				Help: "Total number of failed notification deliveries.",
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			stageCallsCounter,
			stageDurationMetric,
			runDurationMetric,
			runsActiveGauge,
			rejectedRunsCounter,
			notificationErrCounter,
		)

		// Ensure vectors are visible at /metrics before first increment.
		for _, mode := range []stage.Mode{stage.ModeFull, stage.ModePartial} {
			for _, outcome := range []string{OutcomeCompleted, OutcomeFailed} {
				runsTotalCounter.WithLabelValues(string(mode), outcome)
			}
		}
		for _, name := range stage.All() {
			stageCallsCounter.WithLabelValues(name.String(), "success")
			stageCallsCounter.WithLabelValues(name.String(), "failure")
		}
		for _, reason := range []string{RejectInvalidConfiguration, RejectAlreadyInProgress} {
			rejectedRunsCounter.WithLabelValues(reason)
		}
	})
}

func RunStarted() {
	Init()
	runsActiveGauge.Inc()
}

func RunFinished(mode stage.Mode, outcome string, d time.Duration) {
	Init()
	runsActiveGauge.Dec()
	runsTotalCounter.WithLabelValues(string(mode), outcome).Inc()
	runDurationMetric.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func RunRejected(reason string) {
	Init()
	rejectedRunsCounter.WithLabelValues(reason).Inc()
}

func ObserveStage(name stage.Name, success bool, d time.Duration) {
	Init()
	result := "success"
	if !success {
		result = "failure"
	}
	stageCallsCounter.WithLabelValues(name.String(), result).Inc()
	stageDurationMetric.WithLabelValues(name.String()).Observe(d.Seconds())
}

func IncNotificationErrors() {
	Init()
	notificationErrCounter.Inc()
}

// StageCalls returns the current count for a stage/result pair.
func StageCalls(name stage.Name, result string) prometheus.Counter {
	Init()
	return stageCallsCounter.WithLabelValues(name.String(), result)
}

// Runs returns the current counter for a mode/outcome pair.
func Runs(mode stage.Mode, outcome string) prometheus.Counter {
	Init()
	return runsTotalCounter.WithLabelValues(string(mode), outcome)
}
