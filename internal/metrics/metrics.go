package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_job_runs_total",
			Help: "Total number of orchestrated job runs by outcome.",
		},
		[]string{"stage", "outcome"},
	)

	JobRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbng_trainer_job_run_duration_seconds",
			Help:    "Duration of orchestrated job runs in seconds.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"stage", "outcome"},
	)

	JobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cbng_trainer_jobs_active",
			Help: "Number of jobs currently being orchestrated.",
		},
		[]string{"stage"},
	)

	JobLogLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_job_log_lines_total",
			Help: "Total number of distinct job log lines surfaced.",
		},
		[]string{"stage"},
	)

	JobDeleteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_job_delete_failures_total",
			Help: "Total number of failed job clean ups.",
		},
		[]string{"stage"},
	)

	QuotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_quota_checks_total",
			Help: "Total number of fleet quota checks by decision.",
		},
		[]string{"prefix", "decision"},
	)

	PipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_pipeline_steps_total",
			Help: "Total number of pipeline steps by status.",
		},
		[]string{"step", "status"},
	)

	ScheduleFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_schedule_fires_total",
			Help: "Total number of scheduled coordinator runs.",
		},
		[]string{"schedule"},
	)

	FileUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbng_trainer_file_uploads_total",
			Help: "Total number of artifact uploads by response code.",
		},
		[]string{"code"},
	)
)

// Register registers all custom trainer metrics with the default Prometheus registry.
func Register() {
	prometheus.MustRegister(
		JobRunsTotal,
		JobRunDurationSeconds,
		JobsActive,
		JobLogLinesTotal,
		JobDeleteFailuresTotal,
		QuotaChecksTotal,
		PipelineStepsTotal,
		ScheduleFiresTotal,
		FileUploadsTotal,
	)
}
