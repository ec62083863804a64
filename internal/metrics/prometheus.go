package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopgen_runs_total",
		Help: "Total number of SOP generation runs, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sopgen_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopgen_frames_sampled_total",
		Help: "Total number of frames sampled across all runs",
	})

	FramesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sopgen_frames_analyzed_total",
		Help: "Total number of frames sent to the vision backend",
	})

	MalformedResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopgen_malformed_responses_total",
		Help: "Vision responses that could not be parsed into a SOP record",
	}, []string{"backend"})

	BackendTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopgen_backend_timeouts_total",
		Help: "Vision requests that exceeded the timeout",
	}, []string{"backend"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sopgen_active_workers",
		Help: "Number of workers currently processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sopgen_job_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
