package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subburn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subburn_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	VideoUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subburn_video_uploads_total",
			Help: "Total number of video uploads",
		},
	)

	VideoUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subburn_video_upload_size_bytes",
			Help:    "Size of uploaded videos in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 15), // 1MB to 16GB
		},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subburn_jobs_created_total",
			Help: "Total number of captioning jobs created",
		},
		[]string{"quality"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subburn_jobs_completed_total",
			Help: "Total number of captioning jobs that reached a terminal state",
		},
		[]string{"status", "reason"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subburn_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobsQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subburn_jobs_queue_depth",
			Help: "Number of jobs waiting for a worker slot",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subburn_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"quality", "status"},
	)

	// Stage Metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subburn_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		},
		[]string{"stage", "status"},
	)

	ToolFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subburn_tool_failures_total",
			Help: "Total number of failed external tool invocations",
		},
		[]string{"stage", "kind"},
	)

	SegmentsTranscribed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subburn_segments_per_job",
			Help:    "Number of transcript segments produced per job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Business Metrics
	VideoDurationProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subburn_video_duration_processed_seconds_total",
			Help: "Total duration of video processed in seconds",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subburn_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordUpload records an accepted upload
func RecordUpload(sizeBytes int64) {
	VideoUploadsTotal.Inc()
	VideoUploadSizeBytes.Observe(float64(sizeBytes))
}

// RecordJobCreated records a job creation
func RecordJobCreated(quality string) {
	JobsCreatedTotal.WithLabelValues(quality).Inc()
}

// RecordJobCompleted records a job reaching a terminal state
func RecordJobCompleted(status, reason, quality string, duration float64) {
	JobsCompletedTotal.WithLabelValues(status, reason).Inc()
	JobDuration.WithLabelValues(quality, status).Observe(duration)
}

// UpdateJobMetrics updates current job metrics
func UpdateJobMetrics(inProgress, queueDepth int) {
	JobsInProgress.Set(float64(inProgress))
	JobsQueueDepth.Set(float64(queueDepth))
}

// RecordStage records a finished pipeline stage
func RecordStage(stage, status string, duration float64) {
	StageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordToolFailure records a failed external tool invocation
func RecordToolFailure(stage, kind string) {
	ToolFailuresTotal.WithLabelValues(stage, kind).Inc()
}

// RecordSegments records the transcript size of a job
func RecordSegments(count int) {
	SegmentsTranscribed.Observe(float64(count))
}

// RecordVideoDuration adds processed source duration
func RecordVideoDuration(seconds float64) {
	if seconds > 0 {
		VideoDurationProcessed.Add(seconds)
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
