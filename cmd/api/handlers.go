package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billtruong003/video-to-subtitle-converter/internal/jobstore"
	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/metrics"
	"github.com/billtruong003/video-to-subtitle-converter/internal/monitoring"
	"github.com/billtruong003/video-to-subtitle-converter/internal/pipeline"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	healthTimeout    = 5 * time.Second
)

// Prober inspects an uploaded file
type Prober interface {
	ProbeVideo(ctx context.Context, inputPath string) (*transcoder.VideoMetadata, error)
}

// Submitter queues a job for background processing
type Submitter interface {
	Submit(ctx context.Context, job *models.Job)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter summarizes host and queue health
type HealthReporter interface {
	Snapshot() monitoring.Snapshot
	SystemHealth() string
	Alerts() []string
}

type API struct {
	// ctx outlives requests so accepted jobs keep running after the response
	ctx     context.Context
	store   jobstore.Store
	monitor HealthReporter
	prober  Prober
	pool    Submitter
	logger  *logging.Logger

	uploadDir       string
	outputDir       string
	maxUploadSize   int64
	defaultLanguage string
	defaultQuality  string
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if p, ok := api.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	if api.monitor == nil {
		c.JSON(http.StatusOK, gin.H{
			"status": monitoring.HealthHealthy,
		})
		return
	}

	status := api.monitor.SystemHealth()
	code := http.StatusOK
	if status == monitoring.HealthCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"system": api.monitor.Snapshot(),
		"alerts": api.monitor.Alerts(),
	})
}

func (api *API) metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Create job endpoint: accepts a video upload and queues it for captioning
func (api *API) createJob(c *gin.Context) {
	if api.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, api.maxUploadSize)
	}

	file, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Video exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	language := strings.TrimSpace(c.PostForm("language"))
	if language == "" {
		language = api.defaultLanguage
	}

	quality := strings.ToLower(strings.TrimSpace(c.PostForm("quality")))
	if quality == "" {
		quality = api.defaultQuality
	}
	if !transcoder.IsKnownQuality(quality) {
		api.logger.Warnf("Unknown quality %q, using %s", quality, transcoder.DefaultQuality)
	}

	jobID := uuid.New().String()
	uploadDir := filepath.Join(api.uploadDir, jobID)
	inputPath := filepath.Join(uploadDir, uploadName(file.Filename))

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		api.logger.ErrorWithErr("Failed to create upload directory", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	if err := c.SaveUploadedFile(file, inputPath); err != nil {
		os.RemoveAll(uploadDir)
		api.logger.ErrorWithErr("Failed to save upload", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	meta, err := api.prober.ProbeVideo(c.Request.Context(), inputPath)
	if err != nil || !meta.HasVideo() {
		os.RemoveAll(uploadDir)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Upload is not a readable video"})
		return
	}
	metrics.RecordUpload(file.Size)
	metrics.RecordVideoDuration(meta.Duration())

	job := pipeline.NewJob(inputPath, language, quality)
	job.ID = jobID
	job.SubtitlePath, job.OutputVideoPath = pipeline.OutputPaths(filepath.Join(api.outputDir, jobID), inputPath)

	if err := api.store.Save(c.Request.Context(), job); err != nil {
		os.RemoveAll(uploadDir)
		api.logger.ErrorWithErr("Failed to save job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}
	metrics.RecordJobCreated(job.Quality)

	api.pool.Submit(api.ctx, job)

	c.JSON(http.StatusAccepted, job)
}

// Get job endpoint
func (api *API) getJob(c *gin.Context) {
	job, ok := api.lookupJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// List jobs endpoint, newest first
func (api *API) listJobs(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	jobs, err := api.store.List(c.Request.Context(), limit)
	if err != nil {
		api.logger.ErrorWithErr("Failed to list jobs", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Download the subtitled video
func (api *API) downloadVideo(c *gin.Context) {
	job, ok := api.lookupJob(c)
	if !ok {
		return
	}
	if !job.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is still running", "status": job.Status})
		return
	}
	if job.Status != models.JobStatusBurned {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job produced no video", "status": job.Status})
		return
	}
	api.serveFile(c, job.OutputVideoPath)
}

// Download the SRT track
func (api *API) downloadSubtitles(c *gin.Context) {
	job, ok := api.lookupJob(c)
	if !ok {
		return
	}
	if !job.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is still running", "status": job.Status})
		return
	}
	api.serveFile(c, job.SubtitlePath)
}

func (api *API) lookupJob(c *gin.Context) (*models.Job, bool) {
	job, err := api.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return nil, false
	}
	if err != nil {
		api.logger.ErrorWithErr("Failed to load job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return nil, false
	}
	return job, true
}

func (api *API) serveFile(c *gin.Context, path string) {
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not available"})
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not available"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// uploadName keeps only the base name of a client-supplied file name
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "video.mp4"
	}
	return name
}
