package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/metrics"
	"github.com/billtruong003/video-to-subtitle-converter/internal/subtitle"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

const (
	audioFileName   = "audio.wav"
	subtitledSuffix = "_subtitled"
	defaultVideoExt = ".mp4"
)

// AudioExtractor demuxes the audio track of a video
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
}

// Transcriber turns an audio file into time-stamped segments
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, model, language string) ([]models.Segment, error)
}

// SubtitleBurner renders a subtitle track into a video
type SubtitleBurner interface {
	BurnSubtitles(ctx context.Context, opts transcoder.BurnOptions) error
}

// JobRecorder persists job state transitions
type JobRecorder interface {
	Save(ctx context.Context, job *models.Job) error
}

// Options holds orchestration settings
type Options struct {
	WorkDir           string
	OutputDir         string
	Model             string
	Overwrite         transcoder.OverwritePolicy
	Confirm           transcoder.ConfirmFunc
	JobTimeout        time.Duration
	KeepIntermediates bool
}

// Orchestrator drives a job through extraction, transcription, subtitle
// serialization and burning
type Orchestrator struct {
	extractor   AudioExtractor
	transcriber Transcriber
	burner      SubtitleBurner
	recorder    JobRecorder
	profiles    *transcoder.ProfileTable
	logger      *logging.Logger
	opts        Options

	mu      sync.Mutex
	claimed map[string]string
}

// NewOrchestrator creates an orchestrator. A nil recorder or logger
// disables persistence or logging.
func NewOrchestrator(
	extractor AudioExtractor,
	transcriber Transcriber,
	burner SubtitleBurner,
	recorder JobRecorder,
	profiles *transcoder.ProfileTable,
	logger *logging.Logger,
	opts Options,
) *Orchestrator {
	if profiles == nil {
		profiles = transcoder.NewProfileTable(transcoder.DefaultCodecConfig())
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{
		extractor:   extractor,
		transcriber: transcriber,
		burner:      burner,
		recorder:    recorder,
		profiles:    profiles,
		logger:      logger,
		opts:        opts,
		claimed:     make(map[string]string),
	}
}

// NewJob creates a job in the init state
func NewJob(inputVideoPath, language, quality string) *models.Job {
	return &models.Job{
		ID:             uuid.New().String(),
		InputVideoPath: inputVideoPath,
		Language:       language,
		Quality:        transcoder.ParseQuality(quality),
		Status:         models.JobStatusInit,
		CreatedAt:      time.Now(),
	}
}

// OutputPaths returns the subtitle and video paths for an input placed in
// outputDir. An empty outputDir places them next to the input.
func OutputPaths(outputDir, inputVideoPath string) (string, string) {
	ext := filepath.Ext(inputVideoPath)
	stem := strings.TrimSuffix(filepath.Base(inputVideoPath), ext)
	if ext == "" {
		ext = defaultVideoExt
	}
	if outputDir == "" {
		outputDir = filepath.Dir(inputVideoPath)
	}
	return filepath.Join(outputDir, stem+".srt"), filepath.Join(outputDir, stem+subtitledSuffix+ext)
}

// Prepare fills in the ID, quality and any path not already set on the job
func (o *Orchestrator) Prepare(job *models.Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.JobStatusInit
	}
	job.Quality = transcoder.ParseQuality(job.Quality)

	subtitlePath, videoPath := OutputPaths(o.opts.OutputDir, job.InputVideoPath)
	if job.AudioPath == "" {
		job.AudioPath = filepath.Join(o.workDir(job), audioFileName)
	}
	if job.SubtitlePath == "" {
		job.SubtitlePath = subtitlePath
	}
	if job.OutputVideoPath == "" {
		job.OutputVideoPath = videoPath
	}
}

// ProcessJob runs a job to a terminal state. Skipped and overwrite-denied
// jobs return nil; failures return a *StageError and leave the job failed.
func (o *Orchestrator) ProcessJob(ctx context.Context, job *models.Job) error {
	o.Prepare(job)
	logger := o.logger.WithJobID(job.ID)

	started := time.Now()
	job.StartedAt = &started
	job.Status = models.JobStatusInit
	o.record(ctx, job)
	o.logger.LogJobEvent(job.ID, "started", job.Status, map[string]interface{}{
		"input":    job.InputVideoPath,
		"language": job.Language,
		"quality":  job.Quality,
	})

	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}

	release, err := o.claim(job)
	if err != nil {
		return o.failJob(ctx, job, StagePrepare, err)
	}
	defer release()

	// Refuse before spending time on work that would be discarded.
	if o.opts.Overwrite == transcoder.OverwriteDeny && fileExists(job.OutputVideoPath) {
		logger.Warnf("Output %s exists and overwrite is denied", job.OutputVideoPath)
		o.finish(ctx, job, models.JobStatusOverwriteDenied)
		return nil
	}

	if !o.opts.KeepIntermediates {
		defer o.cleanup(job)
	}

	if err := o.runStage(ctx, job, transcoder.StageExtractAudio, func(ctx context.Context) error {
		return o.extractor.ExtractAudio(ctx, job.InputVideoPath, job.AudioPath)
	}); err != nil {
		return o.failJob(ctx, job, transcoder.StageExtractAudio, err)
	}
	o.transition(ctx, job, models.JobStatusAudioExtracted)

	var segments []models.Segment
	if err := o.runStage(ctx, job, transcoder.StageTranscribe, func(ctx context.Context) error {
		var err error
		segments, err = o.transcriber.Transcribe(ctx, job.AudioPath, o.opts.Model, job.Language)
		return err
	}); err != nil {
		return o.failJob(ctx, job, transcoder.StageTranscribe, err)
	}
	job.SegmentCount = len(segments)
	metrics.RecordSegments(len(segments))
	o.transition(ctx, job, models.JobStatusTranscribed)

	if len(segments) == 0 {
		logger.Info("No speech detected, nothing to burn")
		o.finish(ctx, job, models.JobStatusSkippedNoSpeech)
		return nil
	}

	if err := o.runStage(ctx, job, StageWriteSubtitles, func(ctx context.Context) error {
		return subtitle.WriteFile(job.SubtitlePath, segments)
	}); err != nil {
		return o.failJob(ctx, job, StageWriteSubtitles, err)
	}
	o.transition(ctx, job, models.JobStatusSubtitleWritten)

	err = o.runStage(ctx, job, transcoder.StageBurnSubtitles, func(ctx context.Context) error {
		return o.burner.BurnSubtitles(ctx, transcoder.BurnOptions{
			VideoPath:    job.InputVideoPath,
			SubtitlePath: job.SubtitlePath,
			OutputPath:   job.OutputVideoPath,
			Profile:      o.profiles.Lookup(job.Quality),
			Overwrite:    o.opts.Overwrite,
			Confirm:      o.opts.Confirm,
		})
	})
	if errors.Is(err, transcoder.ErrOverwriteDenied) {
		logger.Warnf("Output %s was not replaced", job.OutputVideoPath)
		o.finish(ctx, job, models.JobStatusOverwriteDenied)
		return nil
	}
	if err != nil {
		return o.failJob(ctx, job, transcoder.StageBurnSubtitles, err)
	}

	o.finish(ctx, job, models.JobStatusBurned)
	return nil
}

// Abandon fails a job that never reached a worker
func (o *Orchestrator) Abandon(ctx context.Context, job *models.Job, err error) error {
	o.Prepare(job)
	o.logger.WithJobID(job.ID).Warnf("Job abandoned before a worker was free: %v", err)
	return o.failJob(ctx, job, StageQueue, err)
}

// runStage times a stage and reports its outcome
func (o *Orchestrator) runStage(ctx context.Context, job *models.Job, stage string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := "ok"
	if err != nil && !errors.Is(err, transcoder.ErrOverwriteDenied) {
		status = "failed"
	}
	metrics.RecordStage(stage, status, duration.Seconds())
	o.logger.LogStage(job.ID, stage, duration, err)

	var toolErr *transcoder.ToolError
	if errors.As(err, &toolErr) {
		metrics.RecordToolFailure(stage, string(toolErr.Kind))
		o.logger.LogToolFailure(job.ID, stage, toolErr.CommandLine(), toolErr.ExitCode, toolErr.Stderr)
	}

	return err
}

func (o *Orchestrator) transition(ctx context.Context, job *models.Job, status string) {
	job.Status = status
	o.record(ctx, job)
}

func (o *Orchestrator) finish(ctx context.Context, job *models.Job, status string) {
	completed := time.Now()
	job.Status = status
	job.CompletedAt = &completed
	o.record(ctx, job)

	var duration float64
	if job.StartedAt != nil {
		duration = completed.Sub(*job.StartedAt).Seconds()
	}
	metrics.RecordJobCompleted(job.Status, job.FailureReason, job.Quality, duration)
	o.logger.LogJobEvent(job.ID, "finished", job.Status, map[string]interface{}{
		"segments":       job.SegmentCount,
		"output":         job.OutputVideoPath,
		"failure_reason": job.FailureReason,
	})
}

// failJob marks a job as failed and returns the stage error
func (o *Orchestrator) failJob(ctx context.Context, job *models.Job, stage string, err error) error {
	job.FailureReason = FailureReason(err)
	job.ErrorMsg = err.Error()
	o.finish(ctx, job, models.JobStatusFailed)
	return &StageError{JobID: job.ID, Stage: stage, Err: err}
}

// record persists the job. Persistence outlives the job deadline so the
// terminal state is stored even after a timeout.
func (o *Orchestrator) record(ctx context.Context, job *models.Job) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Save(context.WithoutCancel(ctx), job); err != nil {
		metrics.RecordError("jobstore", "save_failed")
		o.logger.WithJobID(job.ID).ErrorWithErr("Failed to persist job state", err)
	}
}

// claim reserves the job's output paths for the duration of the run
func (o *Orchestrator) claim(job *models.Job) (func(), error) {
	paths := []string{absPath(job.SubtitlePath), absPath(job.OutputVideoPath)}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, path := range paths {
		if owner, ok := o.claimed[path]; ok && owner != job.ID {
			return func() {}, fmt.Errorf("%w: %s (job %s)", ErrPathConflict, path, owner)
		}
	}
	for _, path := range paths {
		o.claimed[path] = job.ID
	}

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for _, path := range paths {
			if o.claimed[path] == job.ID {
				delete(o.claimed, path)
			}
		}
	}, nil
}

func (o *Orchestrator) workDir(job *models.Job) string {
	return filepath.Join(o.opts.WorkDir, job.ID)
}

func (o *Orchestrator) cleanup(job *models.Job) {
	if err := os.RemoveAll(o.workDir(job)); err != nil {
		o.logger.WithJobID(job.ID).ErrorWithErr("Failed to remove work directory", err)
	}
	if !strings.HasPrefix(absPath(job.AudioPath), absPath(o.workDir(job))+string(filepath.Separator)) {
		os.Remove(job.AudioPath)
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
