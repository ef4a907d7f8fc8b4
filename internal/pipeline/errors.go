package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/billtruong003/video-to-subtitle-converter/internal/subtitle"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcriber"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

// Stages owned by the orchestrator itself
const (
	StageQueue          = "queue"
	StagePrepare        = "prepare"
	StageWriteSubtitles = "write_subtitles"
)

// ErrPathConflict is returned when another running job owns an output path
var ErrPathConflict = errors.New("output path in use by another job")

// StageError is a stage-aware job failure
type StageError struct {
	JobID string
	Stage string
	Err   error
}

// Error formats the failure with its job and stage
func (e *StageError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Stage, e.Err)
}

// Unwrap exposes the stage error for errors.Is / errors.As
func (e *StageError) Unwrap() error {
	return e.Err
}

// FailureReason maps a stage error onto the reason stored on the job
func FailureReason(err error) string {
	switch {
	case errors.Is(err, transcoder.ErrToolNotFound):
		return models.FailureToolNotFound
	case errors.Is(err, transcoder.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, transcoder.ErrCanceled), errors.Is(err, context.Canceled):
		return models.FailureCanceled
	case errors.Is(err, transcoder.ErrProcessFailed):
		return models.FailureProcessFailed
	case errors.Is(err, transcoder.ErrSubtitleFileMissing):
		return models.FailureSubtitleMissing
	case errors.Is(err, transcriber.ErrInvalidTranscript), errors.Is(err, subtitle.ErrInvalidSegment):
		return models.FailureInvalidTranscript
	case errors.Is(err, ErrPathConflict):
		return models.FailurePathConflict
	default:
		return models.FailureIO
	}
}
