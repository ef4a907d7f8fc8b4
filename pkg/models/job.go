package models

import "time"

// Job represents one captioning run over a single source video
type Job struct {
	ID              string     `json:"id"`
	InputVideoPath  string     `json:"input_video_path"`
	Language        string     `json:"language"`
	Quality         string     `json:"quality"`
	AudioPath       string     `json:"audio_path,omitempty"`
	SubtitlePath    string     `json:"subtitle_path,omitempty"`
	OutputVideoPath string     `json:"output_video_path,omitempty"`
	Status          string     `json:"status"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	ErrorMsg        string     `json:"error_msg,omitempty"`
	SegmentCount    int        `json:"segment_count"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobStatus constants. They mirror the orchestrator states.
const (
	JobStatusInit            = "init"
	JobStatusAudioExtracted  = "audio_extracted"
	JobStatusTranscribed     = "transcribed"
	JobStatusSubtitleWritten = "subtitle_written"
	JobStatusBurned          = "burned"
	JobStatusSkippedNoSpeech = "skipped_no_speech"
	JobStatusOverwriteDenied = "overwrite_denied"
	JobStatusFailed          = "failed"
)

// FailureReason constants
const (
	FailureToolNotFound      = "tool_not_found"
	FailureProcessFailed     = "process_failed"
	FailureTimeout           = "timeout"
	FailureSubtitleMissing   = "subtitle_missing"
	FailureInvalidTranscript = "invalid_transcript"
	FailureIO                = "io"
	FailureCanceled          = "canceled"
	FailurePathConflict      = "path_conflict"
)

// IsTerminal reports whether the job can no longer change state
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status is one of the end states
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusBurned, JobStatusSkippedNoSpeech, JobStatusOverwriteDenied, JobStatusFailed:
		return true
	}
	return false
}

// Succeeded reports whether the job ended without a failure. Skipped and
// denied jobs count as successful no-ops.
func (j *Job) Succeeded() bool {
	return j.IsTerminal() && j.Status != JobStatusFailed
}
