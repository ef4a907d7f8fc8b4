package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/billtruong003/video-to-subtitle-converter/internal/resources"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	limits      resources.Limits
	runner      CommandRunner
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string, limits resources.Limits) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		limits:      limits,
		runner:      NewExecRunner(),
	}
}

// WithRunner overrides process execution. Intended for tests.
func (f *FFmpeg) WithRunner(runner CommandRunner) *FFmpeg {
	if runner != nil {
		f.runner = runner
	}
	return f
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// HasVideo reports whether the container has a video stream
func (m *VideoMetadata) HasVideo() bool {
	return m.hasStream("video")
}

// HasAudio reports whether the container has an audio stream
func (m *VideoMetadata) HasAudio() bool {
	return m.hasStream("audio")
}

// Duration returns the container duration in seconds, or 0 if unknown
func (m *VideoMetadata) Duration() float64 {
	duration, err := strconv.ParseFloat(m.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return duration
}

func (m *VideoMetadata) hasStream(codecType string) bool {
	for _, stream := range m.Streams {
		if stream.CodecType == codecType {
			return true
		}
	}
	return false
}

// ProbeVideo extracts metadata from a video file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	result, err := RunTool(ctx, f.runner, StageProbe, f.ffprobePath, args...)
	if err != nil {
		return nil, err
	}

	var metadata VideoMetadata
	if err := json.Unmarshal([]byte(result.Stdout), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &metadata, nil
}

// CheckAvailable verifies that both ffmpeg and ffprobe can be executed
func (f *FFmpeg) CheckAvailable(ctx context.Context) error {
	if _, err := RunTool(ctx, f.runner, StageProbe, f.ffmpegPath, "-hide_banner", "-version"); err != nil {
		return err
	}
	if _, err := RunTool(ctx, f.runner, StageProbe, f.ffprobePath, "-hide_banner", "-version"); err != nil {
		return err
	}
	return nil
}

// baseArgs returns the flags every ffmpeg invocation starts with
func (f *FFmpeg) baseArgs() []string {
	args := []string{"-hide_banner", "-nostdin"}
	return append(args, f.limits.ThreadArgs("-threads")...)
}
