package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ExtractAudio demuxes the audio track of a video into audioPath. The
// container is chosen by ffmpeg from the output extension and an existing
// file at audioPath is replaced.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if err := os.MkdirAll(filepath.Dir(audioPath), 0755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}

	if _, err := RunTool(ctx, f.runner, StageExtractAudio, f.ffmpegPath, f.buildAudioArgs(videoPath, audioPath)...); err != nil {
		removeFile(audioPath)
		return err
	}

	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("ffmpeg completed but audio file is missing: %w", err)
	}

	return nil
}

func (f *FFmpeg) buildAudioArgs(videoPath, audioPath string) []string {
	args := f.baseArgs()
	args = append(args,
		"-i", videoPath,
		"-vn",
		"-q:a", "0",
		"-map", "a",
		"-y", audioPath,
	)
	return args
}
