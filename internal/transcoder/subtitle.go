package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BurnOptions holds options for burning subtitles into a video
type BurnOptions struct {
	VideoPath    string
	SubtitlePath string
	OutputPath   string
	Profile      EncodingProfile
	Overwrite    OverwritePolicy
	Confirm      ConfirmFunc
}

// BurnSubtitles renders the subtitle track into the video frames and
// re-encodes with the given profile. The encode goes to a hidden sibling of
// the output and is renamed into place only on success, so a failed or
// refused run never touches an existing output.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, opts BurnOptions) error {
	if _, err := os.Stat(opts.SubtitlePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSubtitleFileMissing, opts.SubtitlePath)
		}
		return fmt.Errorf("failed to stat subtitle file: %w", err)
	}

	existed := fileExists(opts.OutputPath)
	if err := CheckOverwrite(ctx, opts.OutputPath, opts.Overwrite, opts.Confirm); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := partialPath(opts.OutputPath)
	args, err := f.buildBurnArgs(opts, tmpPath)
	if err != nil {
		return err
	}

	if _, err := RunTool(ctx, f.runner, StageBurnSubtitles, f.ffmpegPath, args...); err != nil {
		removeFile(tmpPath)
		return err
	}

	if _, err := os.Stat(tmpPath); err != nil {
		return fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}

	// Another writer may have created the output while encoding.
	if !existed && opts.Overwrite != OverwriteAllow && fileExists(opts.OutputPath) {
		removeFile(tmpPath)
		return fmt.Errorf("%w: %s", ErrOverwriteDenied, opts.OutputPath)
	}

	if err := os.Rename(tmpPath, opts.OutputPath); err != nil {
		removeFile(tmpPath)
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	return nil
}

func (f *FFmpeg) buildBurnArgs(opts BurnOptions, outputPath string) ([]string, error) {
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}
	scale, err := opts.Profile.ScaleFilter()
	if err != nil {
		return nil, err
	}

	args := f.baseArgs()
	args = append(args,
		"-i", opts.VideoPath,
		"-vf", scale+",subtitles="+EscapeFilterPath(opts.SubtitlePath),
	)
	args = append(args, opts.Profile.EncoderArgs()...)
	args = append(args, "-y", outputPath)
	return args, nil
}

// EscapeFilterPath escapes a file path for use as a filter option value
// inside an ffmpeg filtergraph. Two levels apply: the option parser treats
// backslash, quote, colon and equals as special, then the graph parser
// additionally splits on comma, semicolon and brackets.
func EscapeFilterPath(path string) string {
	return escapeChars(escapeChars(path, `\':=`), `\'[],;`)
}

func escapeChars(value, special string) string {
	var b strings.Builder
	b.Grow(len(value) * 2)
	for _, r := range value {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
