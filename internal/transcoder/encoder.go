package transcoder

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const encoderDetectTimeout = 10 * time.Second

// ResolveVideoCodec turns a configured codec into the one to encode with.
// "auto" selects NVENC when ffmpeg ships it and an NVIDIA device answers,
// libx264 otherwise. Explicit codecs are returned unchanged.
func (f *FFmpeg) ResolveVideoCodec(ctx context.Context, configured string) string {
	if configured != "" && configured != CodecAuto {
		return configured
	}

	ctx, cancel := context.WithTimeout(ctx, encoderDetectTimeout)
	defer cancel()

	if f.nvencAvailable(ctx) {
		log.Info().Str("codec", CodecNVENC).Msg("GPU encoder detected")
		return CodecNVENC
	}

	log.Info().Str("codec", CodecX264).Msg("No GPU encoder available, using software encoding")
	return CodecX264
}

func (f *FFmpeg) nvencAvailable(ctx context.Context) bool {
	result, err := RunTool(ctx, f.runner, StageDetectEncoder, f.ffmpegPath, "-hide_banner", "-encoders")
	if err != nil || !strings.Contains(result.Stdout, CodecNVENC) {
		return false
	}

	// ffmpeg builds list NVENC even on machines without an NVIDIA card.
	result, err = RunTool(ctx, f.runner, StageDetectEncoder, "nvidia-smi", "-L")
	if err != nil {
		return false
	}
	return strings.Contains(result.Stdout, "GPU")
}
