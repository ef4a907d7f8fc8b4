package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/billtruong003/video-to-subtitle-converter/internal/resources"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

// Whisper defaults
const (
	DefaultCommand = "whisper"
	DefaultModel   = "base"
	LanguageAuto   = "auto"
	outputFormat   = "json"
	tempDirPattern = "whisper-*"
)

// ErrInvalidTranscript is returned when the engine output cannot be used
var ErrInvalidTranscript = errors.New("invalid transcript")

// Config captures runtime settings for the whisper CLI
type Config struct {
	// Command is the whisper executable
	Command string
	// Model is the default model tier, e.g. "base" or "large-v3"
	Model string
	// Device is passed as --device when set ("cpu", "cuda")
	Device string
}

// Whisper transcribes audio files with the openai-whisper CLI
type Whisper struct {
	cfg    Config
	limits resources.Limits
	runner transcoder.CommandRunner
}

// NewWhisper creates a whisper transcriber
func NewWhisper(cfg Config, limits resources.Limits) *Whisper {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Whisper{
		cfg:    cfg,
		limits: limits,
		runner: transcoder.NewExecRunner(),
	}
}

// WithRunner overrides process execution. Intended for tests.
func (w *Whisper) WithRunner(runner transcoder.CommandRunner) *Whisper {
	if runner != nil {
		w.runner = runner
	}
	return w
}

// Model returns the configured default model
func (w *Whisper) Model() string {
	return w.cfg.Model
}

// Transcribe runs recognition over audioPath and returns the recognized
// segments. Silence yields an empty slice and no error. An empty model uses
// the configured default; an empty or "auto" language lets the engine
// detect it.
func (w *Whisper) Transcribe(ctx context.Context, audioPath, model, language string) ([]models.Segment, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("transcribe: audio path required")
	}
	if model == "" {
		model = w.cfg.Model
	}

	outputDir, err := os.MkdirTemp(filepath.Dir(audioPath), tempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("transcribe: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := w.buildArgs(audioPath, outputDir, model, language)
	if _, err := transcoder.RunTool(ctx, w.runner, transcoder.StageTranscribe, w.cfg.Command, args...); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return LoadSegments(filepath.Join(outputDir, base+"."+outputFormat))
}

func (w *Whisper) buildArgs(audioPath, outputDir, model, language string) []string {
	args := []string{
		audioPath,
		"--model", model,
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "--language", lang)
	}

	args = append(args,
		"--output_format", outputFormat,
		"--output_dir", outputDir,
	)

	if w.cfg.Device != "" {
		args = append(args, "--device", w.cfg.Device)
	}
	args = append(args, w.limits.ThreadArgs("--threads")...)

	return append(args, "--verbose", "False")
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == LanguageAuto {
		return ""
	}
	return language
}

// whisperPayload is the JSON document whisper writes per input file
type whisperPayload struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// LoadSegments reads a whisper JSON result. Segments without text are
// dropped.
func LoadSegments(jsonPath string) ([]models.Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read whisper output: %v", ErrInvalidTranscript, err)
	}
	return ParseSegments(data)
}

// ParseSegments decodes a whisper JSON document into validated segments
func ParseSegments(data []byte) ([]models.Segment, error) {
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse whisper json: %v", ErrInvalidTranscript, err)
	}

	segments := make([]models.Segment, 0, len(payload.Segments))
	for i, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segment := models.Segment{Start: seg.Start, End: seg.End, Text: text}
		if err := segment.Validate(); err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrInvalidTranscript, i+1, err)
		}
		segments = append(segments, segment)
	}

	return segments, nil
}
