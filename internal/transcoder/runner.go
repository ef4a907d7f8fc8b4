package transcoder

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Stage names reported in tool errors and metrics
const (
	StageProbe         = "probe"
	StageDetectEncoder = "detect_encoder"
	StageExtractAudio  = "extract_audio"
	StageTranscribe    = "transcribe"
	StageBurnSubtitles = "burn_subtitles"
)

const (
	stderrTailLines     = 20
	stderrTailMaxLength = 4096
)

// CommandResult holds the captured output of one tool invocation
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandRunner abstracts process execution so tools can be faked in tests
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands via os/exec
type ExecRunner struct{}

// NewExecRunner returns the production command runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes one command and captures stdout, stderr and the exit code
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// RunTool runs an external tool and classifies any failure into a *ToolError
func RunTool(ctx context.Context, runner CommandRunner, stage, name string, args ...string) (CommandResult, error) {
	result, err := runner.Run(ctx, name, args...)

	event := log.Debug()
	if err != nil {
		event = log.Warn()
	}
	event.
		Str("stage", stage).
		Str("tool", name).
		Strs("args", args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Tool invocation finished")

	if err != nil {
		return result, classifyError(ctx, stage, name, args, result, err)
	}
	return result, nil
}

func classifyError(ctx context.Context, stage, name string, args []string, result CommandResult, err error) *ToolError {
	toolErr := &ToolError{
		Stage:    stage,
		Tool:     name,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   tail(result.Stderr),
		Err:      err,
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		toolErr.Kind = KindTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		toolErr.Kind = KindCanceled
	case isNotFound(err):
		toolErr.Kind = KindToolNotFound
	default:
		toolErr.Kind = KindProcessFailed
	}

	return toolErr
}

func isNotFound(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pathErr *exec.Error
	if errors.As(err, &pathErr) {
		return true
	}
	return isMissingFile(err)
}

// tail keeps the last lines of a tool's stderr for error reports
func tail(stderr string) string {
	stderr = strings.TrimRight(stderr, "\n")
	if stderr == "" {
		return ""
	}

	lines := strings.Split(stderr, "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	out := strings.Join(lines, "\n")
	if len(out) > stderrTailMaxLength {
		out = out[len(out)-stderrTailMaxLength:]
	}
	return out
}
