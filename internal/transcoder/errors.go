package transcoder

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorKind classifies why an external tool failed
type ErrorKind string

// Tool error kinds
const (
	KindToolNotFound  ErrorKind = "tool_not_found"
	KindProcessFailed ErrorKind = "process_failed"
	KindTimeout       ErrorKind = "timeout"
	KindCanceled      ErrorKind = "canceled"
)

var (
	// ErrToolNotFound matches tool errors where the executable is missing
	ErrToolNotFound = errors.New("tool not found")
	// ErrProcessFailed matches tool errors where the process exited unsuccessfully
	ErrProcessFailed = errors.New("process execution failed")
	// ErrTimeout matches tool errors where the deadline expired
	ErrTimeout = errors.New("tool timed out")
	// ErrCanceled matches tool errors where the caller canceled the run
	ErrCanceled = errors.New("tool canceled")
	// ErrSubtitleFileMissing is returned when the subtitle to burn does not exist
	ErrSubtitleFileMissing = errors.New("subtitle file missing")
	// ErrOverwriteDenied is returned when an existing output may not be replaced
	ErrOverwriteDenied = errors.New("overwrite denied")
)

// ToolError describes a failed invocation of an external tool
type ToolError struct {
	Kind     ErrorKind
	Stage    string
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

// Error formats the failure with the command and the tail of stderr
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s %s (exit=%d): %v", e.Stage, e.Tool, e.Kind, e.ExitCode, e.Err)
	if e.Stderr != "" {
		msg += ", stderr: " + e.Stderr
	}
	return msg
}

// Unwrap exposes the underlying exec error
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels
func (e *ToolError) Is(target error) bool {
	switch target {
	case ErrToolNotFound:
		return e.Kind == KindToolNotFound
	case ErrProcessFailed:
		return e.Kind == KindProcessFailed
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// CommandLine renders the invocation for logs
func (e *ToolError) CommandLine() string {
	return strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
