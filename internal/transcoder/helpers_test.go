package transcoder

import (
	"context"
	"os"
	"sync"
)

// fakeRunner records invocations and simulates tool behavior
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	results map[string]CommandResult
	errs    map[string]error
	// writeOutput makes ffmpeg calls create their last argument
	writeOutput bool
	output      string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results:     make(map[string]CommandResult),
		errs:        make(map[string]error),
		writeOutput: true,
		output:      "encoded",
	}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return CommandResult{ExitCode: -1}, err
	}
	if err, ok := r.errs[name]; ok {
		return r.results[name], err
	}
	if r.writeOutput && name == "ffmpeg" && len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], []byte(r.output), 0644); err != nil {
			return CommandResult{ExitCode: 1}, err
		}
	}
	return r.results[name], nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRunner) lastCall() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}
