package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
)

// newPrompter returns a confirm func that asks on out and reads the answer
// from in. Prompts from concurrent jobs are asked one at a time.
func newPrompter(in io.Reader, out io.Writer) transcoder.ConfirmFunc {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(ctx context.Context, path string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()

		if err := ctx.Err(); err != nil {
			return false, err
		}

		fmt.Fprintf(out, "%s already exists. Overwrite? [y/N] ", path)
		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if errors.Is(err, io.EOF) && answer == "" {
			fmt.Fprintln(out)
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// interactive reports whether r can answer a prompt. Readers that are not
// files (tests, pipes wrapped by callers) are treated as interactive.
func interactive(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return true
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
