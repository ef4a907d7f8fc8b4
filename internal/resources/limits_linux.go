//go:build linux

package resources

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Linux scopes both affinity and niceness to a single thread, so every
// thread of the process is updated. Threads created later inherit from
// their creator.

func setAffinity(cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, core := range cores {
		set.Set(core)
	}

	return forEachThread(func(tid int) error {
		return unix.SchedSetaffinity(tid, &set)
	})
}

func setNice(nice int) error {
	return forEachThread(func(tid int) error {
		return unix.Setpriority(unix.PRIO_PROCESS, tid, nice)
	})
}

func forEachThread(fn func(tid int) error) error {
	entries, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return fn(0)
	}

	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		// Threads may exit between listing and update.
		if err := fn(tid); err != nil && err != unix.ESRCH {
			return fmt.Errorf("thread %d: %w", tid, err)
		}
	}

	return nil
}
