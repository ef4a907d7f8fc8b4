package resources

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
)

// ErrUnsupported is returned when the platform cannot apply a limit
var ErrUnsupported = errors.New("resource limit not supported on this platform")

// lowPriorityNice is the niceness applied when LowPriority is set
const lowPriorityNice = 10

// Limits holds process-wide resource limits. They are applied once at
// process start and inherited by every spawned tool.
type Limits struct {
	CPUAffinity    []int
	EncoderThreads int
	LowPriority    bool
}

// IsZero reports whether no limit is configured
func (l Limits) IsZero() bool {
	return len(l.CPUAffinity) == 0 && l.EncoderThreads <= 0 && !l.LowPriority
}

// ThreadArgs returns the thread cap flag for a tool, or nothing when no cap
// is configured
func (l Limits) ThreadArgs(flag string) []string {
	if l.EncoderThreads <= 0 {
		return nil
	}
	return []string{flag, strconv.Itoa(l.EncoderThreads)}
}

// Validate checks the limits against the number of logical CPUs
func (l Limits) Validate(numCPU int) error {
	if l.EncoderThreads < 0 {
		return fmt.Errorf("encoder threads must not be negative, got %d", l.EncoderThreads)
	}

	seen := make(map[int]bool, len(l.CPUAffinity))
	for _, core := range l.CPUAffinity {
		if core < 0 || (numCPU > 0 && core >= numCPU) {
			return fmt.Errorf("cpu core %d out of range (machine has %d logical cpus)", core, numCPU)
		}
		if seen[core] {
			return fmt.Errorf("cpu core %d listed twice", core)
		}
		seen[core] = true
	}

	return nil
}

// Apply pins the process to the configured cores and lowers its priority.
// Call it once from the entry point before any job starts.
func Apply(l Limits) error {
	if len(l.CPUAffinity) == 0 && !l.LowPriority {
		return nil
	}

	numCPU, err := cpu.Counts(true)
	if err != nil {
		return fmt.Errorf("failed to count cpus: %w", err)
	}

	if err := l.Validate(numCPU); err != nil {
		return err
	}

	if len(l.CPUAffinity) > 0 {
		if err := setAffinity(l.CPUAffinity); err != nil {
			return fmt.Errorf("failed to set cpu affinity: %w", err)
		}
		log.Info().Ints("cores", l.CPUAffinity).Msg("CPU affinity applied")
	}

	if l.LowPriority {
		if err := setNice(lowPriorityNice); err != nil {
			return fmt.Errorf("failed to lower process priority: %w", err)
		}
		log.Info().Int("nice", lowPriorityNice).Msg("Process priority lowered")
	}

	return nil
}
