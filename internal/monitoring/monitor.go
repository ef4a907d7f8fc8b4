package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Health states reported by SystemHealth
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Snapshot holds the latest host and queue readings
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPath      string    `json:"disk_path"`
	DiskFreeBytes uint64    `json:"disk_free_bytes"`
	QueuedJobs    int       `json:"queued_jobs"`
	RunningJobs   int       `json:"running_jobs"`
	Workers       int       `json:"workers"`
	LastUpdated   time.Time `json:"last_updated"`
}

// HostStats is one reading of host resources
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskFreeBytes uint64
}

// Sampler reads host resource usage
type Sampler interface {
	Sample(ctx context.Context) (HostStats, error)
}

// QueueProvider reports job pool occupancy
type QueueProvider interface {
	Stats() (queued, running int)
	Workers() int
}

// Thresholds decide when readings become warnings or critical
type Thresholds struct {
	MinDiskFreeBytes uint64
	MaxQueueDepth    int
	MaxCPUPercent    float64
}

// DefaultThresholds returns the thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDiskFreeBytes: 1 << 30,
		MaxQueueDepth:    100,
		MaxCPUPercent:    95,
	}
}

// Monitor periodically samples host resources and pool occupancy
type Monitor struct {
	sampler    Sampler
	queue      QueueProvider
	thresholds Thresholds
	diskPath   string

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewMonitor creates a monitor that checks free space on diskPath
func NewMonitor(diskPath string, queue QueueProvider, thresholds Thresholds) *Monitor {
	return newMonitor(hostSampler{diskPath: diskPath}, diskPath, queue, thresholds)
}

func newMonitor(sampler Sampler, diskPath string, queue QueueProvider, thresholds Thresholds) *Monitor {
	return &Monitor{
		sampler:    sampler,
		queue:      queue,
		thresholds: thresholds,
		diskPath:   diskPath,
		snapshot:   Snapshot{DiskPath: diskPath},
	}
}

// Start samples immediately and then every interval until ctx is done
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if err := m.Update(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to sample host resources")
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Update(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to sample host resources")
				}
			}
		}
	}()
}

// Update takes a new reading. Pool occupancy is recorded even when the
// host sample fails.
func (m *Monitor) Update(ctx context.Context) error {
	stats, err := m.sampler.Sample(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue != nil {
		m.snapshot.QueuedJobs, m.snapshot.RunningJobs = m.queue.Stats()
		m.snapshot.Workers = m.queue.Workers()
	}
	if err != nil {
		return err
	}

	m.snapshot.CPUPercent = stats.CPUPercent
	m.snapshot.MemoryPercent = stats.MemoryPercent
	m.snapshot.DiskFreeBytes = stats.DiskFreeBytes
	m.snapshot.LastUpdated = time.Now()
	return nil
}

// Snapshot returns a copy of the latest readings
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// SystemHealth returns overall system health. Running out of disk is
// critical because every stage writes files.
func (m *Monitor) SystemHealth() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if !s.LastUpdated.IsZero() && s.DiskFreeBytes < m.thresholds.MinDiskFreeBytes {
		return HealthCritical
	}
	if m.thresholds.MaxQueueDepth > 0 && s.QueuedJobs > m.thresholds.MaxQueueDepth {
		return HealthWarning
	}
	if m.thresholds.MaxCPUPercent > 0 && s.CPUPercent > m.thresholds.MaxCPUPercent {
		return HealthWarning
	}
	return HealthHealthy
}

// Alerts returns current system alerts
func (m *Monitor) Alerts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []string
	s := m.snapshot

	if !s.LastUpdated.IsZero() && s.DiskFreeBytes < m.thresholds.MinDiskFreeBytes {
		alerts = append(alerts, fmt.Sprintf("Low disk space on %s: %d MiB free", s.DiskPath, s.DiskFreeBytes>>20))
	}
	if m.thresholds.MaxQueueDepth > 0 && s.QueuedJobs > m.thresholds.MaxQueueDepth {
		alerts = append(alerts, fmt.Sprintf("High queue depth: %d jobs pending", s.QueuedJobs))
	}
	if m.thresholds.MaxCPUPercent > 0 && s.CPUPercent > m.thresholds.MaxCPUPercent {
		alerts = append(alerts, fmt.Sprintf("High CPU usage: %.1f%%", s.CPUPercent))
	}

	return alerts
}

type hostSampler struct {
	diskPath string
}

func (s hostSampler) Sample(ctx context.Context) (HostStats, error) {
	var stats HostStats

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return stats, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}

	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read memory usage: %w", err)
	}
	stats.MemoryPercent = memStats.UsedPercent

	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return stats, fmt.Errorf("failed to read disk usage of %s: %w", s.diskPath, err)
	}
	stats.DiskFreeBytes = usage.Free

	return stats, nil
}
