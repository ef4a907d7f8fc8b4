package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSampler struct {
	stats HostStats
	err   error
}

func (s *staticSampler) Sample(ctx context.Context) (HostStats, error) {
	return s.stats, s.err
}

type staticQueue struct {
	queued, running, workers int
}

func (q staticQueue) Stats() (int, int) { return q.queued, q.running }
func (q staticQueue) Workers() int      { return q.workers }

func TestSystemHealth(t *testing.T) {
	thresholds := Thresholds{MinDiskFreeBytes: 100, MaxQueueDepth: 5, MaxCPUPercent: 90}

	tests := []struct {
		name       string
		stats      HostStats
		queue      staticQueue
		wantHealth string
		wantAlerts int
	}{
		{"healthy", HostStats{CPUPercent: 10, DiskFreeBytes: 1000}, staticQueue{queued: 1, workers: 2}, HealthHealthy, 0},
		{"low disk", HostStats{CPUPercent: 10, DiskFreeBytes: 50}, staticQueue{workers: 2}, HealthCritical, 1},
		{"deep queue", HostStats{DiskFreeBytes: 1000}, staticQueue{queued: 6, workers: 2}, HealthWarning, 1},
		{"busy cpu", HostStats{CPUPercent: 99, DiskFreeBytes: 1000}, staticQueue{workers: 2}, HealthWarning, 1},
		{"everything", HostStats{CPUPercent: 99, DiskFreeBytes: 1}, staticQueue{queued: 9}, HealthCritical, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMonitor(&staticSampler{stats: tt.stats}, "/data", tt.queue, thresholds)
			require.NoError(t, m.Update(context.Background()))

			assert.Equal(t, tt.wantHealth, m.SystemHealth())
			assert.Len(t, m.Alerts(), tt.wantAlerts)
		})
	}
}

func TestUpdateRecordsQueueOnSampleError(t *testing.T) {
	m := newMonitor(&staticSampler{err: errors.New("no /proc")}, "/data", staticQueue{queued: 3, running: 2, workers: 2}, DefaultThresholds())

	err := m.Update(context.Background())
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.QueuedJobs)
	assert.Equal(t, 2, snap.RunningJobs)
	assert.Equal(t, 2, snap.Workers)
	assert.True(t, snap.LastUpdated.IsZero())
	// Without a host reading the disk check is skipped.
	assert.Equal(t, HealthHealthy, m.SystemHealth())
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newMonitor(&staticSampler{stats: HostStats{CPUPercent: 5, MemoryPercent: 40, DiskFreeBytes: 1 << 40}}, "/data", nil, DefaultThresholds())
	require.NoError(t, m.Update(context.Background()))

	snap := m.Snapshot()
	snap.CPUPercent = 100
	assert.Equal(t, 5.0, m.Snapshot().CPUPercent)
	assert.Equal(t, "/data", m.Snapshot().DiskPath)
	assert.Equal(t, 40.0, m.Snapshot().MemoryPercent)
}

func TestHostSampler(t *testing.T) {
	stats, err := hostSampler{diskPath: t.TempDir()}.Sample(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	assert.Greater(t, stats.DiskFreeBytes, uint64(0))
	assert.GreaterOrEqual(t, stats.MemoryPercent, 0.0)
}
