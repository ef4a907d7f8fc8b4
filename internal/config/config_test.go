package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

pipeline:
  workers: 3
  overwrite: allow
  jobTimeout: 45m
  defaultLanguage: en
  defaultQuality: high

encoding:
  videoCodec: h264_nvenc

resources:
  cpuAffinity: [0, 1, 2, 3]
  encoderThreads: 4
  lowPriority: true

redis:
  enabled: true
  jobTTL: 24h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, 45*time.Minute, cfg.Pipeline.JobTimeout)
	assert.Equal(t, "en", cfg.Pipeline.DefaultLanguage)
	assert.Equal(t, "h264_nvenc", cfg.Encoding.VideoCodec)
	assert.Equal(t, "aac", cfg.Encoding.AudioCodec)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.Resources.CPUAffinity)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.JobTTL)
	assert.NoError(t, cfg.Validate())

	policy, err := cfg.OverwritePolicy()
	require.NoError(t, err)
	assert.Equal(t, transcoder.OverwriteAllow, policy)

	limits := cfg.Limits()
	assert.Equal(t, 4, limits.EncoderThreads)
	assert.True(t, limits.LowPriority)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, "deny", cfg.Pipeline.Overwrite)
	assert.Equal(t, "medium", cfg.Pipeline.DefaultQuality)
	assert.Equal(t, "libx264", cfg.Codecs().VideoCodec)
	assert.Equal(t, "base", cfg.WhisperConfig().Model)
	assert.Equal(t, "whisper", cfg.WhisperConfig().Command)
	assert.Equal(t, 2, cfg.Resources.EncoderThreads)
	assert.Equal(t, "info", cfg.LoggerConfig().Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("SUBBURN_PIPELINE_WORKERS", "4")
	t.Setenv("SUBBURN_TOOLS_WHISPERPATH", "/opt/whisper/bin/whisper")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "/opt/whisper/bin/whisper", cfg.Tools.WhisperPath)
}

func TestLoadPrefixedPortWins(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("SUBBURN_SERVER_PORT", "7100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestValidateAcceptsUnknownQuality(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Pipeline.DefaultQuality = "4k"
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"bad overwrite", func(c *Config) { c.Pipeline.Overwrite = "sometimes" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative threads", func(c *Config) { c.Resources.EncoderThreads = -1 }},
		{"empty output dir", func(c *Config) { c.Pipeline.OutputDir = "" }},
		{"empty whisper path", func(c *Config) { c.Tools.WhisperPath = "" }},
		{"negative timeout", func(c *Config) { c.Pipeline.JobTimeout = -time.Second }},
		{"redis without host", func(c *Config) { c.Redis.Enabled = true; c.Redis.Host = "" }},
		{"zero rate", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMonitoringAndWebhookSettings(t *testing.T) {
	path := writeConfig(t, `
monitoring:
  minDiskFreeMB: 512
  maxQueueDepth: 20

webhook:
  url: http://hooks.local/jobs
  secret: abc
  maxRetries: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	thresholds := cfg.MonitoringThresholds()
	assert.Equal(t, uint64(512<<20), thresholds.MinDiskFreeBytes)
	assert.Equal(t, 20, thresholds.MaxQueueDepth)
	assert.Equal(t, 95.0, thresholds.MaxCPUPercent)
	assert.Equal(t, 30*time.Second, cfg.Monitoring.Interval)

	hooks := cfg.WebhookSettings()
	assert.Equal(t, "http://hooks.local/jobs", hooks.URL)
	assert.Equal(t, "abc", hooks.Secret)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}, hooks.RetryDelays)
}
