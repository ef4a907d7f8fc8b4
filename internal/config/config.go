package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/monitoring"
	"github.com/billtruong003/video-to-subtitle-converter/internal/resources"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcriber"
	"github.com/billtruong003/video-to-subtitle-converter/internal/webhook"
)

// EnvPrefix prefixes environment overrides, e.g. SUBBURN_PIPELINE_WORKERS
const EnvPrefix = "SUBBURN"

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Pipeline    PipelineConfig
	Tools       ToolsConfig
	Encoding    EncodingConfig
	Transcriber TranscriberConfig
	Resources   ResourcesConfig
	Logging     LoggingConfig
	RateLimit   RateLimitConfig
	Monitoring  MonitoringConfig
	Webhook     WebhookConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	UploadDir       string
	MaxUploadSize   int64
}

// RedisConfig holds Redis configuration. When disabled, jobs live in memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	JobTTL   time.Duration
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	WorkDir           string
	OutputDir         string
	Workers           int
	Overwrite         string
	JobTimeout        time.Duration
	KeepIntermediates bool
	DefaultLanguage   string
	DefaultQuality    string
}

// ToolsConfig holds external executable paths
type ToolsConfig struct {
	FFmpegPath  string
	FFprobePath string
	WhisperPath string
}

// EncodingConfig holds the codecs shared by every quality tier
type EncodingConfig struct {
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
}

// TranscriberConfig holds speech recognition settings
type TranscriberConfig struct {
	Model  string
	Device string
}

// ResourcesConfig holds process-wide resource limits
type ResourcesConfig struct {
	CPUAffinity    []int
	EncoderThreads int
	LowPriority    bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// RateLimitConfig holds upload rate limiting per client IP
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// MonitoringConfig holds host health thresholds
type MonitoringConfig struct {
	Interval      time.Duration
	MinDiskFreeMB uint64
	MaxQueueDepth int
	MaxCPUPercent float64
}

// WebhookConfig holds job notification settings
type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// Load reads configuration from file and environment variables. An empty
// path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// PORT is the conventional override on hosted platforms.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "5m")
	v.SetDefault("server.writeTimeout", "5m")
	v.SetDefault("server.shutdownTimeout", "30s")
	v.SetDefault("server.uploadDir", "uploads")
	v.SetDefault("server.maxUploadSize", 2*1024*1024*1024) // 2GB

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.jobTTL", "168h")

	// Pipeline defaults
	v.SetDefault("pipeline.workDir", "work")
	v.SetDefault("pipeline.outputDir", "outputs")
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.overwrite", "deny")
	v.SetDefault("pipeline.jobTimeout", "0s")
	v.SetDefault("pipeline.keepIntermediates", false)
	v.SetDefault("pipeline.defaultLanguage", "vi")
	v.SetDefault("pipeline.defaultQuality", transcoder.DefaultQuality)

	// Tool defaults
	v.SetDefault("tools.ffmpegPath", "ffmpeg")
	v.SetDefault("tools.ffprobePath", "ffprobe")
	v.SetDefault("tools.whisperPath", transcriber.DefaultCommand)

	// Encoding defaults
	codecs := transcoder.DefaultCodecConfig()
	v.SetDefault("encoding.videoCodec", codecs.VideoCodec)
	v.SetDefault("encoding.audioCodec", codecs.AudioCodec)
	v.SetDefault("encoding.audioBitrate", codecs.AudioBitrate)

	// Transcriber defaults
	v.SetDefault("transcriber.model", transcriber.DefaultModel)
	v.SetDefault("transcriber.device", "")

	// Resource defaults
	v.SetDefault("resources.cpuAffinity", []int{})
	v.SetDefault("resources.encoderThreads", 2)
	v.SetDefault("resources.lowPriority", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Rate limit defaults
	v.SetDefault("rateLimit.requestsPerSecond", 1.0)
	v.SetDefault("rateLimit.burst", 5)

	// Monitoring defaults
	v.SetDefault("monitoring.interval", "30s")
	v.SetDefault("monitoring.minDiskFreeMB", 1024)
	v.SetDefault("monitoring.maxQueueDepth", 100)
	v.SetDefault("monitoring.maxCPUPercent", 95.0)

	// Webhook defaults
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "30s")
	v.SetDefault("webhook.maxRetries", webhook.DefaultMaxRetries)
}

// Validate checks the configuration for values no component can run with
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.WorkDir == "" || c.Pipeline.OutputDir == "" {
		return fmt.Errorf("pipeline.workDir and pipeline.outputDir are required")
	}
	if c.Pipeline.JobTimeout < 0 {
		return fmt.Errorf("pipeline.jobTimeout must not be negative")
	}
	if _, err := transcoder.ParseOverwritePolicy(c.Pipeline.Overwrite); err != nil {
		return fmt.Errorf("pipeline.overwrite: %w", err)
	}
	if c.Tools.FFmpegPath == "" || c.Tools.FFprobePath == "" || c.Tools.WhisperPath == "" {
		return fmt.Errorf("tools paths must not be empty")
	}
	if c.Resources.EncoderThreads < 0 {
		return fmt.Errorf("resources.encoderThreads must not be negative")
	}
	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Host == "") {
		return fmt.Errorf("redis.host and redis.port are required when redis is enabled")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rateLimit.requestsPerSecond and rateLimit.burst must be positive")
	}
	if c.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be positive")
	}
	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook.maxRetries must not be negative")
	}
	return nil
}

// Limits returns the resource limits to apply at start-up
func (c *Config) Limits() resources.Limits {
	return resources.Limits{
		CPUAffinity:    c.Resources.CPUAffinity,
		EncoderThreads: c.Resources.EncoderThreads,
		LowPriority:    c.Resources.LowPriority,
	}
}

// OverwritePolicy returns the parsed overwrite policy
func (c *Config) OverwritePolicy() (transcoder.OverwritePolicy, error) {
	return transcoder.ParseOverwritePolicy(c.Pipeline.Overwrite)
}

// Codecs returns the codec settings for the profile table
func (c *Config) Codecs() transcoder.CodecConfig {
	return transcoder.CodecConfig{
		VideoCodec:   c.Encoding.VideoCodec,
		AudioCodec:   c.Encoding.AudioCodec,
		AudioBitrate: c.Encoding.AudioBitrate,
	}
}

// LoggerConfig returns the logging package configuration
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		TimeFormat: time.RFC3339,
	}
}

// WhisperConfig returns the whisper wrapper configuration
func (c *Config) WhisperConfig() transcriber.Config {
	return transcriber.Config{
		Command: c.Tools.WhisperPath,
		Model:   c.Transcriber.Model,
		Device:  c.Transcriber.Device,
	}
}

// MonitoringThresholds returns the health thresholds for the monitor
func (c *Config) MonitoringThresholds() monitoring.Thresholds {
	return monitoring.Thresholds{
		MinDiskFreeBytes: c.Monitoring.MinDiskFreeMB << 20,
		MaxQueueDepth:    c.Monitoring.MaxQueueDepth,
		MaxCPUPercent:    c.Monitoring.MaxCPUPercent,
	}
}

// WebhookSettings returns the notifier configuration
func (c *Config) WebhookSettings() webhook.Config {
	return webhook.Config{
		URL:         c.Webhook.URL,
		Secret:      c.Webhook.Secret,
		Timeout:     c.Webhook.Timeout,
		RetryDelays: webhook.BackoffDelays(c.Webhook.MaxRetries),
	}
}
