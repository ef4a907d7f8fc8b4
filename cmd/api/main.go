package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/billtruong003/video-to-subtitle-converter/internal/config"
	"github.com/billtruong003/video-to-subtitle-converter/internal/jobstore"
	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/middleware"
	"github.com/billtruong003/video-to-subtitle-converter/internal/monitoring"
	"github.com/billtruong003/video-to-subtitle-converter/internal/pipeline"
	"github.com/billtruong003/video-to-subtitle-converter/internal/resources"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcriber"
	"github.com/billtruong003/video-to-subtitle-converter/internal/webhook"
)

const rateLimitCleanupInterval = 10 * time.Minute

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	logger, err := logging.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	policy, err := cfg.OverwritePolicy()
	if err != nil {
		logger.Fatalf("Invalid overwrite policy: %v", err)
	}
	if policy == transcoder.OverwritePrompt {
		logger.Fatal("The prompt overwrite policy needs a terminal; use deny or allow for the API server")
	}

	limits := cfg.Limits()
	if err := resources.Apply(limits); err != nil {
		if !errors.Is(err, resources.ErrUnsupported) {
			logger.Fatalf("Failed to apply resource limits: %v", err)
		}
		logger.Warnf("Resource limits not applied: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tools
	ffmpeg := transcoder.NewFFmpeg(cfg.Tools.FFmpegPath, cfg.Tools.FFprobePath, limits)
	if err := ffmpeg.CheckAvailable(ctx); err != nil {
		logger.Warnf("FFmpeg is not available, jobs will fail: %v", err)
	}

	codecs := cfg.Codecs()
	codecs.VideoCodec = ffmpeg.ResolveVideoCodec(ctx, codecs.VideoCodec)
	profiles := transcoder.NewProfileTable(codecs)
	logger.Infof("Encoding with %s", profiles.VideoCodec())

	whisper := transcriber.NewWhisper(cfg.WhisperConfig(), limits)

	// Initialize job store
	store, err := newStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize job store: %v", err)
	}
	defer store.Close()

	notifier := webhook.NewService(cfg.WebhookSettings())
	var recorder pipeline.JobRecorder = store
	if notifier.Enabled() {
		recorder = webhook.NewRecorder(store, notifier)
		logger.Infof("Job notifications go to %s", cfg.Webhook.URL)
	}

	orchestrator := pipeline.NewOrchestrator(ffmpeg, whisper, ffmpeg, recorder, profiles, logger, pipeline.Options{
		WorkDir:           cfg.Pipeline.WorkDir,
		OutputDir:         cfg.Pipeline.OutputDir,
		Model:             whisper.Model(),
		Overwrite:         policy,
		JobTimeout:        cfg.Pipeline.JobTimeout,
		KeepIntermediates: cfg.Pipeline.KeepIntermediates,
	})
	pool := pipeline.NewPool(orchestrator, cfg.Pipeline.Workers)

	if err := os.MkdirAll(cfg.Pipeline.OutputDir, 0755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}
	monitor := monitoring.NewMonitor(cfg.Pipeline.OutputDir, pool, cfg.MonitoringThresholds())
	monitor.Start(ctx, cfg.Monitoring.Interval)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.RunCleanup(ctx, rateLimitCleanupInterval)

	api := &API{
		ctx:             ctx,
		store:           store,
		monitor:         monitor,
		prober:          ffmpeg,
		pool:            pool,
		logger:          logger,
		uploadDir:       cfg.Server.UploadDir,
		outputDir:       cfg.Pipeline.OutputDir,
		maxUploadSize:   cfg.Server.MaxUploadSize,
		defaultLanguage: cfg.Pipeline.DefaultLanguage,
		defaultQuality:  cfg.Pipeline.DefaultQuality,
	}

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(api, logger, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s with %d workers", addr, pool.Workers())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}

	// Give running jobs the rest of the shutdown window, then cancel them.
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Canceling unfinished jobs")
		cancel()
		<-done
	}
	notifier.Wait()

	logger.Info("Server stopped")
}

func newStore(cfg *config.Config) (jobstore.Store, error) {
	if !cfg.Redis.Enabled {
		return jobstore.NewMemoryStore(), nil
	}
	return jobstore.NewRedisStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.JobTTL)
}

func setupRouter(api *API, logger *logging.Logger, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", api.metricsHandler())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/jobs", middleware.RateLimit(limiter), api.createJob)
		v1.GET("/jobs", api.listJobs)
		v1.GET("/jobs/:id", api.getJob)
		v1.GET("/jobs/:id/video", api.downloadVideo)
		v1.GET("/jobs/:id/subtitles", api.downloadSubtitles)
	}

	return router
}
