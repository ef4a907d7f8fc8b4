package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/billtruong003/video-to-subtitle-converter/internal/config"
	"github.com/billtruong003/video-to-subtitle-converter/internal/jobstore"
	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/metrics"
	"github.com/billtruong003/video-to-subtitle-converter/internal/pipeline"
	"github.com/billtruong003/video-to-subtitle-converter/internal/resources"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcriber"
	"github.com/billtruong003/video-to-subtitle-converter/internal/webhook"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

const metricsShutdownTimeout = 5 * time.Second

type runFlags struct {
	language          string
	quality           string
	overwrite         string
	outputDir         string
	workDir           string
	model             string
	workers           int
	metricsPort       int
	keepIntermediates bool
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <video>...",
		Short: "Transcribe videos and write captioned copies",
		Long: "Extracts the audio of each video, transcribes it with whisper, writes an SRT track\n" +
			"and burns it into a re-encoded copy named <name>_subtitled<ext>.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("provide at least one video. Example: captioner run lecture.mp4")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCaptioner(cmd, opts, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Spoken language code, or auto to detect")
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "", "Encoding tier: high, medium or low")
	cmd.Flags().StringVar(&flags.overwrite, "overwrite", "", "Existing output policy: deny, allow or prompt")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for the SRT and captioned video")
	cmd.Flags().StringVar(&flags.workDir, "work-dir", "", "Directory for intermediate audio files")
	cmd.Flags().StringVar(&flags.model, "model", "", "Whisper model name")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Number of videos processed at once")
	cmd.Flags().IntVar(&flags.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port while running")
	cmd.Flags().BoolVar(&flags.keepIntermediates, "keep", false, "Keep extracted audio after each job")

	return cmd
}

func runCaptioner(cmd *cobra.Command, opts *rootOptions, flags runFlags, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyRunFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	inputs, err := resolveInputs(args)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	if !transcoder.IsKnownQuality(cfg.Pipeline.DefaultQuality) {
		logger.Warnf("Unknown quality %q, using %s", cfg.Pipeline.DefaultQuality, transcoder.DefaultQuality)
	}

	limits := cfg.Limits()
	if err := resources.Apply(limits); err != nil {
		if !errors.Is(err, resources.ErrUnsupported) {
			return fmt.Errorf("apply resource limits: %w", err)
		}
		logger.Warnf("Resource limits not applied: %v", err)
	}

	policy, err := cfg.OverwritePolicy()
	if err != nil {
		return err
	}
	var confirm transcoder.ConfirmFunc
	if policy == transcoder.OverwritePrompt {
		if interactive(cmd.InOrStdin()) {
			confirm = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		} else {
			logger.Warn("Standard input is not a terminal, existing outputs will be kept")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.metricsPort > 0 {
		srv := metrics.NewServer(flags.metricsPort)
		go func() {
			if err := srv.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	ffmpeg := transcoder.NewFFmpeg(cfg.Tools.FFmpegPath, cfg.Tools.FFprobePath, limits)
	codecs := cfg.Codecs()
	codecs.VideoCodec = ffmpeg.ResolveVideoCodec(ctx, codecs.VideoCodec)
	profiles := transcoder.NewProfileTable(codecs)

	whisper := transcriber.NewWhisper(cfg.WhisperConfig(), limits)
	store := jobstore.NewMemoryStore()
	defer store.Close()

	notifier := webhook.NewService(cfg.WebhookSettings())
	defer notifier.Wait()
	var recorder pipeline.JobRecorder = store
	if notifier.Enabled() {
		recorder = webhook.NewRecorder(store, notifier)
	}

	orchestrator := pipeline.NewOrchestrator(ffmpeg, whisper, ffmpeg, recorder, profiles, logger, pipeline.Options{
		WorkDir:           cfg.Pipeline.WorkDir,
		OutputDir:         cfg.Pipeline.OutputDir,
		Model:             whisper.Model(),
		Overwrite:         policy,
		Confirm:           confirm,
		JobTimeout:        cfg.Pipeline.JobTimeout,
		KeepIntermediates: cfg.Pipeline.KeepIntermediates,
	})
	pool := pipeline.NewPool(orchestrator, cfg.Pipeline.Workers)

	jobs := make([]*models.Job, 0, len(inputs))
	for _, input := range inputs {
		job := pipeline.NewJob(input, cfg.Pipeline.DefaultLanguage, cfg.Pipeline.DefaultQuality)
		metrics.RecordJobCreated(job.Quality)
		jobs = append(jobs, job)
	}

	// Per-job failures are reported in the summary.
	_ = pool.RunAll(ctx, jobs)

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(jobs))

	failed := 0
	for _, job := range jobs {
		if !job.Succeeded() {
			failed++
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) {
	changed := cmd.Flags().Changed
	if changed("language") {
		cfg.Pipeline.DefaultLanguage = flags.language
	}
	if changed("quality") {
		cfg.Pipeline.DefaultQuality = flags.quality
	}
	if changed("overwrite") {
		cfg.Pipeline.Overwrite = flags.overwrite
	}
	if changed("output-dir") {
		cfg.Pipeline.OutputDir = flags.outputDir
	}
	if changed("work-dir") {
		cfg.Pipeline.WorkDir = flags.workDir
	}
	if changed("model") {
		cfg.Transcriber.Model = flags.model
	}
	if changed("workers") {
		cfg.Pipeline.Workers = flags.workers
	}
	if changed("keep") {
		cfg.Pipeline.KeepIntermediates = flags.keepIntermediates
	}
}

// resolveInputs checks every argument names a readable file
func resolveInputs(args []string) ([]string, error) {
	inputs := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", arg, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("input %q not found", arg)
			}
			return nil, fmt.Errorf("stat input: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("input %q is a directory", arg)
		}
		inputs = append(inputs, path)
	}
	return inputs, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
