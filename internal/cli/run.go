package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/metrics"
	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/render"
	"github.com/forPelevin/sopgen/internal/tracing"
)

const defaultRunTimeout = time.Hour

// runFlags are the root command's per-run overrides. Only flags the user set
// replace configured values.
type runFlags struct {
	taskContext string
	company     string
	out         string
	mode        string
	backend     string
	model       string
	transcript  string
	interval    float64
	maxWidth    int
	maxFrames   int
	captions    bool
	keepFrames  bool
	upload      bool
	timeout     time.Duration
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.taskContext, "context", "", "Free-text description of the task shown in the video")
	fl.StringVar(&f.company, "company", "", "Company name for the document header")
	fl.StringVar(&f.out, "out", "", "Output directory (default from config, ./sop_output)")
	fl.StringVar(&f.mode, "mode", os.Getenv("SOPGEN_MODE"), "Shortcut: local (ollama + whisper.cpp) or api (gemini + hosted whisper)")
	fl.StringVar(&f.backend, "backend", "", "Vision backend: ollama, openrouter or gemini")
	fl.StringVar(&f.model, "model", "", "Vision model (default depends on backend and GPU)")
	fl.StringVar(&f.transcript, "transcript", "", "Transcription: local, api or none")
	fl.Float64Var(&f.interval, "interval", 0, "Seconds between sampled frames (default 2)")
	fl.IntVar(&f.maxWidth, "max-width", 0, "Maximum frame width in pixels (default 512)")
	fl.IntVar(&f.maxFrames, "max-frames", 0, "Frames sent to the vision model (default 20)")
	fl.BoolVar(&f.captions, "captions", false, "Also write steps.ass, a subtitle track of the steps")
	fl.BoolVar(&f.keepFrames, "keep-frames", false, "Keep every sampled frame under frames/ in the output")
	fl.BoolVar(&f.upload, "upload", false, "Upload the run directory to storage.output_bucket")
	fl.DurationVar(&f.timeout, "timeout", defaultRunTimeout, "Deadline for the whole run")
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if strings.TrimSpace(f.mode) != "" {
		switch m := strings.ToLower(strings.TrimSpace(f.mode)); m {
		case config.ModeLocal, config.ModeAPI:
			cfg.ApplyMode(m)
		default:
			return fmt.Errorf("--mode must be local or api (got %q)", f.mode)
		}
	}
	if fl.Changed("backend") {
		cfg.Vision.Backend = f.backend
	}
	if fl.Changed("model") {
		cfg.Vision.Model = f.model
	}
	if fl.Changed("transcript") {
		cfg.Transcript.Mode = f.transcript
	}
	if fl.Changed("out") {
		cfg.Paths.OutDir = f.out
	}
	if fl.Changed("interval") {
		cfg.Sampling.IntervalSeconds = f.interval
	}
	if fl.Changed("max-width") {
		cfg.Sampling.MaxWidth = f.maxWidth
	}
	if fl.Changed("max-frames") {
		cfg.Sampling.MaxFrames = f.maxFrames
	}
	if fl.Changed("captions") {
		cfg.Output.Captions = f.captions
	}
	if fl.Changed("keep-frames") {
		cfg.Sampling.KeepFrames = f.keepFrames
	}
	if fl.Changed("company") {
		cfg.Output.Company = f.company
	}
	return nil
}

func run(cmd *cobra.Command, cc *commandContext, f *runFlags, input string) error {
	if f.timeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	if cc.cfg == nil {
		if err := cc.load(); err != nil {
			return err
		}
	}
	if err := f.apply(cmd, cc.cfg); err != nil {
		return err
	}
	cfg, logger, err := cc.ready()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !strings.HasPrefix(input, "s3://") {
		abs, err := filepath.Abs(input)
		if err != nil {
			return err
		}
		input = abs
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}
	if cfg.Metrics.Addr != "" {
		srv := metrics.StartMetricsServer(cfg.Metrics.Addr, logger)
		defer func() { _ = srv.Close() }()
	}

	runner, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	res, err := runner.Run(ctx, pipeline.Request{
		Input:   input,
		Context: f.taskContext,
		Company: cfg.Output.Company,
		Upload:  f.upload,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%d steps)\n", orUntitled(res.Record.Title), len(res.Record.Steps))
	fmt.Fprintf(out, "document: %s\n", filepath.Join(res.OutDir, render.DocumentFile))
	if len(res.Uploaded) > 0 {
		fmt.Fprintf(out, "uploaded: %d files to %s\n", len(res.Uploaded),
			pipeline.ObjectURL(cfg.Storage.OutputBucket, res.RunID))
	}
	return nil
}

func orUntitled(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Untitled procedure"
	}
	return s
}
