package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/domain/transcript"
	"github.com/forPelevin/sopgen/internal/history"
	"github.com/forPelevin/sopgen/internal/logging"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/sopgen/internal/ports/adapters/gemini"
	"github.com/forPelevin/sopgen/internal/ports/adapters/minio"
	"github.com/forPelevin/sopgen/internal/ports/adapters/ollama"
	"github.com/forPelevin/sopgen/internal/ports/adapters/openrouter"
	"github.com/forPelevin/sopgen/internal/ports/adapters/whisperapi"
	"github.com/forPelevin/sopgen/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/sopgen/internal/preflight"
	"github.com/forPelevin/sopgen/internal/types"
	"github.com/forPelevin/sopgen/internal/usecase"
)

const objectScheme = "s3://"

// Deps are the collaborators a Runner drives. Storage and History may be nil.
type Deps struct {
	Video       ports.VideoTool
	Transcriber ports.Transcriber
	Vision      ports.VisionBackend
	History     ports.HistoryStore
	Storage     ports.ObjectStore
}

type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
	closer func() error
}

// Request is one video to document.
type Request struct {
	// Input is a local path or s3://bucket/key.
	Input   string
	Context string
	Company string
	// RunID is generated when empty.
	RunID string
	// Upload copies the run directory to storage.output_bucket under
	// UploadPrefix (RunID when empty).
	Upload       bool
	UploadPrefix string
	// RemoveLocal deletes the local run directory after a successful upload.
	RemoveLocal bool
}

type Result struct {
	RunID    string
	OutDir   string
	Manifest types.Manifest
	Record   types.SOPRecord
	Uploaded []string
}

// New wires the adapters selected by cfg. The caller owns the returned
// Runner and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	video := ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe)

	vision, err := NewVisionBackend(ctx, cfg.Vision, logger)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	deps := Deps{
		Video:       video,
		Transcriber: NewTranscriber(cfg.Transcript, video),
		Vision:      vision,
		History:     store,
	}
	if cfg.Storage.AccessKey != "" {
		s, err := minio.NewStorage(minio.StorageConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		deps.Storage = s
	}

	r := NewWithDeps(cfg, deps, logger)
	r.closer = store.Close
	return r, nil
}

func NewWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger, now: time.Now}
}

func (r *Runner) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// History exposes the configured store for listing past runs.
func (r *Runner) History() ports.HistoryStore { return r.deps.History }

func (r *Runner) Vision() ports.VisionBackend { return r.deps.Vision }

// NewTranscriber returns the provider for cfg.Mode.
func NewTranscriber(cfg config.Transcript, video ports.VideoTool) ports.Transcriber {
	switch cfg.Mode {
	case config.TranscriptLocal:
		return transcript.NewProvider(video, whispercpp.New(cfg.WhisperBin, cfg.WhisperModel))
	case config.TranscriptAPI:
		return transcript.NewProvider(video, whisperapi.New(cfg.APIKey, cfg.Model, cfg.BaseURL))
	default:
		return transcript.None{}
	}
}

// NewVisionBackend returns the backend for cfg.Backend. An empty ollama model
// is chosen from the local GPU's memory.
func NewVisionBackend(ctx context.Context, cfg config.Vision, logger *zap.Logger) (ports.VisionBackend, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch cfg.Backend {
	case config.BackendOllama:
		model := cfg.Model
		if model == "" {
			gpu := preflight.DetectGPU(ctx, nil)
			rec, ok := preflight.RecommendModel(gpu)
			if ok {
				model = rec
			} else {
				model = ollama.DefaultModel
				logger.Warn("GPU memory below the local model minimum; consider --mode api",
					zap.String("gpu", gpu.Name),
					zap.Float64("vram_gb", gpu.VRAMGB),
					zap.String(logging.FieldModel, model),
				)
			}
			logger.Info("selected local vision model",
				zap.String("gpu", gpu.Name),
				zap.String(logging.FieldModel, model),
			)
		}
		return ollama.New(cfg.OllamaHost, model), nil
	case config.BackendOpenRouter:
		model := cfg.Model
		if model == "" {
			model = openrouter.DefaultModel
		}
		return openrouter.New(cfg.APIKey, model, cfg.BaseURL), nil
	case config.BackendGemini:
		model := cfg.Model
		if model == "" {
			model = gemini.DefaultModel
		}
		return gemini.New(cfg.APIKey, model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}

func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := r.logger.With(zap.String(logging.FieldRunID, runID))
	logf := logging.Logf(log)

	if strings.TrimSpace(req.Input) == "" {
		return Result{}, errors.New("input is empty")
	}

	ws, err := openWorkspace(r.cfg.Paths.CacheDir, runID)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("remove scratch dir", zap.Error(cerr))
		}
	}()
	logf("scratch: %s", ws.dir)

	video, err := r.resolveInput(ctx, req.Input, ws.dir)
	if err != nil {
		return Result{}, err
	}

	runOutDir := buildRunOutDir(r.cfg.Paths.OutDir, req.Input, r.now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir %s: %w", runOutDir, err)
	}
	logf("output run dir: %s", runOutDir)

	company := req.Company
	if company == "" {
		company = r.cfg.Output.Company
	}
	uc := usecase.New(usecase.Deps{
		Video:       r.deps.Video,
		Transcriber: r.deps.Transcriber,
		Vision:      r.deps.Vision,
		History:     r.deps.History,
	})
	res, err := uc.Run(ctx, usecase.Input{
		Video:              video,
		Source:             req.Input,
		RunID:              runID,
		Context:            req.Context,
		Company:            company,
		Interval:           r.cfg.Sampling.IntervalSeconds,
		MaxWidth:           r.cfg.Sampling.MaxWidth,
		MaxFrames:          r.cfg.Sampling.MaxFrames,
		TranscriptMaxChars: r.cfg.Transcript.MaxChars,
		TranscriptMode:     r.cfg.Transcript.Mode,
		Timeout:            time.Duration(r.cfg.Vision.TimeoutSeconds) * time.Second,
		Options: ports.GenerationOptions{
			Temperature: r.cfg.Vision.Temperature,
			TopP:        r.cfg.Vision.TopP,
			MaxTokens:   r.cfg.Vision.MaxTokens,
		},
		Captions:   r.cfg.Output.Captions,
		KeepFrames: r.cfg.Sampling.KeepFrames,
		WorkDir:    ws.dir,
		OutDir:     runOutDir,
		Logf:       logf,
		Now:        r.now,
	})
	if err != nil {
		return Result{}, err
	}
	logf("manifest written (%d steps): %s", len(res.Manifest.Steps), filepath.Join(runOutDir, usecase.ManifestFile))

	out := Result{
		RunID:    runID,
		OutDir:   runOutDir,
		Manifest: res.Manifest,
		Record:   res.Record,
	}
	if req.Upload {
		prefix := req.UploadPrefix
		if prefix == "" {
			prefix = runID
		}
		keys, err := r.upload(ctx, runOutDir, prefix)
		if err != nil {
			return out, err
		}
		out.Uploaded = keys
		logf("uploaded %d artifacts to %s%s/%s", len(keys), objectScheme, r.cfg.Storage.OutputBucket, prefix)
		if req.RemoveLocal {
			if err := os.RemoveAll(runOutDir); err != nil {
				log.Warn("remove local run dir", zap.Error(err))
			} else {
				out.OutDir = ""
			}
		}
	}
	return out, nil
}

func (r *Runner) resolveInput(ctx context.Context, input, scratch string) (string, error) {
	if bucket, key, ok := parseObjectURL(input); ok {
		if r.deps.Storage == nil {
			return "", fmt.Errorf("input %s needs object storage; set MINIO_ACCESS_KEY and MINIO_SECRET_KEY", input)
		}
		dest := filepath.Join(scratch, "input"+filepath.Ext(key))
		if err := r.deps.Storage.Download(ctx, bucket, key, dest); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", types.Wrap(types.ErrIO, "fetch input", input, err)
			}
			return "", fmt.Errorf("fetch input %s: %w", input, err)
		}
		return dest, nil
	}
	info, err := os.Stat(input)
	if err != nil {
		return "", types.Wrap(types.ErrIO, "stat input", input, err)
	}
	if info.IsDir() {
		return "", types.Wrap(types.ErrIO, "stat input", input+" is a directory", nil)
	}
	return input, nil
}

// parseObjectURL splits s3://bucket/key.
func parseObjectURL(s string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(s, objectScheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ObjectURL formats bucket and key as s3://bucket/key.
func ObjectURL(bucket, key string) string {
	return objectScheme + bucket + "/" + key
}
