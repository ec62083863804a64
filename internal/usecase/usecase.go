package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forPelevin/sopgen/internal/domain/captions"
	"github.com/forPelevin/sopgen/internal/domain/frames"
	"github.com/forPelevin/sopgen/internal/domain/match"
	"github.com/forPelevin/sopgen/internal/domain/steps"
	"github.com/forPelevin/sopgen/internal/domain/transcript"
	"github.com/forPelevin/sopgen/internal/metrics"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/render"
	"github.com/forPelevin/sopgen/internal/tracing"
	"github.com/forPelevin/sopgen/internal/types"
)

const (
	ManifestFile = "manifest.json"
	CaptionsFile = "steps.ass"
	FramesDir    = "frames"

	StageSample     = "sample_frames"
	StageTranscribe = "transcribe"
	StageInfer      = "infer_steps"
	StageRender     = "render"
)

type Deps struct {
	Video       ports.VideoTool
	Transcriber ports.Transcriber
	Vision      ports.VisionBackend
	// History is optional.
	History ports.HistoryStore
}

type Usecase struct {
	d      Deps
	tracer trace.Tracer
}

func New(d Deps) Usecase {
	if d.Transcriber == nil {
		d.Transcriber = transcript.None{}
	}
	return Usecase{d: d, tracer: tracing.Tracer("sopgen/usecase")}
}

type Input struct {
	Video string
	// Source is what the manifest and history report as the input; defaults
	// to Video. Worker runs set it to the object key.
	Source string
	RunID  string

	Context string
	Company string

	Interval           float64
	MaxWidth           int
	MaxFrames          int
	TranscriptMaxChars int
	TranscriptMode     string
	Timeout            time.Duration
	Options            ports.GenerationOptions

	Captions   bool
	KeepFrames bool

	WorkDir string
	OutDir  string
	Logf    func(format string, args ...any)
	Now     func() time.Time
}

type Result struct {
	Record   types.SOPRecord
	Manifest types.Manifest
	Output   render.Output
}

func (u Usecase) Run(ctx context.Context, in Input) (res Result, err error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	now := in.Now
	if now == nil {
		now = time.Now
	}
	source := in.Source
	if source == "" {
		source = in.Video
	}
	started := now()

	ctx, span := u.tracer.Start(ctx, "generate_sop", trace.WithAttributes(
		attribute.String("run.id", in.RunID),
		attribute.String("video", source),
		attribute.String("backend", u.d.Vision.Name()),
	))
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
		span.End()
	}()

	var timings []types.StageTiming
	stage := func(name string, fn func(ctx context.Context) error) error {
		sctx, sspan := u.tracer.Start(ctx, name)
		defer sspan.End()
		t0 := time.Now()
		ferr := fn(sctx)
		d := time.Since(t0)
		metrics.StageDuration.WithLabelValues(name).Observe(d.Seconds())
		timings = append(timings, types.StageTiming{Stage: name, Seconds: d.Seconds()})
		if ferr != nil {
			sspan.RecordError(ferr)
			sspan.SetStatus(codes.Error, ferr.Error())
		}
		return ferr
	}

	// frames
	sampler := frames.NewSampler(u.d.Video, in.WorkDir)
	var (
		sampled  []types.Frame
		duration float64
	)
	logf("sampling frames every %.1fs", in.Interval)
	if err := stage(StageSample, func(ctx context.Context) error {
		var serr error
		sampled, serr = sampler.Sample(ctx, in.Video, in.Interval, in.MaxWidth)
		if serr != nil {
			return serr
		}
		if in.Captions {
			if info, perr := sampler.Probe(ctx, in.Video); perr == nil {
				duration = info.Duration
			}
		}
		return nil
	}); err != nil {
		return Result{}, err
	}
	metrics.FramesSampledTotal.Add(float64(len(sampled)))
	logf("sampled %d frames", len(sampled))

	var persisted <-chan error
	awaitPersisted := func() {
		if persisted == nil {
			return
		}
		if perr := <-persisted; perr != nil {
			logf("warning: could not keep sampled frames: %v", perr)
		}
		persisted = nil
	}
	if in.KeepFrames {
		persisted = frames.PersistAdvisory(sampled, filepath.Join(in.OutDir, FramesDir))
		defer awaitPersisted()
	}

	// transcript
	var segs []types.TranscriptSegment
	_ = stage(StageTranscribe, func(ctx context.Context) error {
		var terr error
		segs, terr = u.d.Transcriber.Transcribe(ctx, in.Video, in.WorkDir)
		if terr != nil {
			logf("warning: transcription failed, continuing without narration: %v", terr)
			segs = nil
		}
		return terr
	})
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("transcribe: %w", ctx.Err())
	}
	logf("transcript: %d segments", len(segs))

	// steps
	engine := steps.NewEngine(u.d.Vision, steps.Config{
		MaxFrames:          in.MaxFrames,
		Timeout:            in.Timeout,
		Options:            in.Options,
		TranscriptMaxChars: in.TranscriptMaxChars,
	})
	analyzed := engine.Analyzed(sampled)
	var rec types.SOPRecord
	logf("analyzing %d frames with %s (%s)", len(analyzed), u.d.Vision.Name(), u.d.Vision.Model())
	if err := stage(StageInfer, func(ctx context.Context) error {
		var ierr error
		rec, ierr = engine.Infer(ctx, sampled, in.Context, segs)
		return ierr
	}); err != nil {
		switch {
		case errors.Is(err, types.ErrMalformedResponse):
			metrics.MalformedResponsesTotal.WithLabelValues(u.d.Vision.Name()).Inc()
		case errors.Is(err, types.ErrBackendTimeout):
			metrics.BackendTimeoutsTotal.WithLabelValues(u.d.Vision.Name()).Inc()
		}
		return Result{}, err
	}
	metrics.FramesAnalyzedTotal.Add(float64(len(analyzed)))
	logf("identified %d steps: %q", len(rec.Steps), rec.Title)

	// render
	assignments := match.Assign(rec, sampled)
	var out render.Output
	if err := stage(StageRender, func(context.Context) error {
		var rerr error
		out, rerr = render.Markdown{}.Render(render.Document{
			Company:     in.Company,
			Record:      rec,
			Assignments: assignments,
			Date:        started,
		}, in.OutDir)
		if rerr != nil {
			return rerr
		}
		if in.Captions {
			ass := captions.RenderStepsASS(rec, duration)
			if rerr = writeFile(filepath.Join(in.OutDir, CaptionsFile), []byte(ass)); rerr != nil {
				return fmt.Errorf("render: write captions: %w", rerr)
			}
		}
		return nil
	}); err != nil {
		return Result{}, err
	}

	awaitPersisted()

	m := types.Manifest{
		RunID:          in.RunID,
		Input:          source,
		Title:          rec.Title,
		Backend:        u.d.Vision.Name(),
		Model:          u.d.Vision.Model(),
		TranscriptMode: in.TranscriptMode,
		FramesSampled:  len(sampled),
		FramesAnalyzed: len(analyzed),
		Document:       out.Document,
		Record:         out.Record,
		Steps:          make([]types.ManifestStep, 0, len(assignments)),
		Timings:        timings,
	}
	if in.Captions {
		m.Captions = CaptionsFile
	}
	for i, a := range assignments {
		ms := types.ManifestStep{
			StepNumber:       a.Step.StepNumber,
			TimestampSeconds: a.Step.TimestampSeconds,
		}
		if img, ok := out.Images[i+1]; ok {
			ms.Image = img
			ms.FrameTimestamp = a.Frame.Timestamp
		}
		m.Steps = append(m.Steps, ms)
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFile(filepath.Join(in.OutDir, ManifestFile), b); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	elapsed := now().Sub(started)
	if u.d.History != nil {
		herr := u.d.History.Record(ctx, types.HistoryEntry{
			ID:                in.RunID,
			Title:             rec.Title,
			Description:       rec.Description,
			StepCount:         len(rec.Steps),
			Video:             source,
			OutputDir:         in.OutDir,
			Backend:           u.d.Vision.Name(),
			Model:             u.d.Vision.Model(),
			ProcessingSeconds: elapsed.Seconds(),
			CreatedAt:         started.UTC(),
		})
		if herr != nil {
			logf("warning: record history: %v", herr)
		}
	}

	for _, t := range timings {
		logf("timing %-14s %6.1fs", t.Stage, t.Seconds)
	}
	logf("timing %-14s %6.1fs", "total", elapsed.Seconds())

	return Result{Record: rec, Manifest: m, Output: out}, nil
}

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}
