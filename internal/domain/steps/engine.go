package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/sopgen/internal/domain/transcript"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

const DefaultTimeout = 5 * time.Minute

// DefaultOptions are the sampling settings used when none are configured.
var DefaultOptions = ports.GenerationOptions{
	Temperature: 0.4,
	TopP:        0.95,
	MaxTokens:   8192,
}

type Config struct {
	MaxFrames int
	Timeout   time.Duration
	Options   ports.GenerationOptions
	// TranscriptMaxChars caps the narration sent with the prompt; 0 sends it all.
	TranscriptMaxChars int
}

type Engine struct {
	backend ports.VisionBackend
	cfg     Config
}

func NewEngine(backend ports.VisionBackend, cfg Config) *Engine {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = MaxFrames
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Options == (ports.GenerationOptions{}) {
		cfg.Options = DefaultOptions
	}
	return &Engine{backend: backend, cfg: cfg}
}

// Analyzed reports which frames a request for the given sequence carries.
func (e *Engine) Analyzed(frames []types.Frame) []types.Frame {
	return Subsample(frames, e.cfg.MaxFrames)
}

// Infer asks the backend for a procedure covering frames and the narration
// segments, then validates the answer. A single request is made; failures are
// returned to the caller.
func (e *Engine) Infer(ctx context.Context, frames []types.Frame, taskContext string, segments []types.TranscriptSegment) (types.SOPRecord, error) {
	if len(frames) == 0 {
		return types.SOPRecord{}, types.Wrap(types.ErrNoFramesAvailable, "infer steps", "no frames to analyze", nil)
	}
	if err := e.backend.Check(ctx); err != nil {
		if errors.Is(err, types.ErrBackendUnavailable) {
			return types.SOPRecord{}, err
		}
		return types.SOPRecord{}, &types.BackendUnavailableError{
			Backend: e.backend.Name(),
			Model:   e.backend.Model(),
			Err:     err,
		}
	}

	sample := e.Analyzed(frames)
	images := make([][]byte, len(sample))
	for i, f := range sample {
		images[i] = f.Image
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := e.backend.Generate(genCtx, ports.GenerateRequest{
		Prompt:  BuildPrompt(sample, taskContext, e.transcriptText(segments)),
		Images:  images,
		Options: e.cfg.Options,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.SOPRecord{}, fmt.Errorf("infer steps: %w", ctx.Err())
		}
		if errors.Is(err, types.ErrBackendTimeout) {
			return types.SOPRecord{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return types.SOPRecord{}, types.Wrap(types.ErrBackendTimeout, e.backend.Name(),
				fmt.Sprintf("no response within %s from %s; retry with fewer frames or a smaller model", e.cfg.Timeout, e.backend.Model()), err)
		}
		return types.SOPRecord{}, fmt.Errorf("%s generate: %w", e.backend.Name(), err)
	}
	return ParseResponse(raw)
}

func (e *Engine) transcriptText(segments []types.TranscriptSegment) string {
	return transcript.Format(transcript.Budget(segments, e.cfg.TranscriptMaxChars))
}
