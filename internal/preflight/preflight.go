package preflight

import (
	"context"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/ports"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// OK reports whether every required check passed.
func OK(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return false
		}
	}
	return true
}

// RunAll executes the checks relevant to cfg. backend may be nil to skip the
// vision backend probe.
func RunAll(ctx context.Context, cfg *config.Config, backend ports.VisionBackend) []Result {
	if cfg == nil {
		return nil
	}

	reqs := []Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "required for frame and audio extraction"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "required for video inspection"},
	}
	if cfg.Transcript.Mode == config.TranscriptLocal {
		reqs = append(reqs, Requirement{
			Name: "whisper.cpp", Command: cfg.Transcript.WhisperBin,
			Description: "local transcription; runs continue without narration", Optional: true,
		})
	}
	results := CheckBinaries(reqs)

	if cfg.Transcript.Mode == config.TranscriptLocal {
		r := CheckFile("Whisper model", cfg.Transcript.WhisperModel)
		r.Optional = true
		results = append(results, r)
	}

	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutDir))
	results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))

	if backend != nil {
		results = append(results, CheckBackend(ctx, backend))
	}
	return results
}
