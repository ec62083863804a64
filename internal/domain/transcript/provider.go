package transcript

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

// Provider extracts the audio track of a video and hands it to a recognizer.
type Provider struct {
	video ports.VideoTool
	asr   ports.ASR
}

func NewProvider(video ports.VideoTool, asr ports.ASR) *Provider {
	return &Provider{video: video, asr: asr}
}

func (p *Provider) Transcribe(ctx context.Context, video, workDir string) ([]types.TranscriptSegment, error) {
	audio := filepath.Join(workDir, "audio"+p.asr.AudioExt())
	if err := p.video.ExtractAudio(ctx, video, audio); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	segs, err := p.asr.Transcribe(ctx, audio, workDir)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return segs, nil
}

// None is used when transcription is disabled; it always yields no speech.
type None struct{}

func (None) Transcribe(context.Context, string, string) ([]types.TranscriptSegment, error) {
	return nil, nil
}
