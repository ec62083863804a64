package frames

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

type Sampler struct {
	video   ports.VideoTool
	scratch string
}

// NewSampler returns a sampler that decodes into temporary directories under
// scratchDir (os.TempDir when empty).
func NewSampler(video ports.VideoTool, scratchDir string) *Sampler {
	return &Sampler{video: video, scratch: scratchDir}
}

// Stride converts a sampling interval into a frame step for the given rate.
func Stride(fps, interval float64) int {
	s := int(math.Round(fps * interval))
	if s < 1 {
		return 1
	}
	return s
}

func (s *Sampler) Probe(ctx context.Context, video string) (types.VideoInfo, error) {
	info, err := s.video.Probe(ctx, video)
	if err != nil {
		return types.VideoInfo{}, classify(types.ErrIO, "probe", err)
	}
	if info.FPS <= 0 || info.FrameCount <= 0 {
		return info, types.Wrap(types.ErrIO, "probe", fmt.Sprintf("%s has no decodable video frames", video), nil)
	}
	return info, nil
}

// Sample decodes one frame every interval seconds, scaled down to maxWidth
// when wider. It returns the whole sequence or an error, never a prefix.
func (s *Sampler) Sample(ctx context.Context, video string, interval float64, maxWidth int) ([]types.Frame, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sample frames: interval must be > 0, got %v", interval)
	}
	info, err := s.Probe(ctx, video)
	if err != nil {
		return nil, err
	}
	stride := Stride(info.FPS, interval)

	dir, err := os.MkdirTemp(s.scratch, "frames-*")
	if err != nil {
		return nil, fmt.Errorf("sample frames: create decode dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := s.video.ExtractFrames(ctx, ports.SampleRequest{
		Video:    video,
		Stride:   stride,
		MaxWidth: maxWidth,
		OutDir:   dir,
	})
	if err != nil {
		return nil, classify(types.ErrDecode, "extract frames", err)
	}

	out := make([]types.Frame, 0, len(paths))
	for k, p := range paths {
		ordinal := k * stride
		if ordinal >= info.FrameCount {
			break
		}
		ts := float64(ordinal) / info.FPS
		if info.Duration > 0 && ts > info.Duration {
			break
		}
		img, err := os.ReadFile(p)
		if err != nil {
			return nil, types.Wrap(types.ErrDecode, "read frame", p, err)
		}
		if len(img) == 0 {
			return nil, types.Wrap(types.ErrDecode, "read frame", p+" is empty", nil)
		}
		out = append(out, types.Frame{Ordinal: ordinal, Timestamp: ts, Image: img})
	}
	if len(out) == 0 {
		return nil, types.Wrap(types.ErrDecode, "extract frames", "decoder produced no frames", nil)
	}
	return out, nil
}

// classify keeps an existing taxonomy marker or context error and tags
// everything else with marker.
func classify(marker error, op string, err error) error {
	switch {
	case errors.Is(err, types.ErrIO), errors.Is(err, types.ErrDecode):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return types.Wrap(marker, op, "", err)
}
