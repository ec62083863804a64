package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

const framePattern = "frame_%06d.jpg"

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractFrames(ctx context.Context, req ports.SampleRequest) ([]string, error) {
	if req.Stride < 1 {
		req.Stride = 1
	}
	args := []string{
		"-v", "error",
		"-y",
		"-i", req.Video,
		"-map", "0:v:0",
		"-vf", frameFilter(req.Stride, req.MaxWidth),
		"-fps_mode", "passthrough",
		"-q:v", "3",
		filepath.Join(req.OutDir, framePattern),
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extract frames: %w\n%s", err, string(b))
	}

	paths, err := filepath.Glob(filepath.Join(req.OutDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// frameFilter keeps every stride-th decoded frame and scales frames wider than
// maxWidth down to it, keeping the aspect ratio with an even height.
func frameFilter(stride, maxWidth int) string {
	f := fmt.Sprintf("select='not(mod(n\\,%d))'", stride)
	if maxWidth > 0 {
		f += fmt.Sprintf(",scale='min(iw\\,%d)':-2", maxWidth)
	}
	return f
}

// ExtractAudio writes a mono 16 kHz track. The container follows the output
// extension: .mp3 is encoded with libmp3lame, anything else as PCM wav.
func (a *Adapter) ExtractAudio(ctx context.Context, video, outPath string) error {
	args := []string{
		"-v", "error",
		"-y",
		"-i", video,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
	}
	if strings.EqualFold(filepath.Ext(outPath), ".mp3") {
		args = append(args, "-c:a", "libmp3lame", "-b:a", "64k")
	} else {
		args = append(args, "-f", "wav")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) Probe(ctx context.Context, video string) (types.VideoInfo, error) {
	st, err := os.Stat(video)
	if err != nil {
		return types.VideoInfo{}, types.Wrap(types.ErrIO, "open video", "", err)
	}
	if st.IsDir() {
		return types.VideoInfo{}, types.Wrap(types.ErrIO, "open video", video+" is a directory", nil)
	}
	if st.Size() == 0 {
		return types.VideoInfo{}, types.Wrap(types.ErrIO, "open video", video+" is empty", nil)
	}

	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-hide_banner",
		"-select_streams", "v:0",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", video,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.VideoInfo{}, types.Wrap(types.ErrIO, "ffprobe", strings.TrimSpace(string(b)), err)
	}
	info, err := parseProbe(b)
	if err != nil {
		return types.VideoInfo{}, types.Wrap(types.ErrIO, "ffprobe", video, err)
	}
	return info, nil
}
