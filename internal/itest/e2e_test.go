//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/render"
	"github.com/forPelevin/sopgen/internal/types"
)

// TestE2E runs the whole pipeline against the backend selected by the
// environment (SOPGEN_BACKEND, SOPGEN_MODEL, SOPGEN_VISION_API_KEY, OLLAMA_HOST).
func TestE2E(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")

	wav := filepath.Join(tmp, "speech.wav")
	text := "First, open the cabinet door. Next, lift the filter out. Finally, close the door."
	if b, err := exec.Command("espeak-ng", "-w", wav, text).CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "testsrc=s=1280x720:d=12:r=25",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	dur, err := probeDurationSeconds(in)
	if err != nil {
		t.Fatalf("probe fixture: %v", err)
	}

	t.Setenv("SOPGEN_OUT_DIR", filepath.Join(tmp, "out"))
	t.Setenv("SOPGEN_CACHE_DIR", filepath.Join(tmp, "cache"))
	t.Setenv("SOPGEN_HISTORY_DRIVER", config.HistoryNone)
	cfg, _, _, err := config.Load(filepath.Join(tmp, "absent.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Sampling.IntervalSeconds = 3
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	runner, err := pipeline.New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	defer runner.Close()
	if err := runner.Vision().Check(ctx); err != nil {
		t.Fatalf("vision backend not reachable: %v", err)
	}

	res, err := runner.Run(ctx, pipeline.Request{Input: in, Context: "Replacing a cabinet air filter"})
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(res.OutDir, render.DocumentFile)); err != nil {
		t.Fatalf("missing document: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(res.OutDir, "manifest.json"))
	if err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.FramesSampled == 0 {
		t.Fatalf("no frames sampled from %.1fs fixture", dur)
	}
	for _, s := range m.Steps {
		if s.Image == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(res.OutDir, s.Image)); err != nil {
			t.Fatalf("step %d image missing: %v", s.StepNumber, err)
		}
	}
}
