package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Passed || results[1].Passed || results[2].Passed {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail %q", results[2].Detail)
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if r := CheckDirectoryAccess("out", dir); !r.Passed {
		t.Fatalf("expected pass: %+v", r)
	}
	if r := CheckDirectoryAccess("out", filepath.Join(dir, "a", "b")); !r.Passed || !strings.Contains(r.Detail, "will be created") {
		t.Fatalf("expected creatable dir to pass: %+v", r)
	}
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckDirectoryAccess("out", file); r.Passed {
		t.Fatalf("expected file to fail: %+v", r)
	}
}

type stubBackend struct{ err error }

func (s stubBackend) Name() string                { return "stub" }
func (s stubBackend) Model() string               { return "m" }
func (s stubBackend) Check(context.Context) error { return s.err }
func (s stubBackend) Generate(context.Context, ports.GenerateRequest) (string, error) {
	return "", nil
}

func TestCheckBackend(t *testing.T) {
	if r := CheckBackend(context.Background(), stubBackend{}); !r.Passed {
		t.Fatalf("expected pass: %+v", r)
	}
	err := &types.BackendUnavailableError{Backend: "stub", Reason: "run `ollama pull m`"}
	r := CheckBackend(context.Background(), stubBackend{err: err})
	if r.Passed || r.Detail != "run `ollama pull m`" {
		t.Fatalf("unexpected result: %+v", r)
	}
	r = CheckBackend(context.Background(), stubBackend{err: errors.New("boom")})
	if r.Passed || r.Detail != "boom" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestRunAllAndOK(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.FFmpeg = "clearly-not-present-ffmpeg"
	cfg.Tools.FFprobe = "clearly-not-present-ffprobe"
	cfg.Transcript.Mode = config.TranscriptNone
	cfg.Paths.OutDir = t.TempDir()
	cfg.Paths.CacheDir = t.TempDir()

	results := RunAll(context.Background(), &cfg, stubBackend{})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	if OK(results) {
		t.Fatal("missing ffmpeg should fail preflight")
	}
	if !OK([]Result{{Passed: true}, {Optional: true}}) {
		t.Fatal("optional failures should not fail preflight")
	}
}

func TestParseNvidiaSMIAndRecommend(t *testing.T) {
	tests := []struct {
		out     string
		model   string
		ok      bool
		wantErr bool
	}{
		{out: "NVIDIA RTX 6000 Ada Generation, 49140\n", model: ModelLarge, ok: true},
		{out: "NVIDIA GeForce RTX 4090, 24564\nNVIDIA GeForce RTX 3060, 12288\n", model: ModelSmall, ok: true},
		{out: "NVIDIA GeForce RTX 3060, 12288", model: ModelSmall, ok: true},
		{out: "NVIDIA GeForce GTX 1650, 4096", ok: false},
		{out: "garbage", wantErr: true},
		{out: "name, lots", wantErr: true},
	}
	for _, tt := range tests {
		info, err := parseNvidiaSMI(tt.out)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseNvidiaSMI(%q) expected error", tt.out)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseNvidiaSMI(%q): %v", tt.out, err)
		}
		model, ok := RecommendModel(info)
		if model != tt.model || ok != tt.ok {
			t.Fatalf("RecommendModel(%+v) = %q,%v want %q,%v", info, model, ok, tt.model, tt.ok)
		}
	}
}

func TestDetectGPUFallsBack(t *testing.T) {
	info := DetectGPU(context.Background(), func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("not found")
	})
	if info.Available || info.VRAMGB != 0 {
		t.Fatalf("expected unavailable GPU, got %+v", info)
	}
	info = DetectGPU(context.Background(), func(_ context.Context, name string, _ ...string) ([]byte, error) {
		if name != "nvidia-smi" {
			t.Fatalf("unexpected command %s", name)
		}
		return []byte("A100, 40960"), nil
	})
	if !info.Available || info.Name != "A100" || info.VRAMGB != 40 {
		t.Fatalf("unexpected info %+v", info)
	}
}
