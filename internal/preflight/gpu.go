package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	ModelLarge = "llama3.2-vision:90b"
	ModelSmall = "llama3.2-vision:11b"
)

// GPUInfo is the first NVIDIA GPU reported by nvidia-smi.
type GPUInfo struct {
	Name      string
	VRAMGB    float64
	Available bool
}

// Runner executes a command and returns stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DetectGPU queries nvidia-smi. A missing tool or unparsable output yields
// an unavailable GPU, never an error.
func DetectGPU(ctx context.Context, run Runner) GPUInfo {
	if run == nil {
		run = execRunner
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := run(ctx, "nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	if err != nil {
		return GPUInfo{Name: "Unknown"}
	}
	info, err := parseNvidiaSMI(string(out))
	if err != nil {
		return GPUInfo{Name: "Unknown"}
	}
	return info
}

func parseNvidiaSMI(out string) (GPUInfo, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	name, mem, ok := strings.Cut(line, ",")
	if !ok {
		return GPUInfo{}, fmt.Errorf("unexpected nvidia-smi output %q", line)
	}
	mb, err := strconv.ParseFloat(strings.TrimSpace(mem), 64)
	if err != nil {
		return GPUInfo{}, fmt.Errorf("parse memory %q: %w", mem, err)
	}
	return GPUInfo{Name: strings.TrimSpace(name), VRAMGB: mb / 1024, Available: true}, nil
}

// RecommendModel picks a local vision model for the available VRAM. ok is
// false when the GPU is too small and remote mode should be used instead.
func RecommendModel(g GPUInfo) (model string, ok bool) {
	switch {
	case g.VRAMGB >= 40:
		return ModelLarge, true
	case g.VRAMGB >= 12:
		return ModelSmall, true
	default:
		return "", false
	}
}
