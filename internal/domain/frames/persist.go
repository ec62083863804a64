package frames

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/sopgen/internal/types"
)

// FileName is the on-disk name of a persisted frame.
func FileName(f types.Frame) string {
	return fmt.Sprintf("frame_%06d.jpg", f.Ordinal)
}

// Persist writes every frame into dir.
func Persist(frames []types.Frame, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist frames: %w", err)
	}
	for _, f := range frames {
		if err := os.WriteFile(filepath.Join(dir, FileName(f)), f.Image, 0o644); err != nil {
			return fmt.Errorf("persist frame %d: %w", f.Ordinal, err)
		}
	}
	return nil
}

// PersistAdvisory runs Persist in the background. The channel receives the
// outcome once and is then closed; a failure never affects the sampled frames.
func PersistAdvisory(frames []types.Frame, dir string) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- Persist(frames, dir)
	}()
	return ch
}
