package match

import (
	"math"

	"github.com/forPelevin/sopgen/internal/types"
)

// Nearest returns the frame closest in time to the step. Ties go to the
// earlier frame in sequence order.
func Nearest(step types.SOPStep, frames []types.Frame) (types.Frame, error) {
	if len(frames) == 0 {
		return types.Frame{}, types.ErrNoFramesAvailable
	}
	best := 0
	bestDiff := math.Abs(frames[0].Timestamp - step.TimestampSeconds)
	for i := 1; i < len(frames); i++ {
		d := math.Abs(frames[i].Timestamp - step.TimestampSeconds)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return frames[best], nil
}

// Assignment pairs a step with its illustration. OK is false when no frame
// could be matched and the step is rendered without one.
type Assignment struct {
	Step  types.SOPStep
	Frame types.Frame
	OK    bool
}

func Assign(rec types.SOPRecord, frames []types.Frame) []Assignment {
	out := make([]Assignment, 0, len(rec.Steps))
	for _, st := range rec.Steps {
		f, err := Nearest(st, frames)
		out = append(out, Assignment{Step: st, Frame: f, OK: err == nil})
	}
	return out
}
