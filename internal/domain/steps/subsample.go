package steps

import "github.com/forPelevin/sopgen/internal/types"

// MaxFrames bounds how many stills a single inference request carries.
const MaxFrames = 20

// Subsample picks max frames spread evenly over the sequence, taking
// frames[floor(i*n/max)]. Timestamps are the originals. Sequences that already
// fit are returned as is.
func Subsample(frames []types.Frame, max int) []types.Frame {
	n := len(frames)
	if max <= 0 || n <= max {
		return frames
	}
	out := make([]types.Frame, max)
	for i := 0; i < max; i++ {
		out[i] = frames[i*n/max]
	}
	return out
}
