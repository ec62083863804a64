package cli

import (
	"errors"

	"github.com/forPelevin/sopgen/internal/types"
)

// hint maps a failure to the next thing the user can try.
func hint(err error) string {
	var bu *types.BackendUnavailableError
	switch {
	case errors.As(err, &bu):
		if bu.Backend == "ollama" {
			return "start the server with `ollama serve` and pull the model with `ollama pull " + bu.Model + "`, or use --mode api"
		}
		return "check the API key and network access for " + bu.Backend + ", or use --mode local"
	case errors.Is(err, types.ErrBackendTimeout):
		return "retry with a larger --interval, fewer --max-frames or a smaller --model"
	case errors.Is(err, types.ErrMalformedResponse):
		return "the model answered with unusable output; retry or pick a stronger --model"
	case errors.Is(err, types.ErrNoFramesAvailable):
		return "no frames were sampled; try a smaller --interval"
	case errors.Is(err, types.ErrDecode):
		return "ffmpeg could not decode the video; check that the file plays and the codec is supported"
	case errors.Is(err, types.ErrIO):
		return "check the input path and that ffprobe can read it (`sopgen probe <video>`)"
	}
	return ""
}
