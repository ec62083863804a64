package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/sopgen/internal/ports/adapters/ffmpeg"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe <video>",
		Short: "Show duration, frame rate and resolution of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ready()
			if err != nil {
				return err
			}
			info, err := ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe).Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				return writeJSON(out, info)
			}
			rows := [][]string{
				{"Duration", (time.Duration(info.Duration * float64(time.Second))).Round(100 * time.Millisecond).String()},
				{"Frame rate", strconv.FormatFloat(info.FPS, 'f', 2, 64) + " fps"},
				{"Frames", strconv.Itoa(info.FrameCount)},
				{"Resolution", fmt.Sprintf("%dx%d", info.Width, info.Height)},
				{"Samples at interval", strconv.Itoa(sampleCount(info.Duration, cfg.Sampling.IntervalSeconds))},
			}
			fmt.Fprintln(out, renderTable([]string{"Property", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON even on a terminal")
	return cmd
}

// sampleCount estimates how many frames a run samples at interval.
func sampleCount(duration, interval float64) int {
	if duration <= 0 || interval <= 0 {
		return 0
	}
	return int(duration/interval) + 1
}
