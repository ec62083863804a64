package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/sopgen/internal/pipeline"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove scratch directories left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ready()
			if err != nil {
				return err
			}
			removed, err := pipeline.Prune(cfg.Paths.CacheDir, olderThan, time.Now())
			out := cmd.OutOrStdout()
			for _, dir := range removed {
				fmt.Fprintf(out, "removed %s\n", dir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d scratch directories removed\n", len(removed))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only remove directories not modified for this long")
	return cmd
}
