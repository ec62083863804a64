package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/history"
	"github.com/forPelevin/sopgen/internal/types"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously generated SOPs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ready()
			if err != nil {
				return err
			}
			if cfg.History.Driver == config.HistoryNone {
				return fmt.Errorf("history is disabled (history.driver = %q)", cfg.History.Driver)
			}
			store, err := history.Open(cmd.Context(), cfg.History)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				if entries == nil {
					entries = []types.HistoryEntry{}
				}
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Created", "Title", "Steps", "Backend", "Seconds", "Output"},
				historyRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON even on a terminal")
	return cmd
}

func historyRows(entries []types.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			orUntitled(e.Title),
			strconv.Itoa(e.StepCount),
			e.Backend + "/" + e.Model,
			strconv.FormatFloat(e.ProcessingSeconds, 'f', 1, 64),
			e.OutputDir,
		})
	}
	return rows
}
