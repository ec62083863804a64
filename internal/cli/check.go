package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipBackend bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify tools, directories and the vision backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ready()
			if err != nil {
				return err
			}

			gpu := preflight.DetectGPU(cmd.Context(), nil)
			var results []preflight.Result
			if skipBackend {
				results = preflight.RunAll(cmd.Context(), cfg, nil)
			} else {
				backend, err := pipeline.NewVisionBackend(cmd.Context(), cfg.Vision, logger)
				if err != nil {
					return err
				}
				results = preflight.RunAll(cmd.Context(), cfg, backend)
			}

			rows := make([][]string, 0, len(results)+1)
			for _, r := range results {
				rows = append(rows, []string{r.Name, statusLabel(r), r.Detail})
			}
			rows = append(rows, []string{"GPU", "INFO", gpuDetail(gpu)})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if !preflight.OK(results) {
				return errors.New("preflight failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipBackend, "skip-backend", false, "Do not contact the vision backend")
	return cmd
}

func statusLabel(r preflight.Result) string {
	switch {
	case r.Passed:
		return "OK"
	case r.Optional:
		return "WARN"
	default:
		return "FAIL"
	}
}

func gpuDetail(g preflight.GPUInfo) string {
	if !g.Available {
		return "no NVIDIA GPU detected; local models run on CPU or use --mode api"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %.1f GB VRAM", g.Name, g.VRAMGB)
	if model, ok := preflight.RecommendModel(g); ok {
		fmt.Fprintf(&b, "; recommended model %s", model)
	} else {
		b.WriteString("; too small for local vision models, use --mode api")
	}
	return b.String()
}
