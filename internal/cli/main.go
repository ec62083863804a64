package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func Main() {
	root := newRootCommand()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "sopgen <video>",
		Short: "Turn a procedure video into an illustrated SOP document",
		Long: "sopgen samples frames from a training or procedure video, transcribes its narration,\n" +
			"asks a vision model for the discrete steps and renders an illustrated Markdown SOP.\n" +
			"The video may be a local path or s3://bucket/key when object storage is configured.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, flags, args[0])
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&ctx.configPath, "config", "", "Configuration file (default ~/.config/sopgen/config.toml, then ./sopgen.toml)")
	pf.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&ctx.logFormat, "log-format", "", "Log format: console or json")

	flags.register(root)

	root.AddCommand(
		newProbeCommand(ctx),
		newCheckCommand(ctx),
		newHistoryCommand(ctx),
		newPruneCommand(ctx),
		newWorkerCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	if h := hint(err); h != "" {
		fmt.Fprintf(w, "hint: %s\n", h)
	}
}
