package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume SOP jobs from RabbitMQ and store results in object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ready()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-runCtx.Done()
				logger.Info("received shutdown signal")
			}()
			return worker.Serve(runCtx, cfg, logger.With(zap.String("component", "worker")))
		},
	}
	cmd.AddCommand(newEnqueueCommand(ctx))
	return cmd
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var taskContext, company string
	cmd := &cobra.Command{
		Use:   "enqueue <video-key>",
		Short: "Queue a video already stored in the input bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ready()
			if err != nil {
				return err
			}
			if cfg.Worker.RabbitMQURL == "" {
				return fmt.Errorf("worker.rabbitmq_url is required (set RABBITMQ_URL)")
			}
			if company == "" {
				company = cfg.Output.Company
			}
			msg, err := worker.Enqueue(cmd.Context(), cfg, args[0], taskContext, company)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued job %s for %s/%s\n", msg.JobID, cfg.Storage.InputBucket, msg.VideoKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskContext, "context", "", "Free-text description of the task shown in the video")
	cmd.Flags().StringVar(&company, "company", "", "Company name for the document header")
	return cmd
}
