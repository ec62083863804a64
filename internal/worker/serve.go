package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/config"
	"github.com/forPelevin/sopgen/internal/metrics"
	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/ports/adapters/minio"
	"github.com/forPelevin/sopgen/internal/ports/adapters/rabbitmq"
	"github.com/forPelevin/sopgen/internal/tracing"
)

const defaultMetricsAddr = ":9090"

func consumerConfig(cfg *config.Config) rabbitmq.ConsumerConfig {
	return rabbitmq.ConsumerConfig{
		URL:         cfg.Worker.RabbitMQURL,
		Queue:       cfg.Worker.Queue,
		Exchange:    cfg.Worker.Exchange,
		DLQ:         cfg.Worker.DLQ,
		StatusQueue: cfg.Worker.StatusQueue,
		Prefetch:    cfg.Worker.Prefetch,
		WorkerCount: cfg.Worker.Workers,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseDelayMs: cfg.Worker.RetryBaseDelayMs,
	}
}

// Serve consumes jobs until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if err := cfg.ValidateWorkerDeps(); err != nil {
		return err
	}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	storage, err := minio.NewStorage(minio.StorageConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		return err
	}
	if err := storage.EnsureBuckets(ctx, cfg.Storage.InputBucket, cfg.Storage.OutputBucket); err != nil {
		return fmt.Errorf("ensure buckets: %w", err)
	}

	runner, err := pipeline.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer runner.Close()

	var h *Handler
	consumer, err := rabbitmq.NewConsumer(consumerConfig(cfg), func(ctx context.Context, body []byte, attempt int) error {
		return h.Handle(ctx, body, attempt)
	}, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	pub, err := rabbitmq.NewPublisher(consumer.Conn(), cfg.Worker.Exchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	h = NewHandler(HandlerConfig{
		InputBucket: cfg.Storage.InputBucket,
		MaxAttempts: cfg.Worker.MaxAttempts,
	}, runner, rabbitmq.NewStatusPublisher(pub), rabbitmq.NewDLQPublisher(pub, cfg.Worker.DLQ), log)

	addr := cfg.Metrics.Addr
	if addr == "" {
		addr = defaultMetricsAddr
	}
	metricsSrv := metrics.StartMetricsServer(addr, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("sopgen worker started, consuming messages",
		zap.String("queue", cfg.Worker.Queue),
		zap.Int("workers", cfg.Worker.Workers),
		zap.String("backend", runner.Vision().Name()),
	)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Info("sopgen worker stopped")
	return nil
}

// Enqueue publishes one job for videoKey and returns the message sent.
func Enqueue(ctx context.Context, cfg *config.Config, videoKey, taskContext, company string) (JobMessage, error) {
	msg, body, err := NewJob(videoKey, taskContext, company)
	if err != nil {
		return JobMessage{}, err
	}
	conn, err := rabbitmq.Dial(consumerConfig(cfg))
	if err != nil {
		return JobMessage{}, err
	}
	defer conn.Close()

	pub, err := rabbitmq.NewPublisher(conn, cfg.Worker.Exchange)
	if err != nil {
		return JobMessage{}, err
	}
	defer pub.Close()

	if err := rabbitmq.NewJobPublisher(pub).PublishJob(ctx, body); err != nil {
		return JobMessage{}, fmt.Errorf("publish job: %w", err)
	}
	return msg, nil
}
