package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/metrics"
)

const (
	attemptHeader   = "x-sopgen-attempt"
	processingKey   = "sop.processing"
	statusKey       = "sop.status"
	maxBackoffDelay = 60 * time.Second
)

// MessageHandler processes one job body. attempt starts at 1.
type MessageHandler func(ctx context.Context, body []byte, attempt int) error

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	exchange    string
	dlq         string
	workerCount int
	maxAttempts int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	MaxAttempts int
	BaseDelayMs int
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		exchange:    cfg.Exchange,
		dlq:         cfg.DLQ,
		workerCount: max(cfg.WorkerCount, 1),
		maxAttempts: max(cfg.MaxAttempts, 1),
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.QueueBind(cfg.Queue, processingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind processing queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, statusKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

// Dial connects and declares the job topology without consuming. It is used
// by producers that enqueue jobs.
func Dial(cfg ConsumerConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := declareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Conn exposes the connection so publishers can share it.
func (c *Consumer) Conn() *amqp.Connection { return c.conn }

// Start blocks until ctx is cancelled and all workers have returned.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			metrics.ActiveWorkers.Inc()
			c.processDelivery(ctx, d, log)
			metrics.ActiveWorkers.Dec()
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	attempt := attemptFromHeaders(d.Headers)
	err := c.handler(ctx, d.Body, attempt)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	log.Warn("message processing failed",
		zap.Error(err),
		zap.Int("attempt", attempt),
		zap.Uint64("delivery_tag", d.DeliveryTag),
	)

	if attempt >= c.maxAttempts {
		if pubErr := c.publish(ctx, "", c.dlq, d.Body, amqp.Table{"x-dlq-reason": err.Error(), attemptHeader: int32(attempt)}); pubErr != nil {
			log.Error("publish to dlq failed, requeueing", zap.Error(pubErr))
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	delay := calculateBackoff(c.baseDelay, attempt)
	log.Info("backoff before retry", zap.Duration("delay", delay), zap.Int("attempt", attempt))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
	if pubErr := c.publish(ctx, c.exchange, processingKey, d.Body, amqp.Table{attemptHeader: int32(attempt + 1)}); pubErr != nil {
		log.Error("republish failed, requeueing", zap.Error(pubErr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	return c.channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
	})
}

func attemptFromHeaders(h amqp.Table) int {
	if h == nil {
		return 1
	}
	switch v := h[attemptHeader].(type) {
	case int32:
		return max(int(v), 1)
	case int64:
		return max(int(v), 1)
	case int:
		return max(v, 1)
	}
	if xDeath, ok := h["x-death"].([]interface{}); ok && len(xDeath) > 0 {
		return len(xDeath) + 1
	}
	return 1
}

func calculateBackoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
