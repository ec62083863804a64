// Package worker turns queued jobs into pipeline runs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/forPelevin/sopgen/internal/logging"
	"github.com/forPelevin/sopgen/internal/pipeline"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/render"
	"github.com/forPelevin/sopgen/internal/tracing"
	"github.com/forPelevin/sopgen/internal/types"
	"github.com/forPelevin/sopgen/internal/usecase"
)

// JobMessage is the inbound message on the processing queue.
type JobMessage struct {
	JobID    string `json:"job_id"`
	VideoKey string `json:"video_key"`
	Context  string `json:"context,omitempty"`
	Company  string `json:"company,omitempty"`
}

type JobStatus string

const (
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusRetrying   JobStatus = "RETRYING"
	StatusFailed     JobStatus = "FAILED"
)

// StatusMessage is published to the status queue on every transition.
type StatusMessage struct {
	JobID        string    `json:"job_id"`
	RunID        string    `json:"run_id,omitempty"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	Title        string    `json:"title,omitempty"`
	StepCount    int       `json:"step_count,omitempty"`
	Document     string    `json:"document_key,omitempty"`
	Manifest     string    `json:"manifest_key,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}

// Runner is the part of pipeline.Runner the handler drives.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type HandlerConfig struct {
	InputBucket string
	MaxAttempts int
}

type Handler struct {
	runner Runner
	status ports.StatusPublisher
	dlq    ports.DLQPublisher
	cfg    HandlerConfig
	logger *zap.Logger
}

func NewHandler(cfg HandlerConfig, runner Runner, status ports.StatusPublisher, dlq ports.DLQPublisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Handler{runner: runner, status: status, dlq: dlq, cfg: cfg, logger: logger}
}

// Handle processes one delivery. A nil return acknowledges the message; an
// error asks the consumer to retry it or, on the last attempt, dead-letter it.
func (h *Handler) Handle(ctx context.Context, body []byte, attempt int) error {
	ctx, span := tracing.Tracer("sopgen/worker").Start(ctx, "handle_job")
	defer span.End()

	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", body))
		h.deadLetter(ctx, body, "unmarshal_error: "+err.Error())
		return nil
	}
	if err := msg.validate(); err != nil {
		h.logger.Error("invalid job message", zap.Error(err), zap.ByteString("body", body))
		h.deadLetter(ctx, body, "invalid_message: "+err.Error())
		return nil
	}
	span.SetAttributes(
		attribute.String("job.id", msg.JobID),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.Int("job.attempt", attempt),
	)

	runID := uuid.NewString()
	log := h.logger.With(
		zap.String(logging.FieldJobID, msg.JobID),
		zap.String(logging.FieldRunID, runID),
		zap.String(logging.FieldVideo, msg.VideoKey),
		zap.Int("attempt", attempt),
	)

	st := StatusMessage{
		JobID:       msg.JobID,
		RunID:       runID,
		VideoKey:    msg.VideoKey,
		Attempt:     attempt,
		MaxAttempts: h.cfg.MaxAttempts,
	}
	h.publish(ctx, log, st, StatusProcessing)

	res, err := h.runner.Run(ctx, pipeline.Request{
		Input:        pipeline.ObjectURL(h.cfg.InputBucket, msg.VideoKey),
		Context:      msg.Context,
		Company:      msg.Company,
		RunID:        runID,
		Upload:       true,
		UploadPrefix: msg.JobID,
		RemoveLocal:  true,
	})
	if err != nil {
		st.ErrorMessage = err.Error()
		if permanent(err) {
			log.Error("job failed permanently", zap.Error(err))
			h.publish(ctx, log, st, StatusFailed)
			h.deadLetter(ctx, body, "permanent: "+err.Error())
			return nil
		}
		next := StatusRetrying
		if attempt >= h.cfg.MaxAttempts {
			next = StatusFailed
		}
		log.Warn("job attempt failed", zap.Error(err), zap.String("status", string(next)))
		h.publish(ctx, log, st, next)
		return err
	}

	st.Title = res.Record.Title
	st.StepCount = len(res.Record.Steps)
	st.Document = path.Join(msg.JobID, render.DocumentFile)
	st.Manifest = path.Join(msg.JobID, usecase.ManifestFile)
	h.publish(ctx, log, st, StatusCompleted)
	log.Info("job completed", zap.Int("steps", st.StepCount), zap.Int("artifacts", len(res.Uploaded)))
	return nil
}

func (h *Handler) publish(ctx context.Context, log *zap.Logger, st StatusMessage, status JobStatus) {
	if h.status == nil {
		return
	}
	st.Status = status
	b, err := json.Marshal(st)
	if err != nil {
		log.Error("marshal status", zap.Error(err))
		return
	}
	if err := h.status.PublishStatus(ctx, b); err != nil {
		log.Error("publish status", zap.Error(err), zap.String("status", string(status)))
	}
}

func (h *Handler) deadLetter(ctx context.Context, body []byte, reason string) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, body, reason); err != nil {
		h.logger.Error("publish to dlq", zap.Error(err))
	}
}

// permanent reports failures a retry cannot fix: the video is missing,
// empty or unusable.
func permanent(err error) bool {
	return errors.Is(err, types.ErrIO) ||
		errors.Is(err, types.ErrDecode) ||
		errors.Is(err, types.ErrNoFramesAvailable)
}

func (m JobMessage) validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.ContainsAny(m.JobID, "/\\") {
		return fmt.Errorf("job_id %q must not contain path separators", m.JobID)
	}
	if strings.TrimSpace(m.VideoKey) == "" {
		return errors.New("video_key is required")
	}
	return nil
}

// NewJob builds an encoded job message for videoKey, assigning a job id.
func NewJob(videoKey, taskContext, company string) (JobMessage, []byte, error) {
	msg := JobMessage{
		JobID:    uuid.NewString(),
		VideoKey: strings.TrimPrefix(strings.TrimSpace(videoKey), "/"),
		Context:  taskContext,
		Company:  company,
	}
	if err := msg.validate(); err != nil {
		return JobMessage{}, nil, err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return JobMessage{}, nil, fmt.Errorf("marshal job: %w", err)
	}
	return msg, b, nil
}
