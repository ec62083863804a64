package config

import (
	"errors"
	"fmt"

	"github.com/forPelevin/sopgen/internal/ports/adapters/gemini"
	"github.com/forPelevin/sopgen/internal/ports/adapters/openrouter"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateTranscript(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSampling() error {
	if c.Sampling.IntervalSeconds <= 0 {
		return errors.New("sampling.interval_seconds must be > 0")
	}
	if c.Sampling.MaxWidth <= 0 {
		return errors.New("sampling.max_width must be > 0")
	}
	if c.Sampling.MaxFrames <= 0 {
		return errors.New("sampling.max_frames must be > 0")
	}
	return nil
}

func (c *Config) validateTranscript() error {
	switch c.Transcript.Mode {
	case TranscriptLocal:
		if c.Transcript.WhisperModel == "" {
			return errors.New("transcript.whisper_model is required for local mode (set WHISPER_MODEL or use --transcript none)")
		}
	case TranscriptAPI:
		if c.Transcript.APIKey == "" {
			return errors.New("transcript.api_key is required for api mode (set GROQ_API_KEY)")
		}
	case TranscriptNone:
	default:
		return fmt.Errorf("transcript.mode must be one of local, api, none (got %q)", c.Transcript.Mode)
	}
	if c.Transcript.MaxChars < 0 {
		return errors.New("transcript.max_chars must be >= 0")
	}
	return nil
}

func (c *Config) validateVision() error {
	switch c.Vision.Backend {
	case BackendOllama:
	case BackendOpenRouter:
		if err := openrouter.Endpoint.Validate(c.Vision.BaseURL, c.Vision.AllowedHosts); err != nil {
			return fmt.Errorf("vision.base_url: %w", err)
		}
	case BackendGemini:
		if err := gemini.Endpoint.Validate(c.Vision.BaseURL, c.Vision.AllowedHosts); err != nil {
			return fmt.Errorf("vision.base_url: %w", err)
		}
	default:
		return fmt.Errorf("vision.backend must be one of ollama, openrouter, gemini (got %q)", c.Vision.Backend)
	}
	if c.Vision.TimeoutSeconds <= 0 {
		return errors.New("vision.timeout_seconds must be > 0")
	}
	if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
		return errors.New("vision.temperature must be between 0 and 2")
	}
	if c.Vision.TopP <= 0 || c.Vision.TopP > 1 {
		return errors.New("vision.top_p must be in (0, 1]")
	}
	if c.Vision.MaxTokens <= 0 {
		return errors.New("vision.max_tokens must be > 0")
	}
	return nil
}

func (c *Config) validateHistory() error {
	switch c.History.Driver {
	case HistoryNone:
	case HistorySQLite:
		if c.History.Path == "" {
			return errors.New("history.path is required for the sqlite driver")
		}
	case HistoryPostgres:
		if c.History.DSN == "" {
			return errors.New("history.dsn is required for the postgres driver (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("history.driver must be one of sqlite, postgres, none (got %q)", c.History.Driver)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Prefetch <= 0 {
		return errors.New("worker.prefetch must be > 0")
	}
	if c.Worker.Workers <= 0 {
		return errors.New("worker.workers must be > 0")
	}
	if c.Worker.MaxAttempts <= 0 {
		return errors.New("worker.max_attempts must be > 0")
	}
	if c.Worker.RetryBaseDelayMs < 0 {
		return errors.New("worker.retry_base_delay_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}

// ValidateWorkerDeps checks the settings only worker mode needs.
func (c *Config) ValidateWorkerDeps() error {
	if c.Worker.RabbitMQURL == "" {
		return errors.New("worker.rabbitmq_url is required (set RABBITMQ_URL)")
	}
	if c.Worker.Queue == "" || c.Worker.StatusQueue == "" || c.Worker.DLQ == "" {
		return errors.New("worker.queue, worker.status_queue and worker.dlq must be set")
	}
	return c.ValidateStorage()
}

// ValidateStorage checks object store settings.
func (c *Config) ValidateStorage() error {
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required (set MINIO_ENDPOINT)")
	}
	if c.Storage.InputBucket == "" || c.Storage.OutputBucket == "" {
		return errors.New("storage.input_bucket and storage.output_bucket must be set")
	}
	return nil
}
