package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscript()
	c.normalizeVision()
	c.normalizeLogging()

	c.Output.Company = strings.TrimSpace(c.Output.Company)
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	c.History.DSN = strings.TrimSpace(c.History.DSN)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)
	c.Tracing.OTLPEndpoint = strings.TrimSpace(c.Tracing.OTLPEndpoint)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutDir, err = expandPath(strings.TrimSpace(c.Paths.OutDir)); err != nil {
		return fmt.Errorf("paths.out_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(strings.TrimSpace(c.Paths.CacheDir)); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	if c.Transcript.WhisperModel, err = expandPath(strings.TrimSpace(c.Transcript.WhisperModel)); err != nil {
		return fmt.Errorf("transcript.whisper_model: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscript() {
	c.Transcript.Mode = strings.ToLower(strings.TrimSpace(c.Transcript.Mode))
	c.Transcript.WhisperBin = strings.TrimSpace(c.Transcript.WhisperBin)
	c.Transcript.APIKey = strings.TrimSpace(c.Transcript.APIKey)
	c.Transcript.BaseURL = strings.TrimSpace(c.Transcript.BaseURL)
	if c.Transcript.BaseURL == "" {
		c.Transcript.BaseURL = defaultWhisperAPIURL
	}
	c.Transcript.Model = strings.TrimSpace(c.Transcript.Model)
	if c.Transcript.Model == "" {
		c.Transcript.Model = defaultWhisperAPIModel
	}
}

func (c *Config) normalizeVision() {
	c.Vision.Backend = strings.ToLower(strings.TrimSpace(c.Vision.Backend))
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	c.Vision.OllamaHost = strings.TrimRight(strings.TrimSpace(c.Vision.OllamaHost), "/")
	if c.Vision.OllamaHost == "" {
		c.Vision.OllamaHost = defaultOllamaHost
	}
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	c.applyBackendKeyFallback()
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	hosts := c.Vision.AllowedHosts[:0]
	for _, h := range c.Vision.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.Vision.AllowedHosts = hosts
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
