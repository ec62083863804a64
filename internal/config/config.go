package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths holds output and scratch locations.
type Paths struct {
	OutDir   string `toml:"out_dir"   env:"SOPGEN_OUT_DIR"`
	CacheDir string `toml:"cache_dir" env:"SOPGEN_CACHE_DIR"`
}

// Sampling controls frame extraction.
type Sampling struct {
	IntervalSeconds float64 `toml:"interval_seconds" env:"SOPGEN_INTERVAL"`
	MaxWidth        int     `toml:"max_width"        env:"SOPGEN_MAX_WIDTH"`
	MaxFrames       int     `toml:"max_frames"       env:"SOPGEN_MAX_FRAMES"`
	KeepFrames      bool    `toml:"keep_frames"      env:"SOPGEN_KEEP_FRAMES"`
}

// Output controls the rendered artifacts.
type Output struct {
	Company  string `toml:"company"  env:"SOPGEN_COMPANY"`
	Captions bool   `toml:"captions" env:"SOPGEN_CAPTIONS"`
}

// Transcript selects the speech-to-text backend.
type Transcript struct {
	Mode         string `toml:"mode"          env:"SOPGEN_TRANSCRIPT_MODE"`
	WhisperBin   string `toml:"whisper_bin"   env:"WHISPER_BIN"`
	WhisperModel string `toml:"whisper_model" env:"WHISPER_MODEL"`
	APIKey       string `toml:"api_key"       env:"GROQ_API_KEY"`
	BaseURL      string `toml:"base_url"      env:"WHISPER_API_BASE_URL"`
	Model        string `toml:"model"         env:"WHISPER_API_MODEL"`
	MaxChars     int    `toml:"max_chars"     env:"SOPGEN_TRANSCRIPT_MAX_CHARS"`
}

// Vision selects and tunes the multimodal step generator.
type Vision struct {
	Backend        string   `toml:"backend"         env:"SOPGEN_BACKEND"`
	Model          string   `toml:"model"           env:"SOPGEN_MODEL"`
	OllamaHost     string   `toml:"ollama_host"     env:"OLLAMA_HOST"`
	BaseURL        string   `toml:"base_url"        env:"SOPGEN_VISION_BASE_URL"`
	APIKey         string   `toml:"api_key"         env:"SOPGEN_VISION_API_KEY"`
	AllowedHosts   []string `toml:"allowed_hosts"   env:"SOPGEN_ALLOWED_HOSTS" envSeparator:","`
	TimeoutSeconds int      `toml:"timeout_seconds" env:"SOPGEN_VISION_TIMEOUT"`
	Temperature    float64  `toml:"temperature"     env:"SOPGEN_TEMPERATURE"`
	TopP           float64  `toml:"top_p"           env:"SOPGEN_TOP_P"`
	MaxTokens      int      `toml:"max_tokens"      env:"SOPGEN_MAX_TOKENS"`
}

// Tools names the external binaries.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"  env:"FFMPEG_BIN"`
	FFprobe string `toml:"ffprobe" env:"FFPROBE_BIN"`
}

// History configures the run history store.
type History struct {
	Driver string `toml:"driver" env:"SOPGEN_HISTORY_DRIVER"`
	Path   string `toml:"path"   env:"SOPGEN_HISTORY_PATH"`
	DSN    string `toml:"dsn"    env:"DATABASE_URL"`
}

// Storage configures the S3-compatible object store.
type Storage struct {
	Endpoint     string `toml:"endpoint"      env:"MINIO_ENDPOINT"`
	AccessKey    string `toml:"access_key"    env:"MINIO_ACCESS_KEY"`
	SecretKey    string `toml:"secret_key"    env:"MINIO_SECRET_KEY"`
	UseSSL       bool   `toml:"use_ssl"       env:"MINIO_USE_SSL"`
	Region       string `toml:"region"        env:"MINIO_REGION"`
	InputBucket  string `toml:"input_bucket"  env:"MINIO_INPUT_BUCKET"`
	OutputBucket string `toml:"output_bucket" env:"MINIO_OUTPUT_BUCKET"`
}

// Worker configures queue-driven processing.
type Worker struct {
	RabbitMQURL      string `toml:"rabbitmq_url"        env:"RABBITMQ_URL"`
	Queue            string `toml:"queue"               env:"RABBITMQ_QUEUE"`
	StatusQueue      string `toml:"status_queue"        env:"RABBITMQ_STATUS_QUEUE"`
	DLQ              string `toml:"dlq"                 env:"RABBITMQ_DLQ"`
	Exchange         string `toml:"exchange"            env:"RABBITMQ_EXCHANGE"`
	Prefetch         int    `toml:"prefetch"            env:"RABBITMQ_PREFETCH"`
	Workers          int    `toml:"workers"             env:"WORKER_COUNT"`
	MaxAttempts      int    `toml:"max_attempts"        env:"WORKER_MAX_ATTEMPTS"`
	RetryBaseDelayMs int    `toml:"retry_base_delay_ms" env:"WORKER_RETRY_BASE_DELAY_MS"`
}

// Logging controls log output.
type Logging struct {
	Level  string `toml:"level"  env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	Addr string `toml:"addr" env:"METRICS_ADDR"`
}

// Tracing controls OTLP span export.
type Tracing struct {
	OTLPEndpoint string `toml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// Config encapsulates all configuration values for sopgen.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Sampling   Sampling   `toml:"sampling"`
	Output     Output     `toml:"output"`
	Transcript Transcript `toml:"transcript"`
	Vision     Vision     `toml:"vision"`
	Tools      Tools      `toml:"tools"`
	History    History    `toml:"history"`
	Storage    Storage    `toml:"storage"`
	Worker     Worker     `toml:"worker"`
	Logging    Logging    `toml:"logging"`
	Metrics    Metrics    `toml:"metrics"`
	Tracing    Tracing    `toml:"tracing"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sopgen/config.toml")
}

// Load layers defaults, the TOML file (if any) and environment overrides,
// then normalizes the result. It returns the resolved path and whether the
// file existed. Validation is left to the caller so flags can be applied first.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// best effort
	_ = godotenv.Load()

	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates after flag overrides.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("sopgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// applyBackendKeyFallback picks the provider-specific key variable when the
// generic one is unset.
func (c *Config) applyBackendKeyFallback() {
	if strings.TrimSpace(c.Vision.APIKey) != "" {
		return
	}
	var name string
	switch strings.ToLower(strings.TrimSpace(c.Vision.Backend)) {
	case BackendOpenRouter:
		name = "OPENROUTER_API_KEY"
	case BackendGemini:
		name = "GEMINI_API_KEY"
	default:
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		c.Vision.APIKey = v
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to path and refuses to
// overwrite an existing one.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
