// Package whisperapi talks to OpenAI-compatible /audio/transcriptions
// endpoints (Groq by default).
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/sopgen/internal/types"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "whisper-large-v3"

	requestTimeout = 5 * time.Minute
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

func New(apiKey, model, baseURL string, opts ...Option) *Adapter {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Adapter{
		key:     strings.TrimSpace(apiKey),
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) AudioExt() string { return ".mp3" }

func (a *Adapter) Transcribe(ctx context.Context, audioPath, _ string) ([]types.TranscriptSegment, error) {
	if a.key == "" {
		return nil, errors.New("whisper api: api key required")
	}
	body, contentType, err := a.buildForm(audioPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", contentType)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.ReplaceAll(string(rb), a.key, "[REDACTED]")
		return nil, fmt.Errorf("whisper api status %d: %s", resp.StatusCode, strings.TrimSpace(msg))
	}

	var out struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("whisper api: decode response: %w", err)
	}

	segs := make([]types.TranscriptSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			segs = append(segs, types.TranscriptSegment{Start: s.Start, End: s.End, Text: text})
		}
	}
	if len(segs) == 0 && strings.TrimSpace(out.Text) != "" {
		segs = append(segs, types.TranscriptSegment{Start: 0, End: out.Duration, Text: strings.TrimSpace(out.Text)})
	}
	return segs, nil
}

func (a *Adapter) buildForm(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("whisper api: open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("whisper api: read audio: %w", err)
	}
	for k, v := range map[string]string{
		"model":           a.model,
		"response_format": "verbose_json",
		"temperature":     "0",
	} {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
