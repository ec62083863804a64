package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forPelevin/sopgen/internal/netguard"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

const DefaultModel = "meta-llama/llama-3.2-90b-vision-instruct"

// Endpoint is the base URL policy for OpenRouter-compatible gateways.
var Endpoint = netguard.Endpoint{
	Name:         "OPENROUTER_BASE_URL",
	DefaultURL:   "https://openrouter.ai",
	DefaultHosts: []string{"openrouter.ai", "api.openrouter.ai"},
}

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Adapter{
		key:     strings.TrimSpace(apiKey),
		model:   model,
		baseURL: Endpoint.Normalize(baseURL),
		client:  &http.Client{},
	}
}

func (a *Adapter) Name() string  { return "openrouter" }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Check(context.Context) error {
	if a.key == "" {
		return &types.BackendUnavailableError{
			Backend: a.Name(), Host: a.baseURL, Model: a.model,
			Reason: "OPENROUTER_API_KEY is required",
		}
	}
	return nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func (a *Adapter) Generate(ctx context.Context, in ports.GenerateRequest) (string, error) {
	parts := make([]contentPart, 0, len(in.Images)+1)
	parts = append(parts, contentPart{Type: "text", Text: in.Prompt})
	for _, img := range in.Images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)},
		})
	}

	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": parts},
		},
		"temperature":     in.Options.Temperature,
		"top_p":           in.Options.TopP,
		"max_tokens":      in.Options.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s): %w", time.Since(start).Round(time.Second), a.model, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("openrouter request: %s", netguard.Redact(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, netguard.Truncate(netguard.Redact(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// some providers return an array of {type,text} parts
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}
