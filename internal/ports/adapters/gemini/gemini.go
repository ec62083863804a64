package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forPelevin/sopgen/internal/netguard"
	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

const DefaultModel = "gemini-2.5-flash"

var Endpoint = netguard.Endpoint{
	Name:         "GEMINI_BASE_URL",
	DefaultURL:   "https://generativelanguage.googleapis.com",
	DefaultHosts: []string{"generativelanguage.googleapis.com"},
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
		model:   strings.TrimPrefix(model, "models/"),
		baseURL: Endpoint.Normalize(baseURL),
		client:  &http.Client{},
	}
}

func (a *Adapter) Name() string  { return "gemini" }
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Check(context.Context) error {
	if a.key == "" {
		return &types.BackendUnavailableError{
			Backend: a.Name(), Host: a.baseURL, Model: a.model,
			Reason: "GEMINI_API_KEY is required",
		}
	}
	return nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

func (a *Adapter) Generate(ctx context.Context, in ports.GenerateRequest) (string, error) {
	parts := make([]part, 0, len(in.Images)+1)
	parts = append(parts, part{Text: in.Prompt})
	for _, img := range in.Images {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}

	payload := generateRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:      in.Options.Temperature,
			TopP:             in.Options.TopP,
			MaxOutputTokens:  in.Options.MaxTokens,
			ResponseMimeType: "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.key)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("gemini timeout after %s (model=%s): %w", time.Since(start).Round(time.Second), a.model, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("gemini request: %s", netguard.Redact(err.Error(), a.key))
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, netguard.Truncate(netguard.Redact(string(rb), a.key), 400))
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(rb, &out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini: prompt blocked (%s)", out.PromptFeedback.BlockReason)
		}
		return "", errors.New("gemini: no candidates in response")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("gemini: empty content (finish reason %q)", out.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
