package ollama

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

	"github.com/forPelevin/sopgen/internal/ports"
	"github.com/forPelevin/sopgen/internal/types"
)

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2-vision:11b"

	checkTimeout = 5 * time.Second
)

type Adapter struct {
	host   string
	model  string
	client *http.Client
}

func New(host, model string) *Adapter {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultHost
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	// Per-request deadlines come from the caller's context.
	return &Adapter{host: host, model: model, client: &http.Client{}}
}

func (a *Adapter) Name() string  { return "ollama" }
func (a *Adapter) Model() string { return a.model }
func (a *Adapter) Host() string  { return a.host }

func (a *Adapter) unavailable(reason string, err error) error {
	return &types.BackendUnavailableError{Backend: a.Name(), Host: a.host, Model: a.model, Reason: reason, Err: err}
}

// Check confirms the server answers and that the model has been pulled.
// A tag listing "llama3.2-vision:11b" satisfies a configured "llama3.2-vision".
func (a *Adapter) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.host+"/api/tags", nil)
	if err != nil {
		return a.unavailable("build request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return a.unavailable("server not reachable; start it with `ollama serve`", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return a.unavailable(fmt.Sprintf("tags endpoint returned status %d", resp.StatusCode), nil)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return a.unavailable("decode tags", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	if !hasModel(names, a.model) {
		return a.unavailable(fmt.Sprintf("model not installed; run `ollama pull %s`", a.model), nil)
	}
	return nil
}

func hasModel(names []string, model string) bool {
	base, _, _ := strings.Cut(model, ":")
	for _, n := range names {
		if n == model || strings.HasPrefix(n, model) {
			return true
		}
		if nb, _, _ := strings.Cut(n, ":"); nb == base && !strings.Contains(model, ":") {
			return true
		}
	}
	return false
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

func (a *Adapter) Generate(ctx context.Context, in ports.GenerateRequest) (string, error) {
	images := make([]string, len(in.Images))
	for i, img := range in.Images {
		images[i] = base64.StdEncoding.EncodeToString(img)
	}
	body, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: in.Prompt,
		Images: images,
		Stream: false,
		Options: generateOptions{
			Temperature: in.Options.Temperature,
			TopP:        in.Options.TopP,
			NumPredict:  in.Options.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("ollama timeout (model=%s): %w", a.model, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(rb)))
	}

	var out struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("ollama timeout (model=%s): %w", a.model, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Response, nil
}
