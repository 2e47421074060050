// Package ai provides a unified interface to the language-model backends
// sheetkit uses for intent classification and text generation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultOllamaHost = "http://localhost:11434"
	maxResponseBytes  = 4 << 20
)

// Message represents a single message in a conversation with a model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// InferOptions configures a single inference call. A nil Temperature leaves
// the backend default in place.
type InferOptions struct {
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	// JSON asks the backend to reply with a single JSON object where it
	// supports a structured output mode.
	JSON bool `json:"json,omitempty"`
}

// Temperature returns a pointer suitable for InferOptions.Temperature.
func Temperature(t float64) *float64 { return &t }

// InferResult holds the response from an inference call.
type InferResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider defines the interface that all backends implement.
type Provider interface {
	// Infer sends a prompt and returns the complete response.
	Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error)

	// Name returns the provider identifier.
	Name() string
}

// Settings selects and configures a backend. Empty keys fall back to the
// conventional environment variables.
type Settings struct {
	Provider     string
	Model        string
	OpenAIKey    string
	AnthropicKey string
	OllamaHost   string
	// BaseURL overrides the backend endpoint, e.g. for an OpenAI-compatible
	// gateway.
	BaseURL string
	Timeout time.Duration
}

// NewProvider creates a provider instance from s.
func NewProvider(s Settings) (Provider, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", "openai":
		key := firstNonEmpty(s.OpenAIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("no OpenAI API key configured — set OPENAI_API_KEY or run 'sheetkit config set api_keys.openai <key>'")
		}
		p := NewOpenAIProvider(key, s.Model)
		p.client = client
		if s.BaseURL != "" {
			p.url = strings.TrimRight(s.BaseURL, "/") + "/chat/completions"
		}
		return p, nil
	case "anthropic":
		key := firstNonEmpty(s.AnthropicKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("no Anthropic API key configured — set ANTHROPIC_API_KEY; get one at https://console.anthropic.com/settings/keys")
		}
		p := NewAnthropicProvider(key, s.Model)
		p.client = client
		if s.BaseURL != "" {
			p.url = strings.TrimRight(s.BaseURL, "/") + "/v1/messages"
		}
		return p, nil
	case "ollama":
		host := firstNonEmpty(s.BaseURL, s.OllamaHost, os.Getenv("OLLAMA_HOST"), defaultOllamaHost)
		p := NewOllamaProvider(host, s.Model)
		p.client = client
		return p, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q — supported providers: openai, anthropic, ollama", s.Provider)
	}
}

// postJSON sends payload to url and returns the status code and body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("could not read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
