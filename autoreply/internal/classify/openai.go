package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-5-nano"
)

// OpenAIClient classifies text with a chat-completions model asked to answer
// with exactly one candidate label. Confidence is 1 for a recognised label.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig configures the HTTP service clients.
type ClientConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// RatePerSec caps outgoing requests. 0 means unlimited.
	RatePerSec float64
	HTTPClient *http.Client
}

func (c ClientConfig) limiter() *rate.Limiter {
	if c.RatePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(c.RatePerSec), 1)
}

func (c ClientConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	// The gateway owns the deadline.
	return &http.Client{}
}

// NewOpenAIClient builds an OpenAIClient. The API key is required.
func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("classify: openai API key required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.client(),
		limiter:    cfg.limiter(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify implements Service.
func (c *OpenAIClient) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(labels)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read response: %w", err)
	}

	var out chatResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &out) == nil && out.Error != nil {
			return "", 0, fmt.Errorf("openai error (%d): %s", resp.StatusCode, out.Error.Message)
		}
		return "", 0, fmt.Errorf("openai error (%d): %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, errors.New("openai: empty response")
	}
	return matchLabel(out.Choices[0].Message.Content, labels), 1, nil
}

func systemPrompt(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "'" + l + "'"
	}
	return "Classify the text as exactly one of " + strings.Join(quoted, ", ") +
		". Answer with that single word only."
}

// matchLabel maps a free-form answer onto a candidate label. An answer that
// names no label maps to the last one, the catch-all.
func matchLabel(answer string, labels []string) string {
	a := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".'\"!"))
	for _, l := range labels {
		if a == strings.ToLower(l) {
			return l
		}
	}
	for _, l := range labels {
		if strings.Contains(a, strings.ToLower(l)) {
			return l
		}
	}
	if len(labels) == 0 {
		return a
	}
	return labels[len(labels)-1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
