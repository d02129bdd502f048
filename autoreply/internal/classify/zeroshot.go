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
	defaultZeroShotBaseURL = "https://api-inference.huggingface.co/models"
	defaultZeroShotModel   = "joeddav/xlm-roberta-large-xnli"
)

// ZeroShotClient classifies text with a hosted zero-shot NLI model. The
// highest scoring candidate label wins.
type ZeroShotClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewZeroShotClient builds a ZeroShotClient. The API key is required.
func NewZeroShotClient(cfg ClientConfig) (*ZeroShotClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("classify: zero-shot API token required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultZeroShotModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultZeroShotBaseURL
	}
	return &ZeroShotClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		httpClient: cfg.client(),
		limiter:    cfg.limiter(),
	}, nil
}

type zeroShotRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		CandidateLabels []string `json:"candidate_labels"`
	} `json:"parameters"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// Classify implements Service.
func (c *ZeroShotClient) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter: %w", err)
	}

	var in zeroShotRequest
	in.Inputs = text
	in.Parameters.CandidateLabels = labels
	body, err := json.Marshal(in)
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("zero-shot request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read response: %w", err)
	}

	var out zeroShotResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return "", 0, fmt.Errorf("zero-shot error (%d): %s", resp.StatusCode, out.Error)
		}
		return "", 0, fmt.Errorf("zero-shot error (%d): %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, fmt.Errorf("parse response: %w", err)
	}
	if len(out.Labels) == 0 || len(out.Labels) != len(out.Scores) {
		return "", 0, errors.New("zero-shot: malformed response")
	}

	best := 0
	for i, s := range out.Scores {
		if s > out.Scores[best] {
			best = i
		}
	}
	return out.Labels[best], out.Scores[best], nil
}
