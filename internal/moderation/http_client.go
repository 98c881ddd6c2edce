package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPClient calls an external verdict service over JSON.
type HTTPClient struct {
	cfg    Config
	client *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type verdictPayload struct {
	Model  string   `json:"model"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
	Stars  int      `json:"stars"`
}

func (c *HTTPClient) Verdict(ctx context.Context, req VerdictRequest) (Verdict, error) {
	body, err := json.Marshal(verdictPayload{
		Model:  c.cfg.Model,
		Text:   req.Text,
		Images: req.Images,
		Stars:  req.Stars,
	})
	if err != nil {
		return Verdict{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Verdict{}, fmt.Errorf("moderation service: status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode moderation verdict: %w", err)
	}
	if verdict.Model == "" {
		verdict.Model = c.cfg.Model
	}
	return verdict, nil
}
