package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	GatewayURL string
	APIKey     string
	Sender     string
}

// GatewayProvider talks to an HTTP SMS gateway exposing a JSON send
// endpoint and a pull-based delivery-report feed.
type GatewayProvider struct {
	cfg    Config
	client *http.Client
}

func NewGateway(cfg Config) *GatewayProvider {
	return &GatewayProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendRequest struct {
	To     string `json:"to"`
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (p *GatewayProvider) Send(ctx context.Context, phone, text string) (string, error) {
	body, err := json.Marshal(sendRequest{To: phone, Text: text, Sender: p.cfg.Sender})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/messages"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sms gateway response: %w", err)
	}
	if resp.StatusCode >= 300 || out.Error != "" {
		return "", fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode, out.Error)
	}
	return out.MessageID, nil
}

type dlrEntry struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type dlrResponse struct {
	Reports []dlrEntry `json:"reports"`
}

func (p *GatewayProvider) FetchDLRs(ctx context.Context, max int) ([]DLR, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?limit=%d", p.endpoint("/reports"), max), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sms gateway: status %d fetching reports", resp.StatusCode)
	}

	var out dlrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode dlr feed: %w", err)
	}

	dlrs := make([]DLR, 0, len(out.Reports))
	for _, entry := range out.Reports {
		dlrs = append(dlrs, DLR{
			MessageID: entry.MessageID,
			Delivered: strings.EqualFold(entry.Status, "delivered"),
			Error:     entry.Error,
		})
	}
	return dlrs, nil
}

func (p *GatewayProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.GatewayURL, "/") + path
}
