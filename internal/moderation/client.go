package moderation

import "context"

type VerdictRequest struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
	Stars  int      `json:"stars"`
}

// Verdict is the black-box moderation decision. OK=false means the
// content was rejected; Category carries the rejection class.
type Verdict struct {
	OK       bool     `json:"ok"`
	Model    string   `json:"model"`
	Score    float64  `json:"score"`
	Flags    []string `json:"flags"`
	Category string   `json:"category,omitempty"`
}

type Client interface {
	Verdict(ctx context.Context, req VerdictRequest) (Verdict, error)
}

// ApproveAll is the fallback when no verdict service is configured.
type ApproveAll struct {
	Model string
}

func (c *ApproveAll) Verdict(ctx context.Context, req VerdictRequest) (Verdict, error) {
	return Verdict{OK: true, Model: c.Model, Score: 1}, nil
}
