package sms

import "context"

// DLR is one provider delivery report entry.
type DLR struct {
	MessageID string
	Delivered bool
	Error     string
}

// Provider is the SMS transport contract: a send primitive plus the
// provider's delivery-report feed.
type Provider interface {
	Send(ctx context.Context, phone, text string) (string, error)
	FetchDLRs(ctx context.Context, max int) ([]DLR, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, phone, text string) (string, error) {
	return "", nil
}

func (p *NoOpProvider) FetchDLRs(ctx context.Context, max int) ([]DLR, error) {
	return nil, nil
}
