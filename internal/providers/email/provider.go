package email

import "context"

// Provider sends a single HTML email and reports the provider message id
// when one exists.
type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	return "", nil
}
