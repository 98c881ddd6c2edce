package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/google/uuid"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	// SMTP has no provider-side id, so stamp our own Message-ID and report it.
	messageID := fmt.Sprintf("<%s@revaly>", uuid.NewString())

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nMessage-ID: %s\r\n%s\r\n%s",
		to, subject, messageID, mime, htmlBody))

	if err := smtp.SendMail(addr, auth, p.cfg.From, []string{to}, msg); err != nil {
		return "", err
	}
	return messageID, nil
}
