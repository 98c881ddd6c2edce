package moderation

import (
	"github.com/revaly/revaly/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("moderation",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Client {
	if cfg.Moderation.Endpoint == "" {
		return &ApproveAll{Model: cfg.Moderation.Model}
	}
	return NewHTTPClient(Config{
		Endpoint: cfg.Moderation.Endpoint,
		APIKey:   cfg.Moderation.APIKey,
		Model:    cfg.Moderation.Model,
		Timeout:  cfg.Moderation.Timeout,
	})
}
