package outbox

import (
	"time"

	"github.com/revaly/revaly/internal/config"
	"github.com/revaly/revaly/internal/outbox/repository"
	"github.com/revaly/revaly/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(
		FromAppConfig,
		fx.Annotate(
			func(cfg config.Config) time.Duration { return cfg.Worker.LeaseTTL },
			fx.ResultTags(`name:"outbox_lease_ttl"`),
		),
		repository.Provide,
		func(l *ratelimit.ChannelLimiter) Limiter { return l },
		NewReconciler,
		NewWorker,
	),
)
