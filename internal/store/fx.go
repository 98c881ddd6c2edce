package store

import (
	"context"

	"github.com/revaly/revaly/internal/ratelimit"
	"github.com/revaly/revaly/internal/store/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("store",
	fx.Provide(
		repository.Provide,
		NewRegistry,
		func(r *Registry) ratelimit.LimitSource { return r },
	),
	fx.Invoke(runRefresh),
)

func runRefresh(lc fx.Lifecycle, r *Registry) {
	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("initial store refresh failed", zap.Error(err))
			}
			go r.refreshLoop(loopCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
