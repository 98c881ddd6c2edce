package review

import (
	"github.com/revaly/revaly/internal/outbox"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
	"github.com/revaly/revaly/internal/review/repository"
	"github.com/revaly/revaly/internal/review/service"
	"github.com/revaly/revaly/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("review",
	fx.Provide(
		repository.Provide,
		service.NewService,
		func(r *store.Registry) service.Directory { return r },
		func(s reviewdomain.Service) outbox.Sweeper { return s },
	),
)
