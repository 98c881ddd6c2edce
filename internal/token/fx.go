package token

import (
	"github.com/revaly/revaly/internal/token/repository"
	"github.com/revaly/revaly/internal/token/service"
	"go.uber.org/fx"
)

var Module = fx.Module("token.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
