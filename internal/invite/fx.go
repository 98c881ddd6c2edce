package invite

import (
	"github.com/revaly/revaly/internal/invite/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invite",
	fx.Provide(repository.Provide),
)
