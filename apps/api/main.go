package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/revaly/revaly/internal/clock"
	"github.com/revaly/revaly/internal/config"
	"github.com/revaly/revaly/internal/invite"
	"github.com/revaly/revaly/internal/logger"
	"github.com/revaly/revaly/internal/migration"
	"github.com/revaly/revaly/internal/moderation"
	"github.com/revaly/revaly/internal/outbox"
	emailprovider "github.com/revaly/revaly/internal/providers/email"
	smsprovider "github.com/revaly/revaly/internal/providers/sms"
	"github.com/revaly/revaly/internal/ratelimit"
	"github.com/revaly/revaly/internal/review"
	"github.com/revaly/revaly/internal/server"
	"github.com/revaly/revaly/internal/store"
	"github.com/revaly/revaly/internal/token"
	"github.com/revaly/revaly/pkg/db"
	"github.com/revaly/revaly/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		telemetry.Module,
		db.Module,
		migration.Module,
		clock.Module,

		store.Module,
		ratelimit.Module,
		smsprovider.Module,
		emailprovider.Module,
		moderation.Module,
		invite.Module,
		token.Module,
		outbox.Module,
		review.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
