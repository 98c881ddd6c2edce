package ratelimit

import (
	"github.com/revaly/revaly/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Buckets   *TokenBucket
	Overrides LimitSource `optional:"true"`
	Config    config.Config
}

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideChannelLimiter(p Params) *ChannelLimiter {
	return NewChannelLimiter(p.Buckets, p.Overrides, p.Config.RateLimit)
}

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewTokenBucket,
		NewLocker,
		provideChannelLimiter,
	),
)
