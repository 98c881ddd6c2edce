package ratelimit

import (
	"context"
	"fmt"

	"github.com/revaly/revaly/internal/config"
)

// Allower is the bucket primitive behind the channel limiter.
type Allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// LimitSource supplies per-store rate overrides. A miss falls back to the
// configured channel defaults.
type LimitSource interface {
	ChannelLimit(ctx context.Context, storeUID, channel string) (rate float64, burst int, ok bool)
}

// ChannelLimiter answers "may this store send on this channel now?"
// without blocking. Denial is a scheduling signal, not an error.
type ChannelLimiter struct {
	buckets   Allower
	overrides LimitSource
	cfg       config.RateLimitConfig
}

func NewChannelLimiter(buckets Allower, overrides LimitSource, cfg config.RateLimitConfig) *ChannelLimiter {
	return &ChannelLimiter{
		buckets:   buckets,
		overrides: overrides,
		cfg:       cfg,
	}
}

// Allow consumes one send slot for the store/channel pair. Any limiter
// failure denies admission: over-admitting is the one outcome the
// accounting must never produce.
func (l *ChannelLimiter) Allow(ctx context.Context, storeUID, channel string) (bool, error) {
	if l == nil || l.buckets == nil {
		return false, fmt.Errorf("channel limiter not configured")
	}

	rate, burst := l.limitsFor(ctx, storeUID, channel)
	if rate <= 0 || burst <= 0 {
		return false, fmt.Errorf("no rate configured for channel %q", channel)
	}

	key := fmt.Sprintf("ratelimit:send:%s:%s", storeUID, channel)
	res, err := l.buckets.Allow(ctx, key, rate, burst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *ChannelLimiter) limitsFor(ctx context.Context, storeUID, channel string) (float64, int) {
	if l.overrides != nil {
		if rate, burst, ok := l.overrides.ChannelLimit(ctx, storeUID, channel); ok {
			return rate, burst
		}
	}
	switch channel {
	case "sms":
		return l.cfg.SMSRate, l.cfg.SMSBurst
	case "email":
		return l.cfg.EmailRate, l.cfg.EmailBurst
	default:
		return 0, 0
	}
}
