package outbox

import (
	"time"

	"github.com/revaly/revaly/internal/config"
)

// Config controls worker pacing and batch sizes.
type Config struct {
	PollInterval   time.Duration
	RunTimeout     time.Duration
	BatchSize      int
	LeaseTTL       time.Duration
	RateLimitDelay time.Duration
	DLRPageSize    int
	SweepPageSize  int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   30 * time.Second,
		RunTimeout:     5 * time.Minute,
		BatchSize:      25,
		LeaseTTL:       2 * time.Minute,
		RateLimitDelay: time.Second,
		DLRPageSize:    100,
		SweepPageSize:  50,
	}
}

func FromAppConfig(cfg config.Config) Config {
	return Config{
		PollInterval:  cfg.Worker.PollInterval,
		BatchSize:     cfg.Worker.BatchSize,
		LeaseTTL:      cfg.Worker.LeaseTTL,
		DLRPageSize:   cfg.Worker.DLRPageSize,
		SweepPageSize: cfg.Worker.SweepPageSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = defaults.RateLimitDelay
	}
	if c.DLRPageSize <= 0 {
		c.DLRPageSize = defaults.DLRPageSize
	}
	if c.SweepPageSize <= 0 {
		c.SweepPageSize = defaults.SweepPageSize
	}
	return c
}
