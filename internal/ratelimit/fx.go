package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewCooldown),
)

// NewCooldown prefers Redis so the window holds across replicas.
func NewCooldown(cfg config.Config, client *redis.Client, clk clock.Clock) Cooldown {
	if client == nil {
		return NewMemoryCooldown(clk)
	}
	return NewRedisCooldown(NewLocker(client), cfg.Onboarding.KeyPrefix+":cooldown:")
}
