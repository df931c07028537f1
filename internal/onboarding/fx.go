package onboarding

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/launchpad/internal/config"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/progress"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("onboarding",
	fx.Provide(NewKV),
	fx.Provide(NewProgressStore),
	fx.Provide(steps.NewDefaultRegistry),
	fx.Provide(NewService),
)

type KVParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
	DB    *gorm.DB      `optional:"true"`
}

// NewKV picks the progress backend from config, falling back to memory
// when the chosen backend is not available.
func NewKV(p KVParams) progress.KV {
	log := p.Log.Named("onboarding.progress")
	switch p.Cfg.ProgressStore() {
	case config.ProgressStoreRedis:
		if p.Redis != nil {
			log.Info("onboarding progress backend", zap.String("store", config.ProgressStoreRedis))
			return progress.NewRedisKV(p.Redis, 0)
		}
		log.Warn("redis progress store requested but redis is disabled; using memory")
	case config.ProgressStoreSQL:
		if p.DB != nil {
			log.Info("onboarding progress backend", zap.String("store", config.ProgressStoreSQL))
			return progress.NewSQLKV(p.DB)
		}
		log.Warn("sql progress store requested without a database; using memory")
	}
	return progress.NewMemoryKV()
}

type StoreParams struct {
	fx.In

	Cfg     config.Config
	KV      progress.KV
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewProgressStore(p StoreParams) domain.ProgressStore {
	return progress.NewStore(p.KV, p.Cfg.Onboarding.KeyPrefix, p.Log, p.Metrics)
}
