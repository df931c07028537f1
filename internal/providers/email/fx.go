package email

import (
	"context"

	"github.com/smallbiznis/launchpad/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Email.Provider {
	case "ses":
		return NewSES(context.Background(), cfg.Email.SESRegion, cfg.Email.From)
	case "noop", "none":
		log.Warn("email delivery disabled")
		return NoOpProvider{}, nil
	default:
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		}), nil
	}
}
