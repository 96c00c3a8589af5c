package mail

import (
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/auth"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/fx"
)

var Options = fx.Options(
	fx.Provide(ProvideMailer),
)

// ProvideMailer returns the SMTP service when mail is enabled and a logging
// stand-in otherwise.
func ProvideMailer(cfg *config.Config, logger *logging.Service) (auth.Mailer, error) {
	if !cfg.Mail.Enabled {
		logger.Warn("mail delivery disabled, outgoing messages will only be logged")
		return NewLogSender(logger), nil
	}
	return NewService(&cfg.Mail, logger)
}
