package authgate

import (
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/services/token"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ProvideGate),
)

func ProvideGate(tokens *token.Service, store *account.Store, cfg *config.Config, logger *logging.Service) *Gate {
	return New(tokens, store, cfg, logger)
}
