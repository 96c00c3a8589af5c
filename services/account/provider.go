package account

import (
	"context"

	"github.com/tech-arch1tect/crmauth/config"
	"go.uber.org/fx"
)

var Options = fx.Options(
	fx.Provide(NewStore),
	fx.Invoke(registerCleanupWorker),
)

func registerCleanupWorker(lc fx.Lifecycle, store *Store, cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			store.StartCleanupWorker(ctx, cfg.Auth.CleanupInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
