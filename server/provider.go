package server

import (
	"context"

	"github.com/tech-arch1tect/crmauth/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, srv *Server, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := InitSentry(cfg); err != nil {
				srv.logger.Warn("sentry disabled", zap.Error(err))
			}
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			defer FlushSentry()
			return srv.Shutdown(ctx)
		},
	})
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("server shutting down")
	return s.echo.Shutdown(ctx)
}
