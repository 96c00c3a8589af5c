package auth

import (
	"context"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/openapi"
	"github.com/tech-arch1tect/crmauth/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes mounts the auth routes, and the API document when enabled,
// under the API prefix.
func RegisterRoutes(srv *server.Server, h *Handler, docs *openapi.OpenAPI, cfg *config.Config) {
	api := srv.API(h.limiters.API)
	h.Routes(api)

	if !cfg.Docs.Enabled {
		return
	}
	if err := docs.Validate(context.Background()); err != nil {
		h.logger.Warn("api document is invalid", zap.Error(err))
	}
	docs.Mount(api, cfg.Docs.Path)
}
