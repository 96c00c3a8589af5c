package openapi

import (
	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/config"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ProvideDocs),
)

// ProvideDocs builds the API document skeleton. Handlers add their operations
// when they register routes.
func ProvideDocs(cfg *config.Config) *OpenAPI {
	docs := New(cfg.App.Name+" API", "1.0.0").
		Description("Authentication and authorization for the " + cfg.App.Name + " backend.").
		Server(cfg.App.URL+cfg.App.APIPrefix, cfg.App.Env).
		Tag("auth", "Sign-in, sessions, passwords and API keys").
		BearerAuth(BearerScheme, "Access token returned by login, register and refresh").
		APIKeyAuth(APIKeyScheme, "X-API-Key", "header", "Personal API key").
		CookieAuth(RefreshScheme, cfg.Auth.RefreshCookieName, "HttpOnly refresh token cookie")

	docs.AddSchema("FieldError", apperror.FieldError{})
	docs.AddSchema("ErrorResponse", apperror.ErrorResponse{})
	return docs
}
