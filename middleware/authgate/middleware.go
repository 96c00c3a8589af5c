package authgate

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/crm"
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/services/token"
	"go.uber.org/zap"
)

const (
	AccountKey  = "_auth_account"
	MethodKey   = "_auth_method"
	ClaimsKey   = "_auth_claims"
	ResourceKey = "_auth_resource"

	APIKeyHeader = "X-API-Key"
)

type Method string

const (
	MethodBearer Method = "bearer"
	MethodAPIKey Method = "api_key"
)

// Accounts is the part of the account store the gate reads from.
type Accounts interface {
	FindByID(ctx context.Context, id uint) (*account.Account, error)
	ResolveAPIKey(ctx context.Context, raw string, now time.Time) (*account.Account, *account.APIKey, error)
}

// Loader fetches the resource named by a path parameter. It returns
// crm.ErrNotFound when nothing matches.
type Loader func(ctx context.Context, id string) (crm.Owned, error)

type Gate struct {
	tokens   *token.Service
	accounts Accounts
	cfg      *config.Config
	logger   *logging.Service
}

func New(tokens *token.Service, accounts Accounts, cfg *config.Config, logger *logging.Service) *Gate {
	return &Gate{tokens: tokens, accounts: accounts, cfg: cfg, logger: logger}
}

// RequireAuth authenticates the request with a bearer access token unless an
// earlier middleware already did so with an API key.
func (g *Gate) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetAccount(c) != nil {
				return next(c)
			}

			raw := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if raw == "" {
				return apperror.Unauthorized(apperror.CodeNoToken, "Access token required")
			}

			claims, err := g.tokens.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					return apperror.Unauthorized(apperror.CodeTokenExpired, "Access token expired")
				}
				return apperror.Unauthorized(apperror.CodeInvalidToken, "Invalid access token")
			}

			acct, err := g.accounts.FindByID(c.Request().Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, account.ErrAccountNotFound) {
					return apperror.Unauthorized(apperror.CodeUserNotFound, "User not found")
				}
				return apperror.Wrap(err, http.StatusInternalServerError, apperror.CodeServerError, "Authentication error")
			}
			if !acct.Active {
				return apperror.Unauthorized(apperror.CodeAccountDeactivated, "Account is deactivated")
			}

			c.Set(AccountKey, acct)
			c.Set(MethodKey, MethodBearer)
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// APIKey authenticates requests carrying an X-API-Key header. Unknown, revoked
// or inactive keys fall through to the next authenticator.
func (g *Gate) APIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(APIKeyHeader)
			if raw == "" || !g.cfg.Auth.APIKeysEnabled {
				return next(c)
			}

			acct, key, err := g.accounts.ResolveAPIKey(c.Request().Context(), raw, time.Now().UTC())
			if err != nil {
				if !errors.Is(err, account.ErrAPIKeyNotFound) && !errors.Is(err, account.ErrAccountNotFound) {
					g.logger.Error("api key lookup failed", zap.Error(err))
				}
				return next(c)
			}
			if !acct.Active {
				g.logger.Info("api key for deactivated account ignored", zap.Uint("account_id", acct.ID), zap.Uint("key_id", key.ID))
				return next(c)
			}

			c.Set(AccountKey, acct)
			c.Set(MethodKey, MethodAPIKey)
			return next(c)
		}
	}
}

func (g *Gate) RequireRole(roles ...account.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := GetAccount(c)
			if acct == nil {
				return apperror.Unauthorized(apperror.CodeNoToken, "Authentication required")
			}
			if !slices.Contains(roles, acct.Role) {
				return apperror.Forbidden(apperror.CodeInsufficientPermissions, "Insufficient permissions")
			}
			return next(c)
		}
	}
}

func (g *Gate) RequireDepartment(departments ...account.Department) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := GetAccount(c)
			if acct == nil {
				return apperror.Unauthorized(apperror.CodeNoToken, "Authentication required")
			}
			if !slices.Contains(departments, acct.Department) {
				return apperror.Forbidden(apperror.CodeInsufficientPermissions, "Access restricted to specific departments")
			}
			return next(c)
		}
	}
}

// RequireOwnership loads the resource named by param and lets the request through
// for admins, the owner, and accounts with special access to it. The loaded
// resource is available through GetResource.
func (g *Gate) RequireOwnership(load Loader, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := GetAccount(c)
			if acct == nil {
				return apperror.Unauthorized(apperror.CodeNoToken, "Authentication required")
			}

			resource, err := load(c.Request().Context(), c.Param(param))
			if err != nil {
				if errors.Is(err, crm.ErrNotFound) {
					return apperror.NotFound("Resource not found")
				}
				return apperror.Wrap(err, http.StatusInternalServerError, apperror.CodeServerError, "Error checking resource permissions")
			}
			if resource == nil {
				return apperror.NotFound("Resource not found")
			}

			if acct.Role != account.RoleAdmin && !crm.CanAccess(resource, acct.ID) {
				return apperror.Forbidden(apperror.CodeAccessDenied, "You do not have permission to access this resource")
			}

			c.Set(ResourceKey, resource)
			return next(c)
		}
	}
}

func (g *Gate) RequireVerifiedEmail() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acct := GetAccount(c)
			if acct == nil {
				return apperror.Unauthorized(apperror.CodeNoToken, "Authentication required")
			}
			if !acct.EmailVerified {
				return apperror.Forbidden(apperror.CodeEmailNotVerified, "Email verification required")
			}
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func GetAccount(c echo.Context) *account.Account {
	if acct, ok := c.Get(AccountKey).(*account.Account); ok {
		return acct
	}
	return nil
}

func GetAccountID(c echo.Context) uint {
	if acct := GetAccount(c); acct != nil {
		return acct.ID
	}
	return 0
}

func GetMethod(c echo.Context) Method {
	if m, ok := c.Get(MethodKey).(Method); ok {
		return m
	}
	return ""
}

func GetClaims(c echo.Context) *token.Claims {
	if claims, ok := c.Get(ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

func GetResource(c echo.Context) crm.Owned {
	if r, ok := c.Get(ResourceKey).(crm.Owned); ok {
		return r
	}
	return nil
}
