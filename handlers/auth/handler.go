package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/middleware/authgate"
	"github.com/tech-arch1tect/crmauth/middleware/ratelimit"
	"github.com/tech-arch1tect/crmauth/openapi"
	"github.com/tech-arch1tect/crmauth/services/account"
	authsvc "github.com/tech-arch1tect/crmauth/services/auth"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/services/token"
)

// Handler serves the /auth routes.
type Handler struct {
	service  *authsvc.Service
	gate     *authgate.Gate
	limiters *ratelimit.Limiters
	docs     *openapi.OpenAPI
	cfg      *config.Config
	logger   *logging.Service
}

func NewHandler(service *authsvc.Service, gate *authgate.Gate, limiters *ratelimit.Limiters, docs *openapi.OpenAPI, cfg *config.Config, logger *logging.Service) *Handler {
	return &Handler{
		service:  service,
		gate:     gate,
		limiters: limiters,
		docs:     docs,
		cfg:      cfg,
		logger:   logger,
	}
}

func clientInfo(c echo.Context) account.ClientInfo {
	return account.ClientInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.Wrap(err, http.StatusBadRequest, apperror.CodeBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}

func success(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, apperror.Response{Success: true, Message: message, Data: data})
}

func (h *Handler) setRefreshCookie(c echo.Context, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Auth.RefreshCookieName,
		Value:    value,
		Path:     h.cfg.Auth.RefreshCookiePath,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.App.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.Auth.RefreshCookieName,
		Value:    "",
		Path:     h.cfg.Auth.RefreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.App.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) refreshCookie(c echo.Context) string {
	cookie, err := c.Cookie(h.cfg.Auth.RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (h *Handler) startSession(c echo.Context, status int, message string, acct *account.Account, pair *token.Pair) error {
	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	return success(c, status, message, SessionResponse{
		User:        acct,
		AccessToken: pair.AccessToken,
		ExpiresIn:   h.service.AccessExpirySeconds(),
	})
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.service.Register(c.Request().Context(), authsvc.RegisterInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
		Department: account.Department(req.Department),
		Timezone:   req.Timezone,
		Language:   req.Language,
	}, clientInfo(c))
	if err != nil {
		return toHTTPError(err)
	}

	return h.startSession(c, http.StatusCreated, "User registered successfully", result.Account, result.Tokens)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.service.Login(c.Request().Context(), req.Email, req.Password, clientInfo(c))
	if err != nil {
		return toHTTPError(err)
	}

	return h.startSession(c, http.StatusOK, "Login successful", result.Account, result.Tokens)
}

func (h *Handler) Refresh(c echo.Context) error {
	presented := h.refreshCookie(c)
	if presented == "" {
		return apperror.Unauthorized(apperror.CodeNoRefreshToken, "Refresh token not found")
	}

	result, err := h.service.Refresh(c.Request().Context(), presented, clientInfo(c))
	if err != nil {
		h.clearRefreshCookie(c)
		return toHTTPError(err)
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	return success(c, http.StatusOK, "Token refreshed successfully", TokenResponse{
		AccessToken: result.Tokens.AccessToken,
		ExpiresIn:   h.service.AccessExpirySeconds(),
	})
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), authgate.GetAccountID(c), h.refreshCookie(c)); err != nil {
		return toHTTPError(err)
	}

	h.clearRefreshCookie(c)
	return success(c, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) LogoutAll(c echo.Context) error {
	if err := h.service.LogoutAll(c.Request().Context(), authgate.GetAccountID(c)); err != nil {
		return toHTTPError(err)
	}

	h.clearRefreshCookie(c)
	return success(c, http.StatusOK, "Logged out from all devices", nil)
}

func (h *Handler) Me(c echo.Context) error {
	acct, err := h.service.Me(c.Request().Context(), authgate.GetAccountID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "", UserResponse{User: acct})
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.service.ChangePassword(c.Request().Context(), authgate.GetAccountID(c), req.CurrentPassword, req.Password, h.refreshCookie(c))
	if err != nil {
		return toHTTPError(err)
	}

	if h.cfg.Auth.ChangePasswordPolicy == config.RevokeAllSessions {
		h.clearRefreshCookie(c)
	}
	return success(c, http.StatusOK, "Password changed successfully", nil)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "If an account exists with this email, a password reset link has been sent.", nil)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.ResetPassword(c.Request().Context(), c.Param("token"), req.Password); err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "Password reset successful. Please log in with your new password.", nil)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	acct, err := h.service.VerifyEmail(c.Request().Context(), c.Param("token"))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "Email verified successfully", UserResponse{User: acct})
}

func (h *Handler) ResendVerification(c echo.Context) error {
	if err := h.service.ResendVerification(c.Request().Context(), authgate.GetAccountID(c)); err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "Verification email sent", nil)
}

func (h *Handler) CreateAPIKey(c echo.Context) error {
	var req CreateAPIKeyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	raw, key, err := h.service.CreateAPIKey(c.Request().Context(), authgate.GetAccountID(c), strings.TrimSpace(req.Name))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusCreated, "API key created. Store it now, it will not be shown again.", CreatedAPIKeyResponse{
		Key:    raw,
		APIKey: key,
	})
}

func (h *Handler) ListAPIKeys(c echo.Context) error {
	keys, err := h.service.ListAPIKeys(c.Request().Context(), authgate.GetAccountID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "", APIKeysResponse{APIKeys: keys})
}

func (h *Handler) RevokeAPIKey(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return apperror.NotFound("API key not found")
	}

	if err := h.service.RevokeAPIKey(c.Request().Context(), authgate.GetAccountID(c), uint(id)); err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "API key revoked", nil)
}

func (h *Handler) Sessions(c echo.Context) error {
	sessions, err := h.service.Sessions(c.Request().Context(), authgate.GetAccountID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "", SessionsResponse{Sessions: sessions})
}

func (h *Handler) LoginHistory(c echo.Context) error {
	history, err := h.service.LoginHistory(c.Request().Context(), authgate.GetAccountID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return success(c, http.StatusOK, "", LoginHistoryResponse{LoginHistory: history})
}
