package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/openapi"
)

type route struct {
	method      string
	path        string
	handler     echo.HandlerFunc
	middleware  []echo.MiddlewareFunc
	document    func(*openapi.RouteBuilder)
	operationID string
	summary     string
}

var (
	failValidation   = openapi.Fail(http.StatusBadRequest, apperror.CodeValidation)
	failNoToken      = openapi.Fail(http.StatusUnauthorized, apperror.CodeNoToken)
	failTokenExpired = openapi.Fail(http.StatusUnauthorized, apperror.CodeTokenExpired)
	failRateLimited  = openapi.Fail(http.StatusTooManyRequests, apperror.CodeRateLimited)
)

// Routes mounts every /auth route on g and documents it. g is expected to be
// the API group.
func (h *Handler) Routes(g *echo.Group) {
	authenticated := []echo.MiddlewareFunc{h.gate.APIKey(), h.gate.RequireAuth()}
	withAuth := func(extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
		return append(append([]echo.MiddlewareFunc{}, authenticated...), extra...)
	}

	routes := []route{
		{
			method: http.MethodPost, path: "/auth/register", handler: h.Register,
			middleware:  []echo.MiddlewareFunc{h.limiters.Login},
			operationID: "register", summary: "Create an account and sign in",
			document: func(rb *openapi.RouteBuilder) {
				rb.Body(RegisterRequest{}, "New account details").
					ResponseWithCookie(http.StatusCreated, SessionResponse{}, "Account created").
					Errors(failValidation, openapi.Fail(http.StatusBadRequest, apperror.CodeEmailExists), failRateLimited).
					NoSecurity()
			},
		},
		{
			method: http.MethodPost, path: "/auth/login", handler: h.Login,
			middleware:  []echo.MiddlewareFunc{h.limiters.Login},
			operationID: "login", summary: "Sign in with email and password",
			document: func(rb *openapi.RouteBuilder) {
				rb.Body(LoginRequest{}, "Credentials").
					ResponseWithCookie(http.StatusOK, SessionResponse{}, "Signed in").
					Errors(
						failValidation,
						openapi.Fail(http.StatusUnauthorized, apperror.CodeInvalidCredentials),
						openapi.Fail(http.StatusForbidden, apperror.CodeAccountDeactivated),
						openapi.Fail(http.StatusLocked, apperror.CodeAccountLocked),
						failRateLimited,
					).
					NoSecurity()
			},
		},
		{
			method: http.MethodPost, path: "/auth/refresh", handler: h.Refresh,
			operationID: "refresh", summary: "Rotate the refresh cookie and issue a new access token",
			document: func(rb *openapi.RouteBuilder) {
				rb.ResponseWithCookie(http.StatusOK, TokenResponse{}, "Token refreshed").
					Errors(
						openapi.Fail(http.StatusUnauthorized, apperror.CodeNoRefreshToken),
						openapi.Fail(http.StatusUnauthorized, apperror.CodeInvalidRefreshToken),
						openapi.Fail(http.StatusForbidden, apperror.CodeAccountDeactivated),
					).
					NoSecurity().
					Security(openapi.RefreshScheme)
			},
		},
		{
			method: http.MethodPost, path: "/auth/logout", handler: h.Logout,
			middleware:  authenticated,
			operationID: "logout", summary: "End the current session",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, nil, "Logged out").Errors(failNoToken, failTokenExpired)
			},
		},
		{
			method: http.MethodPost, path: "/auth/logout-all", handler: h.LogoutAll,
			middleware:  authenticated,
			operationID: "logoutAll", summary: "End every session of the account",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, nil, "Logged out everywhere").Errors(failNoToken, failTokenExpired)
			},
		},
		{
			method: http.MethodGet, path: "/auth/me", handler: h.Me,
			middleware:  authenticated,
			operationID: "me", summary: "Current account",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, UserResponse{}, "Current account").Errors(failNoToken, failTokenExpired)
			},
		},
		{
			method: http.MethodPost, path: "/auth/change-password", handler: h.ChangePassword,
			middleware:  authenticated,
			operationID: "changePassword", summary: "Change the password of the signed-in account",
			document: func(rb *openapi.RouteBuilder) {
				rb.Body(ChangePasswordRequest{}, "Current and new password").
					Response(http.StatusOK, nil, "Password changed").
					Errors(failValidation, openapi.Fail(http.StatusUnauthorized, apperror.CodeInvalidPassword), failNoToken)
			},
		},
		{
			method: http.MethodPost, path: "/auth/forgot-password", handler: h.ForgotPassword,
			middleware:  []echo.MiddlewareFunc{h.limiters.Password},
			operationID: "forgotPassword", summary: "Email a password reset link",
			document: func(rb *openapi.RouteBuilder) {
				rb.Body(ForgotPasswordRequest{}, "Account email").
					Response(http.StatusOK, nil, "Accepted whether or not the account exists").
					Errors(failValidation, failRateLimited, openapi.Fail(http.StatusInternalServerError, apperror.CodeEmailSendFailed)).
					NoSecurity()
			},
		},
		{
			method: http.MethodPost, path: "/auth/reset-password/:token", handler: h.ResetPassword,
			operationID: "resetPassword", summary: "Set a new password with a reset token",
			document: func(rb *openapi.RouteBuilder) {
				rb.PathParam("token", "Token from the reset email").
					Body(ResetPasswordRequest{}, "New password").
					Response(http.StatusOK, nil, "Password reset").
					Errors(failValidation, openapi.Fail(http.StatusBadRequest, apperror.CodeInvalidToken)).
					NoSecurity()
			},
		},
		{
			method: http.MethodGet, path: "/auth/verify-email/:token", handler: h.VerifyEmail,
			operationID: "verifyEmail", summary: "Confirm an email address",
			document: func(rb *openapi.RouteBuilder) {
				rb.PathParam("token", "Token from the verification email").
					Response(http.StatusOK, UserResponse{}, "Email verified").
					Errors(openapi.Fail(http.StatusBadRequest, apperror.CodeInvalidToken)).
					NoSecurity()
			},
		},
		{
			method: http.MethodPost, path: "/auth/resend-verification", handler: h.ResendVerification,
			middleware:  authenticated,
			operationID: "resendVerification", summary: "Send a new verification email",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, nil, "Verification email sent").
					Errors(
						openapi.Fail(http.StatusBadRequest, apperror.CodeAlreadyVerified),
						failNoToken,
						openapi.Fail(http.StatusInternalServerError, apperror.CodeEmailSendFailed),
					)
			},
		},
		{
			method: http.MethodPost, path: "/auth/api-keys", handler: h.CreateAPIKey,
			middleware:  withAuth(h.gate.RequireVerifiedEmail()),
			operationID: "createApiKey", summary: "Create a personal API key",
			document: func(rb *openapi.RouteBuilder) {
				rb.Body(CreateAPIKeyRequest{}, "Key label").
					Response(http.StatusCreated, CreatedAPIKeyResponse{}, "Key created").
					Errors(
						failValidation,
						failNoToken,
						openapi.Fail(http.StatusForbidden, apperror.CodeEmailNotVerified),
						openapi.Fail(http.StatusForbidden, apperror.CodeAPIKeysDisabled),
					)
			},
		},
		{
			method: http.MethodGet, path: "/auth/api-keys", handler: h.ListAPIKeys,
			middleware:  authenticated,
			operationID: "listApiKeys", summary: "List API keys",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, APIKeysResponse{}, "API keys").Errors(failNoToken)
			},
		},
		{
			method: http.MethodDelete, path: "/auth/api-keys/:id", handler: h.RevokeAPIKey,
			middleware:  authenticated,
			operationID: "revokeApiKey", summary: "Revoke an API key",
			document: func(rb *openapi.RouteBuilder) {
				rb.PathParam("id", "API key id").
					Response(http.StatusOK, nil, "Key revoked").
					Errors(failNoToken, openapi.Fail(http.StatusNotFound, apperror.CodeNotFound))
			},
		},
		{
			method: http.MethodGet, path: "/auth/sessions", handler: h.Sessions,
			middleware:  authenticated,
			operationID: "listSessions", summary: "Active refresh sessions",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, SessionsResponse{}, "Active sessions").Errors(failNoToken)
			},
		},
		{
			method: http.MethodGet, path: "/auth/login-history", handler: h.LoginHistory,
			middleware:  authenticated,
			operationID: "loginHistory", summary: "Most recent sign-in attempts",
			document: func(rb *openapi.RouteBuilder) {
				rb.Response(http.StatusOK, LoginHistoryResponse{}, "Sign-in attempts").Errors(failNoToken)
			},
		},
	}

	for _, r := range routes {
		g.Add(r.method, r.path, r.handler, r.middleware...)

		if h.docs == nil {
			continue
		}
		rb := h.docs.Document(r.method, r.path).
			OperationID(r.operationID).
			Summary(r.summary).
			Tags("auth").
			Security(openapi.BearerScheme, openapi.APIKeyScheme)
		r.document(rb)
		rb.Build()
	}
}
