package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
	"go.uber.org/zap"
)

// handleError renders every error returned by a handler or middleware as the
// failure envelope. Server errors are logged and reported to Sentry.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)

	if appErr.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(err))

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request())
		hub.Scope().SetTag("code", appErr.Code)
		hub.CaptureException(err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(appErr.Status)
	} else {
		writeErr = c.JSON(appErr.Status, appErr.Response())
	}
	if writeErr != nil {
		s.logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

func toAppError(err error) *apperror.Error {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return apperror.Wrap(err, he.Code, apperror.CodeServerError, "Internal server error")
		}

		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			message = m
		} else if he.Message != nil {
			message = fmt.Sprint(he.Message)
		}
		return apperror.Wrap(err, he.Code, httpCode(he.Code), message)
	}

	return apperror.Internal(err)
}

func httpCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return apperror.CodeNotFound
	case http.StatusMethodNotAllowed:
		return apperror.CodeMethodNotAllowed
	case http.StatusTooManyRequests:
		return apperror.CodeRateLimited
	case http.StatusRequestEntityTooLarge:
		return apperror.CodePayloadTooLarge
	case http.StatusUnauthorized:
		return apperror.CodeUnauthorized
	case http.StatusForbidden:
		return apperror.CodeAccessDenied
	default:
		return apperror.CodeBadRequest
	}
}
