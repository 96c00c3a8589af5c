// Package apperror defines the error type rendered by the HTTP error handler as
// the failure envelope.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeServerError             = "SERVER_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeMethodNotAllowed        = "METHOD_NOT_ALLOWED"
	CodeRateLimited             = "RATE_LIMITED"
	CodePayloadTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeBadRequest              = "BAD_REQUEST"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeNoToken                 = "NO_TOKEN"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeAccountDeactivated      = "ACCOUNT_DEACTIVATED"
	CodeAccountLocked           = "ACCOUNT_LOCKED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeAccessDenied            = "ACCESS_DENIED"
	CodeEmailNotVerified        = "EMAIL_NOT_VERIFIED"
	CodeEmailExists             = "EMAIL_EXISTS"
	CodeNoRefreshToken          = "NO_REFRESH_TOKEN"
	CodeInvalidRefreshToken     = "INVALID_REFRESH_TOKEN"
	CodeInvalidPassword         = "INVALID_PASSWORD"
	CodeAlreadyVerified         = "ALREADY_VERIFIED"
	CodeEmailSendFailed         = "EMAIL_SEND_FAILED"
	CodeAPIKeysDisabled         = "API_KEYS_DISABLED"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is an error with everything needed to render a failure response.
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  []FieldError
	Data    any
	Err     error
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func Wrap(err error, status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(http.StatusUnauthorized, code, message)
}

func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func Validation(fields ...FieldError) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

func Internal(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeServerError, "Internal server error")
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Response is the success envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Code    string       `json:"code"`
	Errors  []FieldError `json:"errors,omitempty"`
	Data    any          `json:"data,omitempty"`
}

func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Message: e.Message,
		Code:    e.Code,
		Errors:  e.Fields,
		Data:    e.Data,
	}
}
