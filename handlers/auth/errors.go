package auth

import (
	"errors"
	"net/http"

	"github.com/tech-arch1tect/crmauth/apperror"
	"github.com/tech-arch1tect/crmauth/services/account"
	authsvc "github.com/tech-arch1tect/crmauth/services/auth"
)

// toHTTPError maps service errors onto the failure envelope. Anything
// unrecognised becomes a 500.
func toHTTPError(err error) error {
	var validationErr *authsvc.ValidationError
	if errors.As(err, &validationErr) {
		fields := make([]apperror.FieldError, 0, len(validationErr.Fields))
		for _, f := range validationErr.Fields {
			fields = append(fields, apperror.FieldError{Field: f.Field, Message: f.Message})
		}
		return apperror.Validation(fields...)
	}

	var lockedErr *authsvc.AccountLockedError
	if errors.As(err, &lockedErr) {
		return apperror.New(http.StatusLocked, apperror.CodeAccountLocked, lockedErr.Error()).
			WithData(LockedData{MinutesRemaining: lockedErr.MinutesRemaining, LockedUntil: lockedErr.Until})
	}

	switch {
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		return apperror.Unauthorized(apperror.CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, authsvc.ErrAccountDeactivated):
		return apperror.Forbidden(apperror.CodeAccountDeactivated, "Account has been deactivated")
	case errors.Is(err, authsvc.ErrInvalidRefreshToken):
		return apperror.Unauthorized(apperror.CodeInvalidRefreshToken, "Invalid refresh token")
	case errors.Is(err, authsvc.ErrInvalidPassword):
		return apperror.Unauthorized(apperror.CodeInvalidPassword, "Current password is incorrect")
	case errors.Is(err, authsvc.ErrInvalidResetToken):
		return apperror.BadRequest(apperror.CodeInvalidToken, "Invalid or expired reset token")
	case errors.Is(err, authsvc.ErrInvalidVerificationToken):
		return apperror.BadRequest(apperror.CodeInvalidToken, "Invalid or expired verification token")
	case errors.Is(err, authsvc.ErrEmailExists):
		return apperror.BadRequest(apperror.CodeEmailExists, "User already exists with this email")
	case errors.Is(err, authsvc.ErrAlreadyVerified):
		return apperror.BadRequest(apperror.CodeAlreadyVerified, "Email is already verified")
	case errors.Is(err, authsvc.ErrEmailDelivery):
		return apperror.Wrap(err, http.StatusInternalServerError, apperror.CodeEmailSendFailed, "Email could not be sent. Please try again later.")
	case errors.Is(err, authsvc.ErrAPIKeysDisabled):
		return apperror.Forbidden(apperror.CodeAPIKeysDisabled, "API keys are disabled")
	case errors.Is(err, account.ErrAPIKeyNotFound):
		return apperror.NotFound("API key not found")
	case errors.Is(err, account.ErrAccountNotFound):
		return apperror.New(http.StatusNotFound, apperror.CodeUserNotFound, "User not found")
	default:
		return apperror.Internal(err)
	}
}
