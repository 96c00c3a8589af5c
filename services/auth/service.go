package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/services/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrAccountLocked            = errors.New("account is temporarily locked")
	ErrAccountDeactivated       = errors.New("account has been deactivated")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrInvalidPassword          = errors.New("current password is incorrect")
	ErrInvalidResetToken        = errors.New("invalid or expired password reset token")
	ErrInvalidVerificationToken = errors.New("invalid or expired email verification token")
	ErrEmailExists              = errors.New("an account with this email already exists")
	ErrAlreadyVerified          = errors.New("email is already verified")
	ErrEmailDelivery            = errors.New("email could not be sent")
	ErrAPIKeysDisabled          = errors.New("api keys are disabled")
	ErrPasswordHashingFailed    = errors.New("failed to hash password")
)

// AccountLockedError carries the lock expiry so callers can report the wait.
type AccountLockedError struct {
	Until            time.Time
	MinutesRemaining int
}

func newAccountLockedError(until, now time.Time) *AccountLockedError {
	return &AccountLockedError{
		Until:            until,
		MinutesRemaining: int(math.Ceil(until.Sub(now).Minutes())),
	}
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", e.MinutesRemaining)
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Mailer delivers templated transactional email.
type Mailer interface {
	SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error
}

// Result is the outcome of a flow that starts or rotates a session.
type Result struct {
	Account *account.Account
	Tokens  *token.Pair
}

type Service struct {
	config    *config.Config
	store     *account.Store
	tokens    *token.Service
	mailer    Mailer
	logger    *logging.Service
	now       func() time.Time
	dummyHash []byte
}

func NewService(cfg *config.Config, store *account.Store, tokens *token.Service, mailer Mailer, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}

	// Compared against for unknown emails so both failure paths cost one bcrypt round.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.Auth.BcryptCost)

	return &Service{
		config:    cfg,
		store:     store,
		tokens:    tokens,
		mailer:    mailer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

// SetClock overrides the time source for lockout and token expiry decisions.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) AccessExpirySeconds() int {
	return s.tokens.AccessExpirySeconds()
}

func (s *Service) ValidatePassword(password string) error {
	policy := s.config.Auth

	if len(password) < policy.MinLength {
		return &ValidationError{Fields: []FieldError{{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", policy.MinLength),
		}}}
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if policy.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if policy.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if policy.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if policy.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: []FieldError{{
			Field:   "password",
			Message: "password must contain at least " + strings.Join(missing, ", "),
		}}}
	}
	return nil
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return "", ErrPasswordHashingFailed
	}
	return string(hash), nil
}

func (s *Service) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) generateSecureToken() (string, error) {
	buf := make([]byte, s.config.Auth.TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// storageError logs an unexpected persistence failure and hides it behind a generic error.
func (s *Service) storageError(op string, err error) error {
	s.logger.Error("storage failure", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) send(ctx context.Context, acct *account.Account, templateName, subject string, data map[string]any) error {
	if s.mailer == nil {
		return fmt.Errorf("%w: no mailer configured", ErrEmailDelivery)
	}

	payload := map[string]any{
		"AppName":   s.config.App.Name,
		"FirstName": acct.FirstName,
		"Email":     acct.Email,
	}
	for k, v := range data {
		payload[k] = v
	}

	if err := s.mailer.SendTemplate(ctx, templateName, []string{acct.Email}, subject, payload); err != nil {
		s.logger.Warn("email delivery failed",
			zap.String("template", templateName),
			zap.Uint("account_id", acct.ID),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}
	return nil
}

func (s *Service) clientURL(path string) string {
	return strings.TrimRight(s.config.App.ClientURL, "/") + path
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		if d == 24*time.Hour {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
