package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/tech-arch1tect/crmauth/services/account"
	"go.uber.org/zap"
)

type RegisterInput struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Department account.Department
	Timezone   string
	Language   string
}

// Register creates an account, emails a verification link and signs the new
// account in. A failed verification email does not fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput, client account.ClientInfo) (*Result, error) {
	if err := s.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	acct := &account.Account{
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Email:      in.Email,
		Password:   hash,
		Role:       account.RoleUser,
		Department: in.Department,
		Timezone:   in.Timezone,
		Language:   in.Language,
	}
	if err := s.store.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, ErrEmailExists
		}
		return nil, s.storageError("create account", err)
	}

	if err := s.issueVerification(ctx, acct); err != nil && !errors.Is(err, ErrEmailDelivery) {
		return nil, err
	}

	pair, err := s.startSession(ctx, acct.ID, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.Uint("account_id", acct.ID))
	return &Result{Account: acct, Tokens: pair}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, raw string) (*account.Account, error) {
	acct, err := s.store.FindByVerificationHash(ctx, account.HashToken(raw))
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrInvalidVerificationToken
		}
		return nil, s.storageError("load account", err)
	}

	if acct.EmailVerificationExpiresAt == nil || !acct.EmailVerificationExpiresAt.After(s.now()) {
		_ = s.store.ClearVerificationToken(ctx, acct.ID)
		return nil, ErrInvalidVerificationToken
	}

	if err := s.store.MarkEmailVerified(ctx, acct.ID); err != nil {
		return nil, s.storageError("mark email verified", err)
	}

	acct.EmailVerified = true
	acct.EmailVerificationHash = ""
	acct.EmailVerificationExpiresAt = nil

	s.logger.Info("email verified", zap.Uint("account_id", acct.ID))
	return acct, nil
}

// ResendVerification issues a fresh verification link, replacing any earlier one.
func (s *Service) ResendVerification(ctx context.Context, userID uint) error {
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return err
		}
		return s.storageError("load account", err)
	}
	if acct.EmailVerified {
		return ErrAlreadyVerified
	}

	return s.issueVerification(ctx, acct)
}

func (s *Service) issueVerification(ctx context.Context, acct *account.Account) error {
	raw, err := s.generateSecureToken()
	if err != nil {
		return err
	}
	expiry := s.config.Auth.EmailVerificationExpiry
	if err := s.store.SetVerificationToken(ctx, acct.ID, account.HashToken(raw), s.now().Add(expiry)); err != nil {
		return s.storageError("store verification token", err)
	}

	err = s.send(ctx, acct, "email_verification", "Please verify your email address", map[string]any{
		"VerifyURL":      s.clientURL("/verify-email/" + raw),
		"ExpiryDuration": humanDuration(expiry),
	})
	if err != nil {
		if clearErr := s.store.ClearVerificationToken(ctx, acct.ID); clearErr != nil {
			s.logger.Error("failed to clear unsent verification token", zap.Uint("account_id", acct.ID), zap.Error(clearErr))
		}
		return err
	}
	return nil
}
