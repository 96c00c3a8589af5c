package auth

import (
	"context"
	"errors"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/account"
	"go.uber.org/zap"
)

// ChangePassword replaces the password of a signed-in account. Which refresh
// sessions survive depends on the configured ChangePasswordPolicy.
func (s *Service) ChangePassword(ctx context.Context, userID uint, current, next, presentedRefresh string) error {
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return err
		}
		return s.storageError("load account", err)
	}

	if err := s.VerifyPassword(acct.Password, current); err != nil {
		s.logger.Info("password change rejected: wrong current password", zap.Uint("account_id", userID))
		return ErrInvalidPassword
	}
	if err := s.ValidatePassword(next); err != nil {
		return err
	}

	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.store.UpdatePassword(ctx, userID, hash, now); err != nil {
		return s.storageError("update password", err)
	}

	var revoked int64
	switch s.config.Auth.ChangePasswordPolicy {
	case config.RevokeAllSessions:
		revoked, err = s.store.ClearRefreshTokens(ctx, userID)
	default:
		revoked, err = s.store.RetainRefreshToken(ctx, userID, account.HashToken(presentedRefresh))
	}
	if err != nil {
		return s.storageError("revoke sessions after password change", err)
	}

	s.logger.Info("password changed",
		zap.Uint("account_id", userID),
		zap.String("policy", string(s.config.Auth.ChangePasswordPolicy)),
		zap.Int64("sessions_revoked", revoked))

	_ = s.send(ctx, acct, "password_changed", "Your password was changed", map[string]any{
		"ChangedAt": now.Format("2 Jan 2006 15:04 MST"),
	})
	return nil
}

// RequestPasswordReset emails a one-time reset link. Unknown emails succeed
// silently so the response reveals nothing about which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return s.storageError("load account", err)
	}

	raw, err := s.generateSecureToken()
	if err != nil {
		return err
	}
	expiry := s.config.Auth.PasswordResetExpiry
	if err := s.store.SetResetToken(ctx, acct.ID, account.HashToken(raw), s.now().Add(expiry)); err != nil {
		return s.storageError("store reset token", err)
	}

	err = s.send(ctx, acct, "password_reset", "Password reset request", map[string]any{
		"ResetURL":       s.clientURL("/reset-password/" + raw),
		"ExpiryDuration": humanDuration(expiry),
	})
	if err != nil {
		if clearErr := s.store.ClearResetToken(ctx, acct.ID); clearErr != nil {
			s.logger.Error("failed to clear unsent reset token", zap.Uint("account_id", acct.ID), zap.Error(clearErr))
		}
		return err
	}

	s.logger.Info("password reset token issued", zap.Uint("account_id", acct.ID))
	return nil
}

// ResetPassword consumes a reset token and revokes every refresh session.
func (s *Service) ResetPassword(ctx context.Context, raw, next string) error {
	acct, err := s.store.FindByResetHash(ctx, account.HashToken(raw))
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return ErrInvalidResetToken
		}
		return s.storageError("load account", err)
	}

	now := s.now()
	if acct.PasswordResetExpiresAt == nil || !acct.PasswordResetExpiresAt.After(now) {
		_ = s.store.ClearResetToken(ctx, acct.ID)
		return ErrInvalidResetToken
	}

	if err := s.ValidatePassword(next); err != nil {
		return err
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, acct.ID, hash, now); err != nil {
		return s.storageError("update password", err)
	}

	revoked, err := s.store.ClearRefreshTokens(ctx, acct.ID)
	if err != nil {
		return s.storageError("revoke sessions after reset", err)
	}

	s.logger.Info("password reset completed", zap.Uint("account_id", acct.ID), zap.Int64("sessions_revoked", revoked))

	_ = s.send(ctx, acct, "password_changed", "Your password was changed", map[string]any{
		"ChangedAt": now.Format("2 Jan 2006 15:04 MST"),
	})
	return nil
}
