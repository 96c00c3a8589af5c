package auth

import (
	"context"
	"errors"

	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/services/token"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Login authenticates by email and password. Unknown emails and wrong passwords
// both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, client account.ClientInfo) (*Result, error) {
	now := s.now()

	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			s.logger.Info("login failed: unknown email", zap.String("ip", client.IPAddress))
			return nil, ErrInvalidCredentials
		}
		return nil, s.storageError("load account", err)
	}

	if acct.IsLocked(now) {
		s.logger.Warn("login attempt on locked account",
			zap.Uint("account_id", acct.ID),
			zap.String("ip", client.IPAddress))
		return nil, newAccountLockedError(*acct.LockedUntil, now)
	}

	if acct.LockExpired(now) {
		if err := s.store.ClearExpiredLock(ctx, acct.ID); err != nil {
			return nil, s.storageError("clear expired lock", err)
		}
		acct.FailedLoginCount = 0
		acct.LockedUntil = nil
	}

	if !acct.Active {
		return nil, ErrAccountDeactivated
	}

	if err := s.VerifyPassword(acct.Password, password); err != nil {
		updated, ferr := s.store.RegisterFailedLogin(ctx, acct.ID, s.config.Auth.MaxLoginAttempts, s.config.Auth.LockoutDuration, now)
		if ferr != nil {
			return nil, s.storageError("record failed login", ferr)
		}
		s.recordLogin(ctx, acct.ID, client, false)
		s.logger.Info("login failed: wrong password",
			zap.Uint("account_id", acct.ID),
			zap.Int("failed_attempts", updated.FailedLoginCount),
			zap.String("ip", client.IPAddress))
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, acct.ID, now); err != nil {
		return nil, s.storageError("record login", err)
	}
	s.recordLogin(ctx, acct.ID, client, true)

	pair, err := s.startSession(ctx, acct.ID, client)
	if err != nil {
		return nil, err
	}

	acct.FailedLoginCount = 0
	acct.LockedUntil = nil
	acct.LastLogin = &now

	s.logger.Info("login succeeded", zap.Uint("account_id", acct.ID), zap.String("ip", client.IPAddress))
	return &Result{Account: acct, Tokens: pair}, nil
}

// Refresh rotates a refresh token. A token with a valid signature that is not
// in the account's active list is treated as stolen: every session of that
// account is revoked.
func (s *Service) Refresh(ctx context.Context, presented string, client account.ClientInfo) (*Result, error) {
	claims, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	acct, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, s.storageError("load account", err)
	}
	if !acct.Active {
		return nil, ErrAccountDeactivated
	}

	pair, err := s.tokens.IssuePair(acct.ID)
	if err != nil {
		return nil, err
	}

	err = s.store.RotateRefreshToken(ctx, acct.ID, account.HashToken(presented), s.refreshRecord(pair, client))
	if errors.Is(err, account.ErrRefreshTokenNotFound) {
		revoked, clearErr := s.store.ClearRefreshTokens(ctx, acct.ID)
		if clearErr != nil {
			return nil, s.storageError("revoke sessions after reuse", clearErr)
		}
		s.logger.Warn("refresh token reuse detected, all sessions revoked",
			zap.Uint("account_id", acct.ID),
			zap.String("token_id", claims.TokenID()),
			zap.Int64("revoked", revoked),
			zap.String("ip", client.IPAddress))
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, s.storageError("rotate refresh token", err)
	}

	s.logger.Debug("refresh token rotated", zap.Uint("account_id", acct.ID))
	return &Result{Account: acct, Tokens: pair}, nil
}

// Logout ends the session holding presented. A missing token is not an error.
func (s *Service) Logout(ctx context.Context, userID uint, presented string) error {
	if presented == "" {
		return nil
	}
	if err := s.store.RemoveRefreshToken(ctx, userID, account.HashToken(presented)); err != nil {
		return s.storageError("remove refresh token", err)
	}
	s.logger.Info("logged out", zap.Uint("account_id", userID))
	return nil
}

func (s *Service) LogoutAll(ctx context.Context, userID uint) error {
	revoked, err := s.store.ClearRefreshTokens(ctx, userID)
	if err != nil {
		return s.storageError("clear refresh tokens", err)
	}
	s.logger.Info("logged out of all devices", zap.Uint("account_id", userID), zap.Int64("revoked", revoked))
	return nil
}

func (s *Service) Me(ctx context.Context, userID uint) (*account.Account, error) {
	acct, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, err
		}
		return nil, s.storageError("load account", err)
	}
	return acct, nil
}

func (s *Service) Sessions(ctx context.Context, userID uint) ([]account.RefreshToken, error) {
	return s.store.ListRefreshTokens(ctx, userID)
}

func (s *Service) LoginHistory(ctx context.Context, userID uint) ([]account.LoginRecord, error) {
	return s.store.LoginHistory(ctx, userID)
}

func (s *Service) startSession(ctx context.Context, userID uint, client account.ClientInfo) (*token.Pair, error) {
	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddRefreshToken(ctx, userID, s.refreshRecord(pair, client)); err != nil {
		return nil, s.storageError("store refresh token", err)
	}
	return pair, nil
}

func (s *Service) refreshRecord(pair *token.Pair, client account.ClientInfo) account.RefreshToken {
	return account.RefreshToken{
		TokenHash: account.HashToken(pair.RefreshToken),
		TokenID:   pair.RefreshTokenID,
		IssuedAt:  s.now(),
		ExpiresAt: pair.RefreshExpiresAt.UTC(),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Device:    account.DescribeDevice(client.UserAgent),
	}
}

func (s *Service) recordLogin(ctx context.Context, userID uint, client account.ClientInfo, success bool) {
	err := s.store.AppendLoginRecord(ctx, userID, account.LoginRecord{
		At:        s.now(),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Device:    account.DescribeDevice(client.UserAgent),
		Success:   success,
	})
	if err != nil {
		s.logger.Error("failed to record login history", zap.Uint("account_id", userID), zap.Error(err))
	}
}
