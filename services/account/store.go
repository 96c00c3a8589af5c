package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrAPIKeyNotFound       = errors.New("api key not found")
)

type Store struct {
	db                *gorm.DB
	logger            *logging.Service
	maxRefreshTokens  int
	loginHistoryLimit int
}

func NewStore(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Store {
	maxTokens := cfg.Auth.MaxRefreshTokens
	if maxTokens <= 0 {
		maxTokens = 5
	}
	historyLimit := cfg.Auth.LoginHistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}

	return &Store{
		db:                db,
		logger:            logger,
		maxRefreshTokens:  maxTokens,
		loginHistoryLimit: historyLimit,
	}
}

// HashToken returns the hex sha256 of a raw token; only hashes are persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Create(ctx context.Context, acct *Account) error {
	acct.Email = NormalizeEmail(acct.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("email = ?", acct.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created", zap.Uint("account_id", acct.ID))
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uint) (*Account, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findOne(ctx, "email = ?", NormalizeEmail(email))
}

func (s *Store) FindByVerificationHash(ctx context.Context, hash string) (*Account, error) {
	if hash == "" {
		return nil, ErrAccountNotFound
	}
	return s.findOne(ctx, "email_verification_hash = ?", hash)
}

func (s *Store) FindByResetHash(ctx context.Context, hash string) (*Account, error) {
	if hash == "" {
		return nil, ErrAccountNotFound
	}
	return s.findOne(ctx, "password_reset_hash = ?", hash)
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*Account, error) {
	var acct Account
	err := s.db.WithContext(ctx).Where(query, arg).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &acct, nil
}

// RegisterFailedLogin increments the failure counter atomically and sets the lock
// once the counter reaches threshold. It returns the account as stored afterwards.
func (s *Store) RegisterFailedLogin(ctx context.Context, id uint, threshold int, lockFor time.Duration, now time.Time) (*Account, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).Where("id = ?", id).
			UpdateColumn("failed_login_count", gorm.Expr("failed_login_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		return tx.Model(&Account{}).
			Where("id = ? AND failed_login_count >= ? AND locked_until IS NULL", id, threshold).
			UpdateColumn("locked_until", now.Add(lockFor)).Error
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record failed login: %w", err)
	}

	acct, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.IsLocked(now) && acct.FailedLoginCount == threshold {
		s.logger.Warn("account locked after repeated failed logins",
			zap.Uint("account_id", id),
			zap.Int("attempts", acct.FailedLoginCount),
			zap.Time("locked_until", *acct.LockedUntil))
	}
	return acct, nil
}

// ClearExpiredLock resets the lockout state when the lock has already run out.
func (s *Store) ClearExpiredLock(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ? AND locked_until IS NOT NULL", id).
		Updates(map[string]any{"failed_login_count": 0, "locked_until": nil}).Error
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id uint, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login":         now,
		}).Error
}

func (s *Store) AppendLoginRecord(ctx context.Context, id uint, rec LoginRecord) error {
	rec.AccountID = id
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return trim(tx, &LoginRecord{}, id, s.loginHistoryLimit)
	})
}

func (s *Store) LoginHistory(ctx context.Context, id uint) ([]LoginRecord, error) {
	var records []LoginRecord
	err := s.db.WithContext(ctx).Where("account_id = ?", id).Order("id desc").Find(&records).Error
	return records, err
}

// AddRefreshToken stores a new refresh session and evicts the oldest beyond the cap.
func (s *Store) AddRefreshToken(ctx context.Context, id uint, rec RefreshToken) error {
	rec.AccountID = id
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return trim(tx, &RefreshToken{}, id, s.maxRefreshTokens)
	})
}

// RotateRefreshToken deletes the record matching oldHash and stores next in one
// transaction. A delete that matches nothing returns ErrRefreshTokenNotFound and
// leaves the list untouched.
func (s *Store) RotateRefreshToken(ctx context.Context, id uint, oldHash string, next RefreshToken) error {
	next.AccountID = id
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("account_id = ? AND token_hash = ?", id, oldHash).Delete(&RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenNotFound
		}
		if err := tx.Create(&next).Error; err != nil {
			return err
		}
		return trim(tx, &RefreshToken{}, id, s.maxRefreshTokens)
	})
}

func (s *Store) HasRefreshToken(ctx context.Context, id uint, hash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("account_id = ? AND token_hash = ?", id, hash).Count(&count).Error
	return count > 0, err
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id uint, hash string) error {
	return s.db.WithContext(ctx).Where("account_id = ? AND token_hash = ?", id, hash).Delete(&RefreshToken{}).Error
}

// RetainRefreshToken deletes every refresh session except the one matching hash.
func (s *Store) RetainRefreshToken(ctx context.Context, id uint, hash string) (int64, error) {
	res := s.db.WithContext(ctx).Where("account_id = ? AND token_hash <> ?", id, hash).Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("account_id = ?", id).Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *Store) ListRefreshTokens(ctx context.Context, id uint) ([]RefreshToken, error) {
	var tokens []RefreshToken
	err := s.db.WithContext(ctx).Where("account_id = ?", id).Order("id asc").Find(&tokens).Error
	return tokens, err
}

func (s *Store) UpdatePassword(ctx context.Context, id uint, hash string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"password":                  hash,
			"last_password_change":      now,
			"password_reset_hash":       "",
			"password_reset_expires_at": nil,
		}).Error
}

func (s *Store) SetVerificationToken(ctx context.Context, id uint, hash string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"email_verification_hash":       hash,
			"email_verification_expires_at": expiresAt,
		}).Error
}

func (s *Store) ClearVerificationToken(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"email_verification_hash":       "",
			"email_verification_expires_at": nil,
		}).Error
}

func (s *Store) MarkEmailVerified(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"email_verified":                true,
			"email_verification_hash":       "",
			"email_verification_expires_at": nil,
		}).Error
}

func (s *Store) SetResetToken(ctx context.Context, id uint, hash string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"password_reset_hash":       hash,
			"password_reset_expires_at": expiresAt,
		}).Error
}

func (s *Store) ClearResetToken(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"password_reset_hash":       "",
			"password_reset_expires_at": nil,
		}).Error
}

func (s *Store) SetActive(ctx context.Context, id uint, active bool) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).UpdateColumn("active", active).Error
}

func (s *Store) SetRole(ctx context.Context, id uint, role Role) error {
	return s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).UpdateColumn("role", role).Error
}

// trim keeps the newest limit rows of model for the account.
func trim(tx *gorm.DB, model any, accountID uint, limit int) error {
	var ids []uint
	if err := tx.Model(model).Where("account_id = ?", accountID).Order("id desc").Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) <= limit {
		return nil
	}
	return tx.Where("id IN ?", ids[limit:]).Delete(model).Error
}
