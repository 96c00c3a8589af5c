package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKeyPrefix = "crm_"

// CreateAPIKey stores a new key for the account and returns the raw key, which is
// never retrievable again.
func (s *Store) CreateAPIKey(ctx context.Context, accountID uint, name string) (string, *APIKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	raw := apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	key := &APIKey{
		AccountID: accountID,
		Name:      name,
		Prefix:    raw[:len(apiKeyPrefix)+6],
		KeyHash:   HashToken(raw),
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}

	s.logger.Info("api key created", zap.Uint("account_id", accountID), zap.Uint("key_id", key.ID))
	return raw, key, nil
}

// ResolveAPIKey returns the owning account for an unrevoked key and stamps its last use.
func (s *Store) ResolveAPIKey(ctx context.Context, raw string, now time.Time) (*Account, *APIKey, error) {
	if raw == "" {
		return nil, nil, ErrAPIKeyNotFound
	}

	var key APIKey
	err := s.db.WithContext(ctx).Where("key_hash = ? AND revoked_at IS NULL", HashToken(raw)).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrAPIKeyNotFound
		}
		return nil, nil, fmt.Errorf("failed to load api key: %w", err)
	}

	acct, err := s.FindByID(ctx, key.AccountID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", key.ID).UpdateColumn("last_used_at", now).Error; err != nil {
		s.logger.Warn("failed to stamp api key usage", zap.Uint("key_id", key.ID), zap.Error(err))
	}

	return acct, &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, accountID uint) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id asc").Find(&keys).Error
	return keys, err
}

func (s *Store) RevokeAPIKey(ctx context.Context, accountID, keyID uint, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ? AND account_id = ? AND revoked_at IS NULL", keyID, accountID).
		UpdateColumn("revoked_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	s.logger.Info("api key revoked", zap.Uint("account_id", accountID), zap.Uint("key_id", keyID))
	return nil
}
