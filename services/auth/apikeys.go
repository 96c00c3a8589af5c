package auth

import (
	"context"

	"github.com/tech-arch1tect/crmauth/services/account"
)

func (s *Service) CreateAPIKey(ctx context.Context, userID uint, name string) (string, *account.APIKey, error) {
	if !s.config.Auth.APIKeysEnabled {
		return "", nil, ErrAPIKeysDisabled
	}
	return s.store.CreateAPIKey(ctx, userID, name)
}

func (s *Service) ListAPIKeys(ctx context.Context, userID uint) ([]account.APIKey, error) {
	return s.store.ListAPIKeys(ctx, userID)
}

func (s *Service) RevokeAPIKey(ctx context.Context, userID, keyID uint) error {
	return s.store.RevokeAPIKey(ctx, userID, keyID, s.now())
}
