package account

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (s *Store) CleanupExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&RefreshToken{})
	if res.Error != nil {
		s.logger.Error("failed to clean up expired refresh tokens", zap.Error(res.Error))
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired refresh tokens removed", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// StartCleanupWorker prunes expired refresh tokens every interval until ctx is done.
func (s *Store) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("starting refresh token cleanup worker", zap.Duration("interval", interval))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("refresh token cleanup worker stopped")
				return
			case <-ticker.C:
				_, _ = s.CleanupExpiredRefreshTokens(ctx, time.Now().UTC())
			}
		}
	}()
}
