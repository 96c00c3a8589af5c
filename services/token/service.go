package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/zap"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	UserID uint `json:"user_id"`
	Kind   Kind `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenID is the random identifier carried by refresh tokens.
func (c *Claims) TokenID() string {
	return c.ID
}

type Pair struct {
	AccessToken      string
	RefreshToken     string
	RefreshTokenID   string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type Service struct {
	config *config.JWTConfig
	logger *logging.Service
	now    func() time.Time
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: &cfg.JWT,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for issuing and verifying.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) AccessExpirySeconds() int {
	return int(s.config.AccessExpiry.Seconds())
}

func (s *Service) RefreshExpiry() time.Duration {
	return s.config.RefreshExpiry
}

func (s *Service) IssuePair(userID uint) (*Pair, error) {
	access, accessExp, err := s.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	refresh, tokenID, refreshExp, err := s.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshTokenID:   tokenID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) IssueAccess(userID uint) (string, time.Time, error) {
	claims := s.claims(userID, KindAccess, s.config.AccessExpiry, "")
	signed, err := s.sign(claims, s.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (s *Service) IssueRefresh(userID uint) (string, string, time.Time, error) {
	tokenID := uuid.NewString()
	claims := s.claims(userID, KindRefresh, s.config.RefreshExpiry, tokenID)
	signed, err := s.sign(claims, s.config.RefreshSecret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, tokenID, claims.ExpiresAt.Time, nil
}

func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verify(tokenString, KindAccess, s.config.AccessSecret)
}

func (s *Service) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := s.verify(tokenString, KindRefresh, s.config.RefreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) claims(userID uint, kind Kind, ttl time.Duration, id string) *Claims {
	now := s.now()
	return &Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    s.config.Issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func (s *Service) sign(claims *Claims, secret string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		s.logger.Error("failed to sign token", zap.String("kind", string(claims.Kind)), zap.Error(err))
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

func (s *Service) verify(tokenString string, kind Kind, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("token expired", zap.String("kind", string(kind)))
			return nil, ErrTokenExpired
		}
		s.logger.Warn("token validation failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		s.logger.Warn("token kind mismatch", zap.String("expected", string(kind)), zap.String("got", string(claims.Kind)))
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
