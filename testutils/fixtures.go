package testutils

import (
	"time"

	"github.com/tech-arch1tect/crmauth/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:      "Test CRM",
			Env:       "test",
			URL:       "http://localhost:5000",
			ClientURL: "http://localhost:3000",
			APIPrefix: "/api",
		},
		Server: config.ServerConfig{
			Host:      "127.0.0.1",
			Port:      "0",
			BodyLimit: "1M",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		JWT: config.JWTConfig{
			AccessSecret:  "test-access-secret-32-chars-long!!",
			RefreshSecret: "test-refresh-secret-32-chars-long!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			Issuer:        "test-issuer",
		},
		Auth: config.AuthConfig{
			MinLength:               8,
			RequireUpper:            true,
			RequireLower:            true,
			RequireNumber:           true,
			BcryptCost:              bcrypt.MinCost,
			MaxLoginAttempts:        5,
			LockoutDuration:         2 * time.Hour,
			MaxRefreshTokens:        5,
			LoginHistoryLimit:       10,
			TokenLength:             32,
			PasswordResetExpiry:     time.Hour,
			EmailVerificationExpiry: 24 * time.Hour,
			ChangePasswordPolicy:    config.KeepCurrentSession,
			RefreshCookieName:       "refreshToken",
			RefreshCookiePath:       "/",
			CleanupInterval:         time.Hour,
			APIKeysEnabled:          true,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:        false,
			GlobalRate:     100,
			GlobalPeriod:   15 * time.Minute,
			LoginRate:      5,
			LoginPeriod:    15 * time.Minute,
			PasswordRate:   5,
			PasswordPeriod: time.Hour,
		},
		Docs: config.DocsConfig{
			Enabled: true,
			Path:    "/docs",
		},
	}
}

var TestPasswords = struct {
	Valid       string
	Other       string
	Wrong       string
	TooShort    string
	NoUpper     string
	NoLower     string
	NoNumber    string
	WithSpecial string
}{
	Valid:       "Password123",
	Other:       "Different456",
	Wrong:       "Wrong1",
	TooShort:    "Pass1",
	NoUpper:     "password123",
	NoLower:     "PASSWORD123",
	NoNumber:    "Password",
	WithSpecial: "Password123!",
}
