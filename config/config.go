package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type ChangePasswordPolicy string

const (
	// KeepCurrentSession retains only the refresh token presented with the change request.
	KeepCurrentSession ChangePasswordPolicy = "keep_current"
	RevokeAllSessions  ChangePasswordPolicy = "revoke_all"
)

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Sentry    SentryConfig    `envPrefix:"SENTRY_"`
	Docs      DocsConfig      `envPrefix:"DOCS_"`
}

type AppConfig struct {
	Name      string `env:"NAME" envDefault:"CRM"`
	Env       string `env:"ENV" envDefault:"development"`
	URL       string `env:"URL" envDefault:"http://localhost:5000"`
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`
	APIPrefix string `env:"API_PREFIX" envDefault:"/api"`
}

func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"5000"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BodyLimit       string        `env:"BODY_LIMIT" envDefault:"10M"`
}

type LogConfig struct {
	Level     string   `env:"LEVEL" envDefault:"info"`
	Format    string   `env:"FORMAT" envDefault:"json"`
	Output    string   `env:"OUTPUT" envDefault:"stdout"`
	SkipPaths []string `env:"SKIP_PATHS" envSeparator:"," envDefault:"/health"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"crm.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogQueries  bool   `env:"LOG_QUERIES" envDefault:"false"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"crm-api"`
}

type AuthConfig struct {
	MinLength      int  `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"12"`

	MaxLoginAttempts  int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" envDefault:"2h"`
	MaxRefreshTokens  int           `env:"MAX_REFRESH_TOKENS" envDefault:"5"`
	LoginHistoryLimit int           `env:"LOGIN_HISTORY_LIMIT" envDefault:"10"`

	TokenLength             int           `env:"TOKEN_LENGTH" envDefault:"32"`
	PasswordResetExpiry     time.Duration `env:"PASSWORD_RESET_EXPIRY" envDefault:"1h"`
	EmailVerificationExpiry time.Duration `env:"EMAIL_VERIFICATION_EXPIRY" envDefault:"24h"`

	ChangePasswordPolicy ChangePasswordPolicy `env:"CHANGE_PASSWORD_POLICY" envDefault:"keep_current"`

	RefreshCookieName string        `env:"REFRESH_COOKIE_NAME" envDefault:"refreshToken"`
	RefreshCookiePath string        `env:"REFRESH_COOKIE_PATH" envDefault:"/"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	APIKeysEnabled    bool          `env:"API_KEYS_ENABLED" envDefault:"true"`
}

type MailConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"false"`
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"1025"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"none"`
	FromAddress  string `env:"FROM_ADDRESS" envDefault:"noreply@crm.local"`
	FromName     string `env:"FROM_NAME" envDefault:"CRM"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Store is "memory" or "redis". Counters in redis are shared between instances.
	Store          string        `env:"STORE" envDefault:"memory"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	GlobalRate     int           `env:"GLOBAL_RATE" envDefault:"100"`
	GlobalPeriod   time.Duration `env:"GLOBAL_PERIOD" envDefault:"15m"`
	LoginRate      int           `env:"LOGIN_RATE" envDefault:"5"`
	LoginPeriod    time.Duration `env:"LOGIN_PERIOD" envDefault:"15m"`
	PasswordRate   int           `env:"PASSWORD_RATE" envDefault:"5"`
	PasswordPeriod time.Duration `env:"PASSWORD_PERIOD" envDefault:"1h"`
}

type SentryConfig struct {
	DSN         string  `env:"DSN"`
	Environment string  `env:"ENVIRONMENT"`
	SampleRate  float64 `env:"SAMPLE_RATE" envDefault:"1.0"`
}

type DocsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/docs"`
}

const minSecretLength = 32

var (
	ErrSecretTooShort     = fmt.Errorf("JWT secrets must be at least %d characters", minSecretLength)
	ErrSecretsIdentical   = errors.New("JWT access and refresh secrets must differ")
	ErrUnknownPolicy      = errors.New("unknown change password policy")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
	ErrInvalidTokenLength = errors.New("token length must be at least 16 bytes")
	ErrUnknownLimitStore  = errors.New("unknown rate limit store")
)

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) < minSecretLength || len(c.JWT.RefreshSecret) < minSecretLength {
		return ErrSecretTooShort
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return ErrSecretsIdentical
	}

	switch c.Auth.ChangePasswordPolicy {
	case KeepCurrentSession, RevokeAllSessions:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Auth.ChangePasswordPolicy)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, c.Database.Driver)
	}

	switch c.RateLimit.Store {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLimitStore, c.RateLimit.Store)
	}

	if c.Auth.TokenLength < 16 {
		return ErrInvalidTokenLength
	}

	return nil
}
