package server

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tech-arch1tect/crmauth/config"
)

// InitSentry configures error reporting. An empty DSN leaves Sentry disabled and
// every capture becomes a no-op.
func InitSentry(cfg *config.Config) error {
	if cfg.Sentry.DSN == "" {
		return nil
	}

	environment := cfg.Sentry.Environment
	if environment == "" {
		environment = cfg.App.Env
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      environment,
		SampleRate:       cfg.Sentry.SampleRate,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
