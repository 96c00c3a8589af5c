package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/database"
	authhandlers "github.com/tech-arch1tect/crmauth/handlers/auth"
	"github.com/tech-arch1tect/crmauth/middleware/authgate"
	"github.com/tech-arch1tect/crmauth/middleware/ratelimit"
	"github.com/tech-arch1tect/crmauth/openapi"
	"github.com/tech-arch1tect/crmauth/server"
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/services/auth"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/tech-arch1tect/crmauth/services/mail"
	"github.com/tech-arch1tect/crmauth/services/token"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	models    []any
	mailer    auth.Mailer
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithModels migrates extra models next to the account tables.
func (b *AppBuilder) WithModels(models ...any) *AppBuilder {
	b.models = append(b.models, models...)
	return b
}

// WithMailer replaces the configured mail transport.
func (b *AppBuilder) WithMailer(m auth.Mailer) *AppBuilder {
	if m == nil {
		b.addError("mailer cannot be nil")
		return b
	}
	b.mailer = m
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	app := &App{}
	options := append(b.buildFxOptions(),
		fx.Populate(&app.config, &app.logger, &app.db, &app.server),
	)

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}
	if b.config != nil {
		if err := b.config.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

func (b *AppBuilder) buildFxOptions() []fx.Option {
	models := append(account.Models(), b.models...)

	options := []fx.Option{
		fx.NopLogger,
		config.NewProvider(b.config),
		fx.Supply(database.WithModels(models...)),
		logging.Module,
		database.Module,
		account.Options,
		token.Options,
	}

	if b.mailer != nil {
		mailer := b.mailer
		options = append(options, fx.Provide(func() auth.Mailer { return mailer }))
	} else {
		options = append(options, mail.Options)
	}

	options = append(options,
		auth.Module,
		authgate.Module,
		ratelimit.Module,
		openapi.Module,
		server.Module,
		authhandlers.Module,
	)

	return append(options, b.fxOptions...)
}
