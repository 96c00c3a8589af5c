// Package crmauth assembles the authentication backend: account storage, token
// issuing, the auth routes and the HTTP server.
package crmauth

import (
	"github.com/tech-arch1tect/crmauth/app"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/internal/options"
	"github.com/tech-arch1tect/crmauth/services/auth"
	"go.uber.org/fx"
)

type App = app.App

// New builds the application. Without WithConfig the config is read from the
// environment and an optional .env file.
func New(opts ...options.Option) (*App, error) {
	o := options.Apply(opts...)

	b := app.NewApp()
	if o.Config != nil {
		b.WithConfig(o.Config)
	}
	if o.Mailer != nil {
		b.WithMailer(o.Mailer)
	}
	return b.WithModels(o.Models...).WithFxOptions(o.FxOptions...).Build()
}

func WithConfig(cfg *config.Config) options.Option {
	return options.WithConfig(cfg)
}

func WithModels(models ...any) options.Option {
	return options.WithModels(models...)
}

func WithMailer(m auth.Mailer) options.Option {
	return options.WithMailer(m)
}

func WithFxOptions(opts ...fx.Option) options.Option {
	return options.WithFxOptions(opts...)
}
