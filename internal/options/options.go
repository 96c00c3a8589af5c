package options

import (
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/auth"
	"go.uber.org/fx"
)

type Options struct {
	Config    *config.Config
	Models    []any
	Mailer    auth.Mailer
	FxOptions []fx.Option
}

type Option func(*Options)

func Apply(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithConfig(cfg *config.Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

func WithModels(models ...any) Option {
	return func(opts *Options) {
		opts.Models = append(opts.Models, models...)
	}
}

func WithMailer(m auth.Mailer) Option {
	return func(opts *Options) {
		opts.Mailer = m
	}
}

func WithFxOptions(fxOpts ...fx.Option) Option {
	return func(opts *Options) {
		opts.FxOptions = append(opts.FxOptions, fxOpts...)
	}
}
