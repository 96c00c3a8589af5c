package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmlTemplate "html/template"
	"io/fs"
	"os"
	textTemplate "text/template"
	"time"

	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

//go:embed templates/*.html templates/*.txt
var defaultTemplates embed.FS

var ErrTemplateNotFound = errors.New("mail template not found")

// DeliveryError reports a message that could not be handed to the SMTP server.
type DeliveryError struct {
	Template   string
	Recipients []string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver %q email: %v", e.Template, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type Client interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Service struct {
	config        *config.MailConfig
	client        Client
	htmlTemplates *htmlTemplate.Template
	textTemplates *textTemplate.Template
	logger        *logging.Service
}

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	logger.Info("initializing mail service",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("encryption", cfg.Encryption),
		zap.String("from_address", cfg.FromAddress))

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}

	switch cfg.Encryption {
	case "tls", "starttls":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		logger.Error("failed to create mail client", zap.Error(err), zap.String("host", cfg.Host))
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewServiceWithClient(cfg, logger, client)
}

func NewServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client Client) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, errors.New("MAIL_FROM_ADDRESS is required")
	}

	s := &Service{
		config: cfg,
		client: client,
		logger: logger,
	}
	if err := s.loadTemplates(); err != nil {
		logger.Error("failed to load mail templates", zap.Error(err))
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	return s, nil
}

func (s *Service) loadTemplates() error {
	var fsys fs.FS
	if s.config.TemplatesDir != "" {
		fsys = os.DirFS(s.config.TemplatesDir)
	} else {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return err
		}
		fsys = sub
	}

	if matches, _ := fs.Glob(fsys, "*.html"); len(matches) > 0 {
		tmpl, err := htmlTemplate.ParseFS(fsys, "*.html")
		if err != nil {
			return fmt.Errorf("failed to parse HTML templates: %w", err)
		}
		s.htmlTemplates = tmpl
	}

	if matches, _ := fs.Glob(fsys, "*.txt"); len(matches) > 0 {
		tmpl, err := textTemplate.ParseFS(fsys, "*.txt")
		if err != nil {
			return fmt.Errorf("failed to parse text templates: %w", err)
		}
		s.textTemplates = tmpl
	}

	s.logger.Debug("mail templates loaded", zap.String("dir", s.config.TemplatesDir))
	return nil
}

func (s *Service) newMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	var err error
	if s.config.FromName != "" {
		err = message.FromFormat(s.config.FromName, s.config.FromAddress)
	} else {
		err = message.From(s.config.FromAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}

	return message, nil
}

// SendTemplate renders templateName (.html and/or .txt) with data and delivers it.
func (s *Service) SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error {
	message, err := s.newMessage()
	if err != nil {
		return err
	}
	if err := message.To(to...); err != nil {
		return fmt.Errorf("failed to set TO addresses: %w", err)
	}
	message.Subject(subject)

	if err := s.render(templateName, data, message); err != nil {
		s.logger.Error("failed to render template", zap.String("template", templateName), zap.Error(err))
		return err
	}

	start := time.Now()
	if err := s.client.DialAndSendWithContext(ctx, message); err != nil {
		s.logger.Error("failed to send email",
			zap.String("template", templateName),
			zap.Strings("recipients", to),
			zap.Duration("attempt_duration", time.Since(start)),
			zap.Error(err))
		return &DeliveryError{Template: templateName, Recipients: to, Err: err}
	}

	s.logger.Info("email sent",
		zap.String("template", templateName),
		zap.Strings("recipients", to),
		zap.Duration("send_duration", time.Since(start)))
	return nil
}

func (s *Service) render(templateName string, data map[string]any, message *mail.Msg) error {
	var rendered bool

	if s.htmlTemplates != nil {
		if tmpl := s.htmlTemplates.Lookup(templateName + ".html"); tmpl != nil {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return fmt.Errorf("failed to execute HTML template: %w", err)
			}
			message.SetBodyString(mail.TypeTextHTML, buf.String())
			rendered = true
		}
	}

	if s.textTemplates != nil {
		if tmpl := s.textTemplates.Lookup(templateName + ".txt"); tmpl != nil {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return fmt.Errorf("failed to execute text template: %w", err)
			}
			if rendered {
				message.AddAlternativeString(mail.TypeTextPlain, buf.String())
			} else {
				message.SetBodyString(mail.TypeTextPlain, buf.String())
			}
			rendered = true
		}
	}

	if !rendered {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
	}
	return nil
}
