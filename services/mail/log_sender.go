package mail

import (
	"context"

	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/zap"
)

// LogSender stands in for SMTP delivery when mail is disabled. Messages are
// logged, never sent.
type LogSender struct {
	logger *logging.Service
}

func NewLogSender(logger *logging.Service) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) SendTemplate(_ context.Context, templateName string, to []string, subject string, data map[string]any) error {
	fields := []zap.Field{
		zap.String("template", templateName),
		zap.Strings("recipients", to),
		zap.String("subject", subject),
	}
	for _, key := range []string{"VerifyURL", "ResetURL"} {
		if v, ok := data[key].(string); ok {
			fields = append(fields, zap.String(key, v))
		}
	}

	l.logger.Info("mail disabled, message not sent", fields...)
	return nil
}
