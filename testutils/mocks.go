package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error {
	args := m.Called(templateName, to, subject, data)
	return args.Error(0)
}

// NewQuietMailer accepts every message.
func NewQuietMailer() *MockMailer {
	m := &MockMailer{}
	m.On("SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// SentTo returns the data maps of every message rendered with templateName.
func (m *MockMailer) SentTo(templateName string) []map[string]any {
	var out []map[string]any
	for _, call := range m.Calls {
		if call.Method == "SendTemplate" && call.Arguments.String(0) == templateName {
			out = append(out, call.Arguments.Get(3).(map[string]any))
		}
	}
	return out
}
