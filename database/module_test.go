package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func TestModule(t *testing.T) {
	var resolved *gorm.DB

	app := fx.New(
		Module,
		fx.Provide(func() *config.Config {
			cfg := createTestConfig("sqlite", ":memory:", false)
			return &cfg
		}),
		fx.Provide(logging.NewNop),
		fx.Provide(func() *ModelsOption { return nil }),
		fx.NopLogger,
		fx.Invoke(func(db *gorm.DB) { resolved = db }),
	)

	assert.NoError(t, app.Err())
	assert.NotNil(t, resolved)
}
