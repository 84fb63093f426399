package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := ReadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, defaultMinIOBucket, cfg.MinIOBucket)
	assert.Equal(t, defaultSMTPPort, cfg.SMTPPort)
	assert.False(t, cfg.Debug)
}

func TestReadConfig_EnvOverridesFlags(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := ReadConfig([]string{"-driver", "memory", "-http", ":9090", "-debug"})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.True(t, cfg.Debug)
}

func TestReadConfig_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	_, err := ReadConfig([]string{"-driver", "sqlite"})
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "")
	_, err = ReadConfig(nil)
	assert.Error(t, err)
}
