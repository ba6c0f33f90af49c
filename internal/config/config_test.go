package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("ADDR", "localhost:8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "file:chat.db")
	t.Setenv("SIGNING_KEY", "c29tZV9zZWNyZXQ=")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://alumni.example.com")
}

func TestLoad(t *testing.T) {
	tcases := []struct {
		name string
		env  map[string]string
		err  bool
	}{
		{
			name: "valid config",
			env:  map[string]string{},
			err:  false,
		},
		{
			name: "unsupported driver",
			env:  map[string]string{"DB_DRIVER": "mysql"},
			err:  true,
		},
		{
			name: "empty signing key",
			env:  map[string]string{"SIGNING_KEY": ""},
			err:  true,
		},
		{
			name: "invalid base64 signing key",
			env:  map[string]string{"SIGNING_KEY": "not base64!"},
			err:  true,
		},
		{
			name: "zero message length",
			env:  map[string]string{"MAX_MESSAGE_LENGTH": "0"},
			err:  true,
		},
		{
			name: "malformed duration",
			env:  map[string]string{"SHUTDOWN_TIMEOUT": "soon"},
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			if tc.err {
				assert.Error(t, err, "expected error")
				assert.Nil(t, cfg, "expected config to be nil")
				return
			}

			require.NoError(t, err, "expected no error")
			assert.Equal(t, "localhost:8080", cfg.ServerAddr, "expected configured address to be used")
			assert.Equal(t, "sqlite", cfg.DBDriver)
			assert.Equal(t, []byte("some_secret"), cfg.SigningKey, "expected decoded signing key")
			assert.Equal(t, []string{"http://localhost:3000", "https://alumni.example.com"}, cfg.AllowedOrigins)
			assert.Equal(t, 2000, cfg.MaxMessageLength)
			assert.False(t, cfg.RestrictRoomJoin)
			assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerAddr:       "localhost:8000",
			DBDriver:         "postgres",
			DatabaseDSN:      "postgres://localhost/chat",
			SigningSecret:    "c29tZV9zZWNyZXQ=",
			MaxMessageLength: 2000,
			ShutdownTimeout:  time.Second,
		}
	}

	tcases := []struct {
		name   string
		modify func(c *Config)
		err    bool
	}{
		{name: "valid", modify: func(c *Config) {}, err: false},
		{name: "empty address", modify: func(c *Config) { c.ServerAddr = "" }, err: true},
		{name: "empty DSN", modify: func(c *Config) { c.DatabaseDSN = "" }, err: true},
		{name: "zero shutdown timeout", modify: func(c *Config) { c.ShutdownTimeout = 0 }, err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(&c)

			err := c.validate()
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, []byte("some_secret"), c.SigningKey)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAX_MESSAGE_LENGTH", "500")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESTRICT_ROOM_JOIN=true\nMAX_MESSAGE_LENGTH=100\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RESTRICT_ROOM_JOIN") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.RestrictRoomJoin, "expected value from env file")
	assert.Equal(t, 500, cfg.MaxMessageLength, "expected existing variable to win over env file")
}

func TestLoadMissingEnvFile(t *testing.T) {
	setBaseEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
