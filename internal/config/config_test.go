package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ZEROKEY_STORE", StoreBadger)
	t.Setenv("ZEROKEY_DIR", "/tmp/zk")
	t.Setenv("ZEROKEY_TIMEOUT", "90s")
	t.Setenv("ZEROKEY_LOG_LEVEL", "debug")

	c := Default()
	require.NoError(t, c.ApplyEnv())
	assert.Equal(t, StoreBadger, c.Store)
	assert.Equal(t, "/tmp/zk", c.Dir)
	assert.Equal(t, 90*time.Second, c.Timeout)
	assert.Equal(t, "debug", c.LogLevel)
	require.NoError(t, c.Validate())
}

func TestApplyEnvBadDuration(t *testing.T) {
	t.Setenv("ZEROKEY_TIMEOUT", "soon")
	err := Default().ApplyEnv()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "ZEROKEY_TIMEOUT", ve.Field)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"store":     func(c *Config) { c.Store = "s3" },
		"dir":       func(c *Config) { c.Dir = "" },
		"circuit":   func(c *Config) { c.Circuit = "nope" },
		"timeout":   func(c *Config) { c.Timeout = 0 },
		"log-level": func(c *Config) { c.LogLevel = "loud" },
		"module":    func(c *Config) { c.Module = "0x1234" },
		"private-key": func(c *Config) {
			c.RPC = "http://localhost:8545"
			c.Module = "0x955954d5ac0a61b0996cced9d43e2534b0d99f5e"
		},
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			c := Default()
			mutate(c)
			err := c.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, field, ve.Field)
		})
	}

	c := Default()
	c.Store = StoreMemory
	c.Dir = ""
	assert.NoError(t, c.Validate())
}
