// Package config holds the zerokey runtime settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"zerokey/circuit"
)

const (
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreMemory = "memory"
)

const (
	defaultDir       = "."
	defaultStore     = StoreFile
	defaultTimeout   = 10 * time.Minute
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	defaultPoll      = 2 * time.Second
)

// Config is the full set of zerokey settings.
type Config struct {
	// Dir is where artifacts, keys and proofs are persisted.
	Dir     string
	Store   string
	Circuit string
	Timeout time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	// Chain access; empty RPC means the in-memory module.
	RPC          string
	PrivateKey   string
	Account      string
	Module       string
	MultiSend    string
	PollInterval time.Duration
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Dir:          defaultDir,
		Store:        defaultStore,
		Circuit:      circuit.PreimageV1,
		Timeout:      defaultTimeout,
		LogLevel:     defaultLogLevel,
		LogFormat:    defaultLogFormat,
		PollInterval: defaultPoll,
	}
}

// ApplyEnv overrides c from ZEROKEY_* variables:
//
//	ZEROKEY_DIR, ZEROKEY_STORE, ZEROKEY_CIRCUIT, ZEROKEY_TIMEOUT,
//	ZEROKEY_LOG_LEVEL, ZEROKEY_LOG_FORMAT, ZEROKEY_LOG_FILE,
//	ZEROKEY_RPC, ZEROKEY_PRIVATE_KEY, ZEROKEY_ACCOUNT, ZEROKEY_MODULE,
//	ZEROKEY_MULTISEND, ZEROKEY_POLL_INTERVAL
//
// Durations use time.ParseDuration syntax.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"ZEROKEY_DIR":         &c.Dir,
		"ZEROKEY_STORE":       &c.Store,
		"ZEROKEY_CIRCUIT":     &c.Circuit,
		"ZEROKEY_LOG_LEVEL":   &c.LogLevel,
		"ZEROKEY_LOG_FORMAT":  &c.LogFormat,
		"ZEROKEY_LOG_FILE":    &c.LogFile,
		"ZEROKEY_RPC":         &c.RPC,
		"ZEROKEY_PRIVATE_KEY": &c.PrivateKey,
		"ZEROKEY_ACCOUNT":     &c.Account,
		"ZEROKEY_MODULE":      &c.Module,
		"ZEROKEY_MULTISEND":   &c.MultiSend,
	}
	for k, dst := range strs {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
		}
	}
	durs := map[string]*time.Duration{
		"ZEROKEY_TIMEOUT":       &c.Timeout,
		"ZEROKEY_POLL_INTERVAL": &c.PollInterval,
	}
	for k, dst := range durs {
		v, ok := os.LookupEnv(k)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ValidationError{Field: k, Message: err.Error()}
		}
		*dst = d
	}
	return nil
}

// ValidationError names the setting that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Validate checks every setting and returns all problems found.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Store {
	case StoreFile, StoreBadger:
		if c.Dir == "" {
			bad("dir", "required for %s store", c.Store)
		}
	case StoreMemory:
	default:
		bad("store", "unknown store %q", c.Store)
	}
	if _, err := circuit.Lookup(c.Circuit); err != nil {
		bad("circuit", "%v", err)
	}
	if c.Timeout <= 0 {
		bad("timeout", "must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		bad("log-level", "unknown level %q", c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		bad("log-format", "must be console or json")
	}
	for field, v := range map[string]string{"account": c.Account, "module": c.Module, "multisend": c.MultiSend} {
		if v != "" && !common.IsHexAddress(v) {
			bad(field, "invalid address %q", v)
		}
	}
	if c.RPC != "" {
		if c.PrivateKey == "" {
			bad("private-key", "required with rpc")
		}
		if c.Module == "" {
			bad("module", "required with rpc")
		}
		if c.Account == "" {
			bad("account", "required with rpc")
		}
		if c.PollInterval <= 0 {
			bad("poll-interval", "must be positive")
		}
	}
	return errors.Join(errs...)
}
