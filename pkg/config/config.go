// Package config loads adblink's ambient configuration: connection
// defaults and dispatcher tuning that would otherwise have to be repeated
// as flags on every invocation of cmd/adblink.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/adblink/adblink/pkg/dispatch"
)

// Config is the on-disk/environment configuration shape for adblink.
type Config struct {
	// Address is the default "host:port" to dial when none is given on
	// the command line (e.g. a forwarded emulator console port).
	Address string `yaml:"address"`
	// LogLevel names the default logging.Level (see pkg/logging).
	LogLevel string `yaml:"log_level"`
	// AppendNullToServiceString mirrors dispatch.Configuration, for
	// talking to daemons older than Android 9.
	AppendNullToServiceString bool `yaml:"append_null_to_service_string"`
	// MaxPayloadSize mirrors dispatch.Configuration.
	MaxPayloadSize int `yaml:"max_payload_size"`
	// VerifyChecksum mirrors transport.Options, for pre-v2 wire
	// compatibility.
	VerifyChecksum bool `yaml:"verify_checksum"`
}

// Default returns the built-in configuration used when no file or
// environment overrides are present.
func Default() *Config {
	return &Config{
		Address:                   "localhost:5555",
		LogLevel:                  "warn",
		AppendNullToServiceString: false,
		MaxPayloadSize:            dispatch.DefaultConfiguration().MaxPayloadSize,
		VerifyChecksum:            false,
	}
}

// Load reads configuration from path (if it exists), a .env file in the
// working directory (if present, via godotenv), and ADBLINK_-prefixed
// environment variables,
// layered on top of Default. A missing file at path is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	config := Default()

	// godotenv.Load is a no-op (returning an error we deliberately
	// ignore) when no .env file is present; it exists to let local
	// development set ADBLINK_* variables without polluting the real
	// environment.
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, "unable to read configuration file")
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "unable to parse configuration file")
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides layers ADBLINK_-prefixed environment variables on top
// of config, for deployment environments that prefer env vars to files.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("ADBLINK_ADDRESS"); v != "" {
		config.Address = v
	}
	if v := os.Getenv("ADBLINK_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}

// DispatchConfiguration translates Config into a dispatch.Configuration.
func (c *Config) DispatchConfiguration() *dispatch.Configuration {
	cfg := dispatch.DefaultConfiguration()
	cfg.AppendNullToServiceString = c.AppendNullToServiceString
	if c.MaxPayloadSize > 0 {
		cfg.MaxPayloadSize = c.MaxPayloadSize
	}
	return cfg
}
