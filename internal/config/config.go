// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	validatorv10 "github.com/go-playground/validator/v10"
)

type Config struct {
	DBPath string `validate:"required"`
	API    APIConfig
	Sync   SyncConfig
	Logger LoggerConfig
}

type APIConfig struct {
	BaseURL        string `validate:"omitempty,url"`
	Token          string
	TimeoutSeconds int `validate:"min=1"`
}

// SyncConfig exposes the reference policy values as tunables. Defaults
// (ceiling 10, batch 100) preserve the reference behavior.
type SyncConfig struct {
	RetryCeiling int `validate:"min=1"`
	BatchLimit   int `validate:"min=1"`
}

type LoggerConfig struct {
	Level             string `validate:"oneof=debug info warn error"`
	Encoding          string `validate:"oneof=console json"`
	DisableCaller     bool
	DisableStacktrace bool
}

// LoadEnv reads configuration from the environment with sensible
// defaults. Call Validate before using the result.
func LoadEnv() *Config {
	return &Config{
		DBPath: getEnv("LARAPEE_DB_PATH", "larapee.db"),
		API: APIConfig{
			BaseURL:        getEnv("LARAPEE_API_BASE_URL", ""),
			Token:          getEnv("LARAPEE_API_TOKEN", ""),
			TimeoutSeconds: getEnvInt("LARAPEE_API_TIMEOUT", 30),
		},
		Sync: SyncConfig{
			RetryCeiling: getEnvInt("LARAPEE_SYNC_RETRY_CEILING", 10),
			BatchLimit:   getEnvInt("LARAPEE_SYNC_BATCH_LIMIT", 100),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validatorv10.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
