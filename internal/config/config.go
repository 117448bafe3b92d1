package config

import (
	"encoding/json"
	"os"
	"strconv"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/security"
)

var (
	ErrMissingCallbackURL = models.ConfigError{Message: "missing callback URL"}
)

// LoadConfig reads, validates and defaults the application configuration.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, err
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.CallbackURL == "" {
		return ErrMissingCallbackURL
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.ConfigDir == "" {
		c.ConfigDir = constants.DefaultConfigDir
	}
	if c.DataDir == "" {
		c.DataDir = constants.DefaultDataDir
	}
	if c.MediaDir == "" {
		c.MediaDir = constants.DefaultMediaDir
	}
	if c.UnmappedLogPath == "" {
		c.UnmappedLogPath = constants.DefaultUnmappedLogPath
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "wabridge"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CALLBACK_URL"); url != "" {
		c.CallbackURL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if env := os.Getenv("WABRIDGE_ENV"); env != "" {
		c.Tracing.Environment = env
	}
}
