package models

// ConfigError represents a configuration validation failure.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// Config is the top-level application configuration.
type Config struct {
	CallbackURL          string        `json:"callbackUrl"`
	Server               ServerConfig  `json:"server"`
	ConfigDir            string        `json:"configDir"`
	DataDir              string        `json:"dataDir"`
	MediaDir             string        `json:"mediaDir"`
	UnmappedLogPath      string        `json:"unmappedLogPath"`
	LogLevel             string        `json:"logLevel"`
	RetentionDays        int           `json:"retentionDays"`
	CleanupIntervalHours int           `json:"cleanupIntervalHours"`
	Tracing              TracingConfig `json:"tracing"`
}
