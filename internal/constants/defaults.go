package constants

import "time"

// Session lifecycle timing
const (
	// ReconnectDelay is the fixed wait before reopening a dropped connection.
	ReconnectDelay = 2 * time.Second
	// PendingDeletionTTL is how long a session stays marked for deletion
	// before the marker self-expires.
	PendingDeletionTTL = 5 * time.Second
	// StaleSessionMaxAgeSec is the inactivity window (15 days) after which
	// the startup sweep deletes a session instead of recovering it.
	StaleSessionMaxAgeSec = 1296000
)

// Default server configuration values
const (
	DefaultServerPort            = 3002
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default timeout values
const (
	DefaultWebhookTimeoutSec  = 30
	DefaultDownloadTimeoutSec = 60
)

// Default cleanup configuration
const (
	DefaultRetentionDays        = 30
	DefaultCleanupIntervalHours = 24
)

// Default on-disk layout
const (
	DefaultConfigDir       = "sessions_config"
	DefaultDataDir         = "sessions_data"
	DefaultMediaDir        = "received_files"
	DefaultUnmappedLogPath = "unmapped_messages.json"
	StatusMediaSubdir      = "status"
)

// Config-at-rest encryption parameters
const (
	EncryptionSalt       = "wabridge-config-salt-v1"
	EncryptionIterations = 100000
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
)
