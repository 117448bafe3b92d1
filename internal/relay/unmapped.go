package relay

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wabridge/pkg/transport"
)

// UnmappedEntry is one audit record for a message no handler recognized.
type UnmappedEntry struct {
	Date    string             `json:"date"`
	Session string             `json:"session"`
	User    string             `json:"user"`
	Name    string             `json:"name"`
	Payload *transport.Message `json:"payload"`
}

// UnmappedLog is the append-only JSON array of messages that matched no relay
// handler. Writes are best-effort: failures are logged and swallowed so a
// full disk never breaks message processing.
type UnmappedLog struct {
	path   string
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewUnmappedLog(path string, logger *logrus.Logger) *UnmappedLog {
	return &UnmappedLog{path: path, logger: logger}
}

// Append records msg. Never returns an error.
func (l *UnmappedLog) Append(session string, msg *transport.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []UnmappedEntry
	if data, err := os.ReadFile(l.path); err == nil {
		// A corrupt log restarts the array rather than blocking the append.
		if err := json.Unmarshal(data, &entries); err != nil {
			entries = nil
		}
	}

	entries = append(entries, UnmappedEntry{
		Date:    time.Now().UTC().Format(time.RFC3339),
		Session: session,
		User:    msg.Key.RemoteJID,
		Name:    msg.PushName,
		Payload: msg,
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		l.logger.WithError(err).Warn("Failed to encode unmapped message log")
		return
	}
	if err := os.WriteFile(l.path, data, 0600); err != nil {
		l.logger.WithError(err).Warn("Failed to write unmapped message log")
	}
}
