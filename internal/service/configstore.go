package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wabridge/internal/models"
	"wabridge/internal/security"
)

// ConfigStore persists one JSON record per session under the config
// directory. Updates are read-merge-write: partial records merge field-wise
// into what is already stored, last-write-wins per field. Records are
// optionally encrypted at rest.
type ConfigStore struct {
	dir       string
	encryptor *security.Encryptor
	mu        sync.Mutex
}

func NewConfigStore(dir string, encryptor *security.Encryptor) (*ConfigStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &ConfigStore{dir: dir, encryptor: encryptor}, nil
}

func (s *ConfigStore) path(session string) (string, error) {
	if err := security.ValidateSessionID(session); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, session+".json"), nil
}

// Get returns the stored record for session, or nil when none exists.
func (s *ConfigStore) Get(session string) (*models.SessionConfig, error) {
	path, err := s.path(session)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - session id validated
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session config: %w", err)
	}

	data, err = s.encryptor.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session config: %w", err)
	}

	var config models.SessionConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse session config: %w", err)
	}
	return &config, nil
}

// Save merges update into the stored record for session, creating it if
// absent.
func (s *ConfigStore) Save(session string, update *models.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(session)
	if err != nil {
		return err
	}
	if current == nil {
		current = &models.SessionConfig{}
	}
	current.Merge(update)

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode session config: %w", err)
	}
	data, err = s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt session config: %w", err)
	}

	path, err := s.path(session)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session config: %w", err)
	}
	return nil
}

// UpdateLastSent records the last successful outbound send time, which
// drives the staleness sweep.
func (s *ConfigStore) UpdateLastSent(session string, ts float64) error {
	return s.Save(session, &models.SessionConfig{LastSentMessageTimestamp: &ts})
}

// Delete removes the stored record and reports whether one existed.
func (s *ConfigStore) Delete(session string) (bool, error) {
	path, err := s.path(session)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove session config: %w", err)
	}
	return true, nil
}

// List returns the identifiers of all persisted records.
func (s *ConfigStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return sessions, nil
}
