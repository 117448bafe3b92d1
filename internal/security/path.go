package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateSessionID checks that a session identifier is safe to use as a
// path component under the config and credential directories.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("session id contains path separators: %s", id)
	}
	if id == "." || id == ".." || strings.Contains(id, "..") {
		return fmt.Errorf("session id contains directory traversal: %s", id)
	}
	return nil
}

// ValidateFilePath validates that a file path doesn't contain directory
// traversal attempts.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	return nil
}
