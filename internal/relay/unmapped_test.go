package relay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmappedLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmapped.json")
	log := NewUnmappedLog(path, testLogger())

	first := mediaMessage()
	second := mediaMessage()
	second.Key.ID = "MEDIA2"

	log.Append("tenant-1", first)
	log.Append("tenant-1", second)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []UnmappedEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, "tenant-1", entries[0].Session)
	assert.Equal(t, "5511999990000@s.whatsapp.net", entries[0].User)
	assert.Equal(t, "Maria", entries[0].Name)
	assert.Equal(t, "MEDIA1", entries[0].Payload.Key.ID)
	assert.Equal(t, "MEDIA2", entries[1].Payload.Key.ID)
}

func TestUnmappedLogRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmapped.json")
	require.NoError(t, os.WriteFile(path, []byte("{not an array"), 0600))

	log := NewUnmappedLog(path, testLogger())
	log.Append("tenant-1", mediaMessage())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []UnmappedEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 1)
}

func TestUnmappedLogWriteFailureIsSwallowed(t *testing.T) {
	// Point the log at a directory so the write fails.
	dir := t.TempDir()
	log := NewUnmappedLog(dir, testLogger())

	assert.NotPanics(t, func() {
		log.Append("tenant-1", mediaMessage())
	})
}
