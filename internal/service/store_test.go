package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStoreRegistry(t *testing.T) {
	store := NewSessionStore()
	conn := &mockConn{}

	_, ok := store.Get("a")
	assert.False(t, ok)

	store.Put("a", conn)
	got, ok := store.Get("a")
	assert.True(t, ok)
	assert.Same(t, conn, got)

	store.Put("b", &mockConn{})
	assert.Equal(t, []string{"a", "b"}, store.List())

	assert.True(t, store.Remove("a"))
	assert.False(t, store.Remove("a"))
}

func TestSessionStoreQRCache(t *testing.T) {
	store := NewSessionStore()

	_, ok := store.QR("a")
	assert.False(t, ok)

	store.SetQR("a", "pairing-code")
	qr, ok := store.QR("a")
	assert.True(t, ok)
	assert.Equal(t, "pairing-code", qr)

	assert.True(t, store.ClearQR("a"))
	assert.False(t, store.ClearQR("a"))
}

func TestPendingDeletionExpiry(t *testing.T) {
	store := NewSessionStore()
	store.pendingTTL = 30 * time.Millisecond

	store.MarkPendingDeletion("a")
	assert.True(t, store.IsPendingDeletion("a"))
	assert.False(t, store.IsPendingDeletion("b"))

	assert.Eventually(t, func() bool {
		return !store.IsPendingDeletion("a")
	}, time.Second, 10*time.Millisecond, "pending-deletion marker must self-expire")
}

func TestPendingDeletionRemark(t *testing.T) {
	store := NewSessionStore()
	store.pendingTTL = 50 * time.Millisecond

	store.MarkPendingDeletion("a")
	time.Sleep(30 * time.Millisecond)
	store.MarkPendingDeletion("a")
	time.Sleep(30 * time.Millisecond)

	// The second mark restarted the clock.
	assert.True(t, store.IsPendingDeletion("a"))
}
