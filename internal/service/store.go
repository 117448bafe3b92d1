package service

import (
	"sort"
	"sync"
	"time"

	"wabridge/internal/constants"
	"wabridge/pkg/transport"
)

// SessionStore is the in-memory session state: live connection handles, the
// QR cache for sessions still pairing, and the pending-deletion set that
// suppresses reconnects while a teardown is in flight. Pending-deletion
// markers self-expire so a failed teardown cannot pin a session forever.
type SessionStore struct {
	mu      sync.RWMutex
	conns   map[string]transport.Conn
	qr      map[string]string
	pending map[string]*time.Timer

	pendingTTL time.Duration
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		conns:      make(map[string]transport.Conn),
		qr:         make(map[string]string),
		pending:    make(map[string]*time.Timer),
		pendingTTL: constants.PendingDeletionTTL,
	}
}

// Get returns the live connection for session, if any.
func (s *SessionStore) Get(session string) (transport.Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[session]
	return conn, ok
}

// Put registers a live connection.
func (s *SessionStore) Put(session string, conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[session] = conn
}

// Remove drops the registry entry and reports whether it existed.
func (s *SessionStore) Remove(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[session]
	delete(s.conns, session)
	return ok
}

// List returns the registered session identifiers, sorted.
func (s *SessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]string, 0, len(s.conns))
	for name := range s.conns {
		sessions = append(sessions, name)
	}
	sort.Strings(sessions)
	return sessions
}

// SetQR caches the current pairing code for session.
func (s *SessionStore) SetQR(session, qr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr[session] = qr
}

// QR returns the cached pairing code, if one is pending.
func (s *SessionStore) QR(session string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qr, ok := s.qr[session]
	return qr, ok
}

// ClearQR drops the cached pairing code and reports whether one existed.
func (s *SessionStore) ClearQR(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.qr[session]
	delete(s.qr, session)
	return ok
}

// MarkPendingDeletion flags session as being torn down. The flag clears
// itself after the grace period if nobody clears it first.
func (s *SessionStore) MarkPendingDeletion(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.pending[session]; ok {
		timer.Stop()
	}
	s.pending[session] = time.AfterFunc(s.pendingTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, session)
	})
}

// IsPendingDeletion reports whether a teardown is in flight for session.
func (s *SessionStore) IsPendingDeletion(session string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[session]
	return ok
}
