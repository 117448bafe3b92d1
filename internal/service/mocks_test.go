package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"wabridge/pkg/transport"
)

type mockConn struct {
	user       *transport.User
	sendTextFn func(ctx context.Context, to, body string) (string, error)
	closed     atomic.Bool
}

func (c *mockConn) SendText(ctx context.Context, to, body string) (string, error) {
	if c.sendTextFn != nil {
		return c.sendTextFn(ctx, to, body)
	}
	return "SENT1", nil
}

func (c *mockConn) SendMedia(ctx context.Context, to, kind, link, caption string) (string, error) {
	return "SENT1", nil
}

func (c *mockConn) SendVoice(ctx context.Context, to string, data []byte, seconds uint32) (string, error) {
	return "SENT1", nil
}

func (c *mockConn) Download(ctx context.Context, msg *transport.Message) ([]byte, error) {
	return nil, errors.New("no media")
}

func (c *mockConn) ProfilePictureURL(ctx context.Context, conversationID string) (string, error) {
	return "", errors.New("no picture")
}

func (c *mockConn) PersistCredentials(ctx context.Context) error { return nil }

func (c *mockConn) User() *transport.User { return c.user }

func (c *mockConn) Close() error {
	c.closed.Store(true)
	return nil
}

type mockConnector struct {
	mu       sync.Mutex
	dials    int
	dialErr  error
	handlers map[string]transport.EventHandlers
	conns    map[string]*mockConn
}

func newMockConnector() *mockConnector {
	return &mockConnector{
		handlers: make(map[string]transport.EventHandlers),
		conns:    make(map[string]*mockConn),
	}
}

func (m *mockConnector) Dial(ctx context.Context, session string, handlers transport.EventHandlers) (transport.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	conn := &mockConn{}
	m.handlers[session] = handlers
	m.conns[session] = conn
	return conn, nil
}

func (m *mockConnector) dialCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *mockConnector) handlersFor(session string) transport.EventHandlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[session]
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
