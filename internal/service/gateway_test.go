package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/models"
)

func newTestGateway(t *testing.T) (*SendGateway, *SessionStore, *ConfigStore) {
	t.Helper()
	store := NewSessionStore()
	configs := newTestConfigStore(t)
	gateway := NewSendGateway(store, configs, time.Second, testLogger())
	return gateway, store, configs
}

func TestSendMissingRecipient(t *testing.T) {
	gateway, store, _ := newTestGateway(t)
	store.Put("tenant-1", &mockConn{})

	tests := []struct {
		name string
		req  *models.SendRequest
	}{
		{"nil request", nil},
		{"empty to", &models.SendRequest{Type: models.MessageTypeText, Text: &models.SendTextBody{Body: "hi"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gateway.Send(context.Background(), "tenant-1", tt.req)
			assert.ErrorIs(t, err, ErrMissingRecipient)
		})
	}
}

func TestSendUnknownSession(t *testing.T) {
	gateway, _, _ := newTestGateway(t)

	_, err := gateway.Send(context.Background(), "ghost", &models.SendRequest{
		To:   "5511999990000",
		Type: models.MessageTypeText,
		Text: &models.SendTextBody{Body: "hi"},
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendText(t *testing.T) {
	gateway, store, configs := newTestGateway(t)

	var gotTo, gotBody string
	store.Put("tenant-1", &mockConn{
		sendTextFn: func(ctx context.Context, to, body string) (string, error) {
			gotTo, gotBody = to, body
			return "MSG99", nil
		},
	})

	result, err := gateway.Send(context.Background(), "tenant-1", &models.SendRequest{
		To:   "5511999990000",
		Type: models.MessageTypeText,
		Text: &models.SendTextBody{Body: "hello"},
	})
	require.NoError(t, err)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, "MSG99", result.Messages[0].ID)
	assert.Equal(t, "5511999990000", gotTo)
	assert.Equal(t, "hello", gotBody)

	// A successful send stamps the session's last activity.
	config, err := configs.Get("tenant-1")
	require.NoError(t, err)
	require.NotNil(t, config)
	require.NotNil(t, config.LastSentMessageTimestamp)
	assert.InDelta(t, float64(time.Now().Unix()), *config.LastSentMessageTimestamp, 5)
}

func TestSendTransportFailure(t *testing.T) {
	gateway, store, configs := newTestGateway(t)

	store.Put("tenant-1", &mockConn{
		sendTextFn: func(ctx context.Context, to, body string) (string, error) {
			return "", errors.New("socket closed")
		},
	})

	_, err := gateway.Send(context.Background(), "tenant-1", &models.SendRequest{
		To:   "5511999990000",
		Type: models.MessageTypeText,
		Text: &models.SendTextBody{Body: "hello"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingRecipient)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	// Failed sends do not advance the activity timestamp.
	config, err := configs.Get("tenant-1")
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestSendMediaLink(t *testing.T) {
	gateway, store, _ := newTestGateway(t)
	store.Put("tenant-1", &mockConn{})

	result, err := gateway.Send(context.Background(), "tenant-1", &models.SendRequest{
		To:    "5511999990000",
		Type:  models.MessageTypeImage,
		Image: &models.MediaLink{Link: "https://cdn.example.com/a.jpg", Caption: "look"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SENT1", result.Messages[0].ID)
}

func TestSendMediaMissingBody(t *testing.T) {
	gateway, store, _ := newTestGateway(t)
	store.Put("tenant-1", &mockConn{})

	_, err := gateway.Send(context.Background(), "tenant-1", &models.SendRequest{
		To:   "5511999990000",
		Type: models.MessageTypeVideo,
	})
	assert.Error(t, err)
}
