package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/relay"
	"wabridge/pkg/transport"
)

type controllerFixture struct {
	controller *Controller
	store      *SessionStore
	configs    *ConfigStore
	connector  *mockConnector
	dataDir    string
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	logger := testLogger()
	configs := newTestConfigStore(t)
	store := NewSessionStore()
	store.pendingTTL = 100 * time.Millisecond
	connector := newMockConnector()

	poster := relay.NewPoster(time.Second, logger)
	media := relay.NewMediaRelay(t.TempDir(), poster, logger)
	unmapped := relay.NewUnmappedLog(filepath.Join(t.TempDir(), "unmapped.json"), logger)
	dataDir := t.TempDir()

	controller := NewController(store, configs, connector, poster, media, unmapped,
		"https://crm.example.com", dataDir, logger)
	controller.reconnectDelay = 20 * time.Millisecond

	return &controllerFixture{
		controller: controller,
		store:      store,
		configs:    configs,
		connector:  connector,
		dataDir:    dataDir,
	}
}

func TestCreateSessionIdempotent(t *testing.T) {
	f := newControllerFixture(t)

	first, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	second, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.connector.dialCount())
}

func TestCreateSessionConcurrent(t *testing.T) {
	f := newControllerFixture(t)

	const callers = 16
	conns := make([]transport.Conn, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := f.controller.CreateSession(context.Background(), "tenant-1")
			assert.NoError(t, err)
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.connector.dialCount(), "concurrent creates must dial at most once")
	for i := 1; i < callers; i++ {
		assert.Same(t, conns[0], conns[i])
	}
}

func TestCreateSessionRejectsUnsafeID(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "../etc")
	assert.Error(t, err)
	assert.Zero(t, f.connector.dialCount())
}

func TestResolveWebhookTarget(t *testing.T) {
	f := newControllerFixture(t)

	// No config: default base.
	assert.Equal(t, "https://crm.example.com/whatsapp/webhook",
		f.controller.ResolveWebhookTarget("tenant-1"))

	// Explicit webhook beats the default.
	require.NoError(t, f.configs.Save("tenant-1", &models.SessionConfig{
		Webhook: strPtr("https://other.example.com/hook"),
	}))
	assert.Equal(t, "https://other.example.com/hook",
		f.controller.ResolveWebhookTarget("tenant-1"))

	// Workspace+canal route beats the explicit webhook.
	require.NoError(t, f.configs.Save("tenant-1", &models.SessionConfig{
		WorkspaceID: strPtr("ws-1"),
		CanalID:     strPtr("canal-7"),
	}))
	assert.Equal(t, "https://crm.example.com/whatsapp/webhook/ws-1/canal-7",
		f.controller.ResolveWebhookTarget("tenant-1"))
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	handlers := f.connector.handlersFor("tenant-1")
	conn, _ := f.store.Get("tenant-1")
	handlers.OnConnection(context.Background(), conn, transport.ConnectionUpdate{
		State:      transport.StateClosed,
		StatusCode: 500,
	})

	_, ok := f.store.Get("tenant-1")
	assert.False(t, ok, "closed session leaves the registry immediately")

	assert.Eventually(t, func() bool {
		return f.connector.dialCount() == 2
	}, time.Second, 10*time.Millisecond, "close without logout schedules one reconnect")
}

func TestNoReconnectAfterLogout(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	handlers := f.connector.handlersFor("tenant-1")
	conn, _ := f.store.Get("tenant-1")
	handlers.OnConnection(context.Background(), conn, transport.ConnectionUpdate{
		State:      transport.StateClosed,
		StatusCode: transport.StatusLoggedOut,
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.connector.dialCount(), "logout is terminal")
}

func TestNoReconnectWhilePendingDeletion(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	f.store.MarkPendingDeletion("tenant-1")

	handlers := f.connector.handlersFor("tenant-1")
	conn, _ := f.store.Get("tenant-1")
	handlers.OnConnection(context.Background(), conn, transport.ConnectionUpdate{
		State: transport.StateClosed,
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.connector.dialCount(), "pending deletion suppresses reconnect")
}

func TestQRCacheLifecycle(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	handlers := f.connector.handlersFor("tenant-1")
	conn, _ := f.store.Get("tenant-1")

	handlers.OnConnection(context.Background(), conn, transport.ConnectionUpdate{
		State: transport.StateConnecting,
		QR:    "pairing-code",
	})
	qr, ok := f.controller.QR("tenant-1")
	require.True(t, ok)
	assert.Equal(t, "pairing-code", qr)

	handlers.OnConnection(context.Background(), conn, transport.ConnectionUpdate{
		State: transport.StateOpen,
	})
	_, ok = f.controller.QR("tenant-1")
	assert.False(t, ok, "open connection clears the cached QR")
}

func TestDeleteSession(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NoError(t, f.configs.Save("tenant-1", &models.SessionConfig{}))
	require.NoError(t, os.MkdirAll(filepath.Join(f.dataDir, "tenant-1"), 0750))
	f.store.SetQR("tenant-1", "code")

	removed, err := f.controller.DeleteSession("tenant-1")
	require.NoError(t, err)
	assert.True(t, removed)

	conn := f.connector.conns["tenant-1"]
	assert.True(t, conn.closed.Load())

	_, ok := f.store.Get("tenant-1")
	assert.False(t, ok)
	_, ok = f.store.QR("tenant-1")
	assert.False(t, ok)

	_, statErr := os.Stat(filepath.Join(f.dataDir, "tenant-1"))
	assert.True(t, os.IsNotExist(statErr))

	config, err := f.configs.Get("tenant-1")
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestDeleteSessionNeverCreated(t *testing.T) {
	f := newControllerFixture(t)

	removed, err := f.controller.DeleteSession("ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStalenessSweepBoundary(t *testing.T) {
	f := newControllerFixture(t)

	now := time.Unix(1756700000, 0)
	f.controller.now = func() time.Time { return now }

	stale := float64(now.Unix() - constants.StaleSessionMaxAgeSec - 1)
	fresh := float64(now.Unix() - constants.StaleSessionMaxAgeSec + 1)

	require.NoError(t, f.configs.Save("stale", &models.SessionConfig{LastSentMessageTimestamp: f64Ptr(stale)}))
	require.NoError(t, f.configs.Save("fresh", &models.SessionConfig{LastSentMessageTimestamp: f64Ptr(fresh)}))
	require.NoError(t, f.configs.Save("never-sent", &models.SessionConfig{Webhook: strPtr("https://x.example.com")}))

	f.controller.InitializeRecentlyActiveSessions(context.Background())

	// Stale config is deleted, not recovered.
	config, err := f.configs.Get("stale")
	require.NoError(t, err)
	assert.Nil(t, config)
	_, ok := f.store.Get("stale")
	assert.False(t, ok)

	// Fresh and timestamp-less configs are recovered.
	_, ok = f.store.Get("fresh")
	assert.True(t, ok)
	_, ok = f.store.Get("never-sent")
	assert.True(t, ok)
}

// TestHandleBatchDispatch drives inbound batches through the registered
// message handler and asserts exactly one outcome per message: webhook relay
// (media before text), local log, or the unmapped audit file.
func TestHandleBatchDispatch(t *testing.T) {
	logger := testLogger()
	configs := newTestConfigStore(t)
	store := NewSessionStore()
	connector := newMockConnector()

	var mu sync.Mutex
	var posts []models.WebhookPayload
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		posts = append(posts, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	poster := relay.NewPoster(time.Second, logger)
	media := relay.NewMediaRelay(t.TempDir(), poster, logger)
	unmappedPath := filepath.Join(t.TempDir(), "unmapped.json")
	unmapped := relay.NewUnmappedLog(unmappedPath, logger)

	controller := NewController(store, configs, connector, poster, media, unmapped,
		target.URL, t.TempDir(), logger)

	_, err := controller.CreateSession(context.Background(), "tenant-1")
	require.NoError(t, err)

	handlers := connector.handlersFor("tenant-1")
	conn, _ := store.Get("tenant-1")

	postCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(posts)
	}
	lastPostType := func() string {
		mu.Lock()
		defer mu.Unlock()
		return posts[len(posts)-1].Entry[0].Changes[0].Value.Messages[0].Type
	}
	unmappedCount := func() int {
		data, err := os.ReadFile(unmappedPath)
		if os.IsNotExist(err) {
			return 0
		}
		require.NoError(t, err)
		var entries []relay.UnmappedEntry
		require.NoError(t, json.Unmarshal(data, &entries))
		return len(entries)
	}

	msg := func(id, jid string) *transport.Message {
		return &transport.Message{
			Key: transport.Key{
				ID:             id,
				RemoteJID:      jid,
				AddressingMode: transport.AddressingPhone,
			},
			PushName:  "Maria",
			Timestamp: 1756700000,
		}
	}

	textMsg := msg("T1", "5511999990000@s.whatsapp.net")
	textMsg.Conversation = "hello"

	historyMsg := msg("H1", "5511999990000@s.whatsapp.net")
	historyMsg.Conversation = "old news"

	badMACMsg := msg("B1", "5511999990000@s.whatsapp.net")
	badMACMsg.StubParameters = []string{"Bad MAC"}

	groupText := msg("G1", "12036304@g.us")
	groupText.Conversation = "group chatter"

	groupImage := msg("G2", "12036304@g.us")
	groupImage.Image = &transport.MediaContent{MimeType: "image/jpeg"}

	newsletterText := msg("N1", "12036304@newsletter")
	newsletterText.Conversation = "announcement"

	imageWithCaption := msg("M1", "5511999990000@s.whatsapp.net")
	imageWithCaption.Conversation = "should not win"
	imageWithCaption.Image = &transport.MediaContent{MimeType: "image/jpeg", Caption: "a photo"}

	statusText := msg("S1", "status@broadcast")
	statusText.Conversation = "my status"

	selfSent := msg("ME1", "5511999990000@s.whatsapp.net")
	selfSent.Key.FromMe = true

	unknownContent := msg("U1", "5511999990000@s.whatsapp.net")

	tests := []struct {
		name         string
		batch        transport.MessageBatch
		wantPosts    int
		wantType     string
		wantUnmapped int
	}{
		{
			name:      "history batch is dropped",
			batch:     transport.MessageBatch{Type: transport.BatchHistory, Messages: []*transport.Message{historyMsg}},
			wantPosts: 0,
		},
		{
			name:      "bad mac message is dropped",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{badMACMsg}},
			wantPosts: 0,
		},
		{
			name:      "group text is suppressed",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{groupText}},
			wantPosts: 0,
		},
		{
			name:      "group media is suppressed before classification",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{groupImage}},
			wantPosts: 0,
		},
		{
			name:      "newsletter text is relayed",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{newsletterText}},
			wantPosts: 1,
			wantType:  models.MessageTypeText,
		},
		{
			name:      "plain text is relayed",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{textMsg}},
			wantPosts: 1,
			wantType:  models.MessageTypeText,
		},
		{
			name:      "media wins over text content",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{imageWithCaption}},
			wantPosts: 1,
			wantType:  models.MessageTypeImage,
		},
		{
			name:      "status broadcast text is suppressed",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{statusText}},
			wantPosts: 0,
		},
		{
			name:      "self-sent unmatched message is logged locally",
			batch:     transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{selfSent}},
			wantPosts: 0,
		},
		{
			name:         "unmatched content goes to the audit log",
			batch:        transport.MessageBatch{Type: transport.BatchNotify, Messages: []*transport.Message{unknownContent}},
			wantPosts:    0,
			wantUnmapped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			postsBefore := postCount()
			unmappedBefore := unmappedCount()

			handlers.OnMessages(context.Background(), conn, tt.batch)

			assert.Equal(t, postsBefore+tt.wantPosts, postCount(), "webhook post count")
			if tt.wantPosts > 0 {
				assert.Equal(t, tt.wantType, lastPostType())
			}
			assert.Equal(t, unmappedBefore+tt.wantUnmapped, unmappedCount(), "audit log entries")
		})
	}
}

func TestStalenessSweepIsolatesFailures(t *testing.T) {
	f := newControllerFixture(t)

	require.NoError(t, f.configs.Save("a", &models.SessionConfig{}))
	require.NoError(t, f.configs.Save("b", &models.SessionConfig{}))

	// Corrupt one record; the sweep must still recover the other.
	require.NoError(t, os.WriteFile(filepath.Join(f.configs.dir, "a.json"), []byte("{broken"), 0600))

	f.controller.InitializeRecentlyActiveSessions(context.Background())

	_, ok := f.store.Get("b")
	assert.True(t, ok)
}
