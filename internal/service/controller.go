package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/relay"
	"wabridge/internal/security"
	"wabridge/pkg/transport"
)

// Controller owns the session lifecycle: creation with webhook-target
// resolution, event handling for live connections, reconnect policy,
// teardown and the startup staleness sweep.
type Controller struct {
	store     *SessionStore
	configs   *ConfigStore
	connector transport.Connector
	poster    *relay.Poster
	media     *relay.MediaRelay
	unmapped  *relay.UnmappedLog

	callbackURL string
	dataDir     string
	logger      *logrus.Logger

	group          singleflight.Group
	reconnectDelay time.Duration
	now            func() time.Time
}

func NewController(store *SessionStore, configs *ConfigStore, connector transport.Connector, poster *relay.Poster, media *relay.MediaRelay, unmapped *relay.UnmappedLog, callbackURL, dataDir string, logger *logrus.Logger) *Controller {
	return &Controller{
		store:          store,
		configs:        configs,
		connector:      connector,
		poster:         poster,
		media:          media,
		unmapped:       unmapped,
		callbackURL:    callbackURL,
		dataDir:        dataDir,
		logger:         logger,
		reconnectDelay: constants.ReconnectDelay,
		now:            time.Now,
	}
}

// ResolveWebhookTarget returns the delivery URL for a session, by precedence:
// workspace+canal route, then the explicitly configured webhook, then the
// default callback base.
func (c *Controller) ResolveWebhookTarget(session string) string {
	base := c.callbackURL + "/whatsapp/webhook"

	config, err := c.configs.Get(session)
	if err != nil {
		c.logger.WithError(err).WithField("session", session).Warn("Failed to load session config, using default webhook target")
		return base
	}
	if config == nil {
		return base
	}

	if config.WorkspaceID != nil && config.CanalID != nil {
		return fmt.Sprintf("%s/%s/%s", base, *config.WorkspaceID, *config.CanalID)
	}
	if config.Webhook != nil && *config.Webhook != "" {
		return *config.Webhook
	}
	return base
}

// CreateSession opens (or returns) the connection for session. Idempotent:
// concurrent calls for the same identifier resolve to the same handle and at
// most one connection is ever dialed.
func (c *Controller) CreateSession(ctx context.Context, session string) (transport.Conn, error) {
	if err := security.ValidateSessionID(session); err != nil {
		return nil, err
	}

	if conn, ok := c.store.Get(session); ok {
		return conn, nil
	}

	v, err, _ := c.group.Do(session, func() (interface{}, error) {
		if conn, ok := c.store.Get(session); ok {
			return conn, nil
		}
		return c.dial(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return v.(transport.Conn), nil
}

func (c *Controller) dial(ctx context.Context, session string) (transport.Conn, error) {
	target := c.ResolveWebhookTarget(session)
	logger := c.logger.WithField("session", session)

	handlers := transport.EventHandlers{
		OnCredentials: func(ctx context.Context, conn transport.Conn) {
			if err := conn.PersistCredentials(ctx); err != nil {
				logger.WithError(err).Error("Failed to persist session credentials")
			}
		},
		OnConnection: func(ctx context.Context, conn transport.Conn, upd transport.ConnectionUpdate) {
			c.handleConnectionUpdate(session, upd)
		},
		OnReceipts: func(ctx context.Context, conn transport.Conn, receipts []transport.ReceiptUpdate) {
			c.handleReceipts(ctx, target, receipts)
		},
		OnMessages: func(ctx context.Context, conn transport.Conn, batch transport.MessageBatch) {
			c.handleBatch(ctx, conn, session, target, batch)
		},
	}

	conn, err := c.connector.Dial(ctx, session, handlers)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", session, err)
	}

	c.store.Put(session, conn)
	logger.Info("Session registered")
	return conn, nil
}

func (c *Controller) handleConnectionUpdate(session string, upd transport.ConnectionUpdate) {
	logger := c.logger.WithField("session", session)

	if upd.QR != "" {
		c.store.SetQR(session, upd.QR)
		logger.Info("Pairing code received, waiting for scan")
	}

	switch upd.State {
	case transport.StateOpen:
		c.store.ClearQR(session)
		logger.Info("Session connected")
	case transport.StateClosed:
		c.store.Remove(session)
		logger.WithField("statusCode", upd.StatusCode).Info("Session disconnected")

		if upd.StatusCode == transport.StatusLoggedOut {
			logger.Info("Session logged out, not reconnecting")
			return
		}
		if c.store.IsPendingDeletion(session) {
			logger.Info("Session pending deletion, not reconnecting")
			return
		}

		time.AfterFunc(c.reconnectDelay, func() {
			if _, err := c.CreateSession(context.Background(), session); err != nil {
				logger.WithError(err).Error("Failed to reconnect session")
			}
		})
	}
}

func (c *Controller) handleReceipts(ctx context.Context, target string, receipts []transport.ReceiptUpdate) {
	for _, receipt := range receipts {
		payload, ok := relay.BuildStatusPayload(receipt)
		if !ok {
			continue
		}
		c.poster.PostBestEffort(ctx, target, payload)
	}
}

// handleBatch relays one inbound batch. Only "notify" batches carry fresh
// messages; everything else is history sync and is dropped after logging.
// Exactly one of media relay, text relay, self-sent log or unmapped log
// happens per message, media first.
func (c *Controller) handleBatch(ctx context.Context, conn transport.Conn, session, target string, batch transport.MessageBatch) {
	logger := c.logger.WithField("session", session)

	if batch.Type != transport.BatchNotify {
		logger.WithField("count", len(batch.Messages)).Debug("Ignoring already-read message batch")
		return
	}

	for _, msg := range batch.Messages {
		if msg.HasBadMAC() {
			logger.WithField("messageId", msg.Key.ID).Warn("Undecryptable message, dropping")
			continue
		}

		ppURL, err := conn.ProfilePictureURL(ctx, msg.Key.RemoteJID)
		if err != nil {
			ppURL = ""
		}

		if msg.IsGroup() && !msg.IsNewsletter() {
			logger.WithField("messageId", msg.Key.ID).Debug("Ignoring group message")
			continue
		}

		if c.media.HandleMessage(ctx, conn, session, target, msg, ppURL) {
			continue
		}

		if text := relay.ExtractText(msg); text != nil {
			if msg.IsStatusBroadcast() {
				continue
			}
			payload := relay.BuildPayload(session, msg, ppURL)
			relay.SetMessage(payload, relay.TextMessage(msg, relay.ComposeConversationID(msg.Key), *text))
			c.poster.PostBestEffort(ctx, target, payload)
			continue
		}

		if msg.Key.FromMe {
			logger.WithFields(logrus.Fields{
				"messageId": msg.Key.ID,
				"pushName":  msg.PushName,
			}).Debug("Self-sent message, not relayed")
			continue
		}

		c.unmapped.Append(session, msg)
	}
}

// DeleteSession tears down a session: suppresses reconnects, closes the
// socket, and removes the registry entry, cached QR, credential directory
// and config record. Returns true if anything existed to remove.
func (c *Controller) DeleteSession(session string) (bool, error) {
	if err := security.ValidateSessionID(session); err != nil {
		return false, err
	}

	logger := c.logger.WithField("session", session)
	c.store.MarkPendingDeletion(session)

	if conn, ok := c.store.Get(session); ok {
		if err := conn.Close(); err != nil {
			logger.WithError(err).Error("Failed to close session connection")
		}
	}

	removed := c.store.Remove(session)
	c.store.ClearQR(session)

	authDir := filepath.Join(c.dataDir, session)
	if _, err := os.Stat(authDir); err == nil {
		if err := os.RemoveAll(authDir); err != nil {
			return removed, fmt.Errorf("failed to remove credential directory: %w", err)
		}
		removed = true
	}

	configRemoved, err := c.configs.Delete(session)
	if err != nil {
		return removed, err
	}
	removed = removed || configRemoved

	if removed {
		logger.Info("Session deleted")
	}
	return removed, nil
}

// InitializeRecentlyActiveSessions recovers persisted sessions on startup.
// Sessions idle for longer than the staleness window are deleted instead of
// recovered. Entries are independent: one failure never aborts the sweep.
func (c *Controller) InitializeRecentlyActiveSessions(ctx context.Context) {
	sessions, err := c.configs.List()
	if err != nil {
		c.logger.WithError(err).Error("Failed to enumerate persisted sessions")
		return
	}

	for _, session := range sessions {
		logger := c.logger.WithField("session", session)

		config, err := c.configs.Get(session)
		if err != nil {
			logger.WithError(err).Error("Failed to load session config during sweep")
			continue
		}
		if config == nil {
			continue
		}

		if config.LastSentMessageTimestamp != nil &&
			float64(c.now().Unix())-*config.LastSentMessageTimestamp > constants.StaleSessionMaxAgeSec {
			logger.Info("Deleting session inactive for over 15 days")
			if _, err := c.DeleteSession(session); err != nil {
				logger.WithError(err).Error("Failed to delete stale session")
			}
			continue
		}

		if _, err := c.CreateSession(ctx, session); err != nil {
			logger.WithError(err).Error("Failed to recover session")
		}
	}
}

// SaveConfig persists a partial config update for session.
func (c *Controller) SaveConfig(session string, update *models.SessionConfig) error {
	return c.configs.Save(session, update)
}

// Sessions returns the identifiers with a live connection.
func (c *Controller) Sessions() []string {
	return c.store.List()
}

// SessionStatus reports whether session has a live, authenticated
// connection and which account it is paired to.
func (c *Controller) SessionStatus(session string) (connected bool, user *transport.User, ok bool) {
	conn, ok := c.store.Get(session)
	if !ok {
		return false, nil, false
	}
	user = conn.User()
	return user != nil, user, true
}

// QR returns the cached pairing code for a session still pairing.
func (c *Controller) QR(session string) (string, bool) {
	return c.store.QR(session)
}
