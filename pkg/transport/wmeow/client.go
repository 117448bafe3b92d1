// Package wmeow implements the transport capability on top of whatsmeow.
// Each session keeps its own sqlite credential store under the data
// directory, so deleting the session directory is a full logout.
package wmeow

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"wabridge/internal/constants"
	"wabridge/pkg/transport"

	_ "github.com/mattn/go-sqlite3"
)

// Connector opens whatsmeow-backed connections with per-session credential
// stores.
type Connector struct {
	dataDir string
	logger  *logrus.Logger
}

func NewConnector(dataDir string, logger *logrus.Logger) *Connector {
	return &Connector{dataDir: dataDir, logger: logger}
}

func (c *Connector) Dial(ctx context.Context, session string, handlers transport.EventHandlers) (transport.Conn, error) {
	dir := filepath.Join(c.dataDir, session)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	dbPath := filepath.Join(dir, "creds.db")
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err == sql.ErrNoRows {
		device = container.NewDevice()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load device credentials: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	// Reconnect policy is owned by the session controller.
	client.EnableAutoReconnect = false

	conn := &Conn{
		client:   client,
		handlers: handlers,
		logger:   c.logger.WithField("session", session),
	}
	client.AddEventHandler(conn.handleEvent)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open pairing channel: %w", err)
		}
		go conn.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return conn, nil
}

// Conn adapts one whatsmeow client to the transport contract.
type Conn struct {
	client   *whatsmeow.Client
	handlers transport.EventHandlers
	logger   *logrus.Entry
}

func (c *Conn) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emitConnection(transport.ConnectionUpdate{
				State: transport.StateConnecting,
				QR:    item.Code,
			})
		case "success":
			return
		default:
			if item.Error != nil {
				c.logger.WithError(item.Error).Warn("Pairing channel error")
			}
		}
	}
}

func (c *Conn) emitConnection(upd transport.ConnectionUpdate) {
	if c.handlers.OnConnection != nil {
		c.handlers.OnConnection(context.Background(), c, upd)
	}
}

func (c *Conn) handleEvent(evt interface{}) {
	ctx := context.Background()

	switch e := evt.(type) {
	case *events.Connected:
		c.emitConnection(transport.ConnectionUpdate{State: transport.StateOpen})
		if c.handlers.OnCredentials != nil {
			c.handlers.OnCredentials(ctx, c)
		}
	case *events.PairSuccess:
		if c.handlers.OnCredentials != nil {
			c.handlers.OnCredentials(ctx, c)
		}
	case *events.Disconnected:
		c.emitConnection(transport.ConnectionUpdate{State: transport.StateClosed})
	case *events.LoggedOut:
		c.emitConnection(transport.ConnectionUpdate{
			State:      transport.StateClosed,
			StatusCode: transport.StatusLoggedOut,
		})
	case *events.Message:
		c.emitMessages(ctx, transport.BatchNotify, normalizeMessage(e))
	case *events.UndecryptableMessage:
		c.emitMessages(ctx, transport.BatchNotify, undecryptableMessage(e))
	case *events.HistorySync:
		// Already-read history is never relayed; surface it as a non-notify
		// batch so the drop is logged upstream.
		c.emitMessages(ctx, transport.BatchHistory)
	case *events.Receipt:
		c.emitReceipts(ctx, e)
	}
}

func (c *Conn) emitMessages(ctx context.Context, batchType transport.BatchType, msgs ...*transport.Message) {
	if c.handlers.OnMessages == nil {
		return
	}
	c.handlers.OnMessages(ctx, c, transport.MessageBatch{Type: batchType, Messages: msgs})
}

func (c *Conn) emitReceipts(ctx context.Context, e *events.Receipt) {
	if c.handlers.OnReceipts == nil {
		return
	}

	var status int
	switch e.Type {
	case types.ReceiptTypeDelivered:
		status = transport.ReceiptDelivered
	case types.ReceiptTypeRead:
		status = transport.ReceiptRead
	case types.ReceiptTypePlayed:
		status = transport.ReceiptPlayed
	default:
		return
	}

	receipts := make([]transport.ReceiptUpdate, 0, len(e.MessageIDs))
	for _, id := range e.MessageIDs {
		receipts = append(receipts, transport.ReceiptUpdate{
			MessageID: id,
			Recipient: e.Chat.String(),
			Status:    status,
		})
	}
	c.handlers.OnReceipts(ctx, c, receipts)
}

func (c *Conn) SendText(ctx context.Context, to, body string) (string, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return "", err
	}

	resp, err := c.client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send text message: %w", err)
	}
	return resp.ID, nil
}

func (c *Conn) SendMedia(ctx context.Context, to, kind, link, caption string) (string, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return "", err
	}

	data, err := fetchLink(ctx, link)
	if err != nil {
		return "", fmt.Errorf("failed to fetch media link: %w", err)
	}
	mimeType := http.DetectContentType(data)

	var mediaType whatsmeow.MediaType
	switch kind {
	case "image":
		mediaType = whatsmeow.MediaImage
	case "video":
		mediaType = whatsmeow.MediaVideo
	case "document":
		mediaType = whatsmeow.MediaDocument
	case "audio":
		mediaType = whatsmeow.MediaAudio
	default:
		return "", fmt.Errorf("unsupported media type: %s", kind)
	}

	upload, err := c.client.Upload(ctx, data, mediaType)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waProto.Message{}
	switch mediaType {
	case whatsmeow.MediaImage:
		msg.ImageMessage = &waProto.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           &upload.URL,
			DirectPath:    &upload.DirectPath,
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    &upload.FileLength,
		}
	case whatsmeow.MediaVideo:
		msg.VideoMessage = &waProto.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           &upload.URL,
			DirectPath:    &upload.DirectPath,
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    &upload.FileLength,
		}
	case whatsmeow.MediaDocument:
		msg.DocumentMessage = &waProto.DocumentMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(filepath.Base(link)),
			URL:           &upload.URL,
			DirectPath:    &upload.DirectPath,
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    &upload.FileLength,
		}
	case whatsmeow.MediaAudio:
		msg.AudioMessage = &waProto.AudioMessage{
			Mimetype:      proto.String(mimeType),
			URL:           &upload.URL,
			DirectPath:    &upload.DirectPath,
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    &upload.FileLength,
		}
	}

	resp, err := c.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send media message: %w", err)
	}
	return resp.ID, nil
}

func (c *Conn) SendVoice(ctx context.Context, to string, data []byte, seconds uint32) (string, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return "", err
	}

	upload, err := c.client.Upload(ctx, data, whatsmeow.MediaAudio)
	if err != nil {
		return "", fmt.Errorf("failed to upload voice note: %w", err)
	}

	resp, err := c.client.SendMessage(ctx, jid, &waProto.Message{
		AudioMessage: &waProto.AudioMessage{
			Mimetype:      proto.String(constants.VoiceNoteMimeType),
			PTT:           proto.Bool(true),
			Seconds:       proto.Uint32(seconds),
			URL:           &upload.URL,
			DirectPath:    &upload.DirectPath,
			MediaKey:      upload.MediaKey,
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    &upload.FileLength,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send voice note: %w", err)
	}
	return resp.ID, nil
}

func (c *Conn) Download(ctx context.Context, msg *transport.Message) ([]byte, error) {
	raw, ok := msg.Raw.(*waProto.Message)
	if !ok || raw == nil {
		return nil, fmt.Errorf("message carries no downloadable content")
	}

	data, err := c.client.DownloadAny(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

func (c *Conn) ProfilePictureURL(ctx context.Context, conversationID string) (string, error) {
	jid, err := types.ParseJID(conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to parse conversation id: %w", err)
	}

	info, err := c.client.GetProfilePictureInfo(ctx, jid, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

func (c *Conn) PersistCredentials(ctx context.Context) error {
	if err := c.client.Store.Save(ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (c *Conn) User() *transport.User {
	id := c.client.Store.ID
	if id == nil {
		return nil
	}
	return &transport.User{ID: id.String(), Name: c.client.Store.PushName}
}

func (c *Conn) Close() error {
	c.client.Disconnect()
	return nil
}

func parseRecipient(to string) (types.JID, error) {
	jid, err := types.ParseJID(to)
	if err != nil || jid.Server == "" {
		jid = types.NewJID(to, types.DefaultUserServer)
	}
	return jid, nil
}

func fetchLink(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media source returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func normalizeMessage(e *events.Message) *transport.Message {
	raw := unwrap(e.Message)

	msg := &transport.Message{
		Key: transport.Key{
			ID:             e.Info.ID,
			RemoteJID:      e.Info.Chat.String(),
			RemoteJIDAlt:   e.Info.SenderAlt.String(),
			AddressingMode: addressingMode(e.Info.AddressingMode),
			FromMe:         e.Info.IsFromMe,
		},
		PushName:  e.Info.PushName,
		Timestamp: e.Info.Timestamp.Unix(),
		Raw:       raw,
	}

	if raw == nil {
		return msg
	}

	msg.Conversation = raw.GetConversation()

	if ext := raw.GetExtendedTextMessage(); ext != nil {
		msg.ExtendedText = &transport.ExtendedTextContent{Text: ext.GetText()}
		msg.QuotedID = ext.GetContextInfo().GetStanzaID()
	}
	if img := raw.GetImageMessage(); img != nil {
		msg.Image = &transport.MediaContent{
			MimeType: img.GetMimetype(),
			Caption:  img.GetCaption(),
			SHA256:   hex.EncodeToString(img.GetFileSHA256()),
		}
	}
	if vid := raw.GetVideoMessage(); vid != nil {
		msg.Video = &transport.MediaContent{
			MimeType: vid.GetMimetype(),
			Caption:  vid.GetCaption(),
			SHA256:   hex.EncodeToString(vid.GetFileSHA256()),
		}
	}
	if doc := raw.GetDocumentMessage(); doc != nil {
		msg.Document = &transport.DocumentContent{
			MimeType: doc.GetMimetype(),
			FileName: doc.GetFileName(),
			SHA256:   hex.EncodeToString(doc.GetFileSHA256()),
		}
	}
	if aud := raw.GetAudioMessage(); aud != nil {
		msg.Audio = &transport.AudioContent{
			MimeType: aud.GetMimetype(),
			SHA256:   hex.EncodeToString(aud.GetFileSHA256()),
			Voice:    aud.GetPTT(),
			Seconds:  aud.GetSeconds(),
		}
	}

	return msg
}

func undecryptableMessage(e *events.UndecryptableMessage) *transport.Message {
	return &transport.Message{
		Key: transport.Key{
			ID:             e.Info.ID,
			RemoteJID:      e.Info.Chat.String(),
			RemoteJIDAlt:   e.Info.SenderAlt.String(),
			AddressingMode: addressingMode(e.Info.AddressingMode),
			FromMe:         e.Info.IsFromMe,
		},
		PushName:       e.Info.PushName,
		Timestamp:      e.Info.Timestamp.Unix(),
		StubParameters: []string{"Bad MAC"},
	}
}

func addressingMode(mode types.AddressingMode) transport.AddressingMode {
	if mode == types.AddressingModeLID {
		return transport.AddressingLID
	}
	return transport.AddressingPhone
}

// unwrap strips transport-level wrappers so content inspection sees the
// user-visible message.
func unwrap(msg *waProto.Message) *waProto.Message {
	if msg == nil {
		return nil
	}
	if inner := msg.GetEphemeralMessage().GetMessage(); inner != nil {
		return unwrap(inner)
	}
	if inner := msg.GetDeviceSentMessage().GetMessage(); inner != nil {
		return unwrap(inner)
	}
	if inner := msg.GetViewOnceMessage().GetMessage(); inner != nil {
		return unwrap(inner)
	}
	return msg
}
