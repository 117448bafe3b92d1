// Package transport defines the realtime messaging capability the session
// engine is built against: establish a connection from stored credentials,
// emit connection/credential/receipt/message events, and accept send and
// download requests. The production implementation lives in pkg/transport/wmeow.
package transport

import "context"

// ConnState is the coarse connection lifecycle state.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
)

// StatusLoggedOut is the terminal close status: the account was logged out
// on the phone and reconnecting with the stored credentials cannot succeed.
const StatusLoggedOut = 401

// Receipt status codes as emitted on the wire.
const (
	ReceiptDelivered = 3
	ReceiptRead      = 4
	ReceiptPlayed    = 5
)

// ConnectionUpdate describes a connection lifecycle event. QR is set while
// the transport is waiting for the pairing code to be scanned. StatusCode is
// set on close events.
type ConnectionUpdate struct {
	State      ConnState
	QR         string
	StatusCode int
}

// ReceiptUpdate reports a delivery-status change for a previously sent message.
type ReceiptUpdate struct {
	MessageID string
	Recipient string
	Status    int
}

// BatchType tags an inbound message batch.
type BatchType string

const (
	// BatchNotify marks fresh messages that should be relayed.
	BatchNotify BatchType = "notify"
	// BatchHistory marks history-sync or already-read batches, which are
	// logged and discarded.
	BatchHistory BatchType = "history"
)

// MessageBatch is a group of inbound messages delivered together.
type MessageBatch struct {
	Type     BatchType
	Messages []*Message
}

// User identifies the account a connection is authenticated as.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventHandlers are the callbacks a connection drives. All callbacks receive
// the emitting connection; they may fire before Dial returns (notably QR
// updates during pairing).
type EventHandlers struct {
	OnCredentials func(ctx context.Context, conn Conn)
	OnConnection  func(ctx context.Context, conn Conn, upd ConnectionUpdate)
	OnReceipts    func(ctx context.Context, conn Conn, receipts []ReceiptUpdate)
	OnMessages    func(ctx context.Context, conn Conn, batch MessageBatch)
}

// Conn is a live connection for one session.
type Conn interface {
	// SendText sends a plain text message and returns the message id.
	SendText(ctx context.Context, to, body string) (string, error)
	// SendMedia fetches the linked media and sends it as the given kind
	// (image, video, document, audio), returning the message id.
	SendMedia(ctx context.Context, to, kind, link, caption string) (string, error)
	// SendVoice sends pre-encoded opus-in-ogg audio as a voice note.
	SendVoice(ctx context.Context, to string, data []byte, seconds uint32) (string, error)
	// Download fetches the binary payload of an inbound media message.
	Download(ctx context.Context, msg *Message) ([]byte, error)
	// ProfilePictureURL resolves the sender's profile picture, if visible.
	ProfilePictureURL(ctx context.Context, conversationID string) (string, error)
	// PersistCredentials flushes updated credentials to the session's store.
	PersistCredentials(ctx context.Context) error
	// User returns the authenticated account, or nil before pairing.
	User() *User
	// Close tears down the socket. It triggers a close ConnectionUpdate.
	Close() error
}

// Connector opens connections using per-session stored credentials.
type Connector interface {
	Dial(ctx context.Context, session string, handlers EventHandlers) (Conn, error)
}
