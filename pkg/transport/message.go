package transport

import "strings"

// Kind classifies an inbound message into exactly one relay category.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
	KindUnknown  Kind = "unknown"
)

// AddressingMode says which identifier space the sender key lives in.
type AddressingMode string

const (
	AddressingPhone AddressingMode = "pn"
	AddressingLID   AddressingMode = "lid"
)

// Key identifies an inbound message and its sender.
type Key struct {
	ID             string         `json:"id"`
	RemoteJID      string         `json:"remoteJid"`
	RemoteJIDAlt   string         `json:"remoteJidAlt,omitempty"`
	AddressingMode AddressingMode `json:"addressingMode,omitempty"`
	FromMe         bool           `json:"fromMe"`
}

// ExtendedTextContent is the rich-text message body.
type ExtendedTextContent struct {
	Text string `json:"text"`
}

// MediaContent carries image or video metadata.
type MediaContent struct {
	MimeType string `json:"mimetype"`
	Caption  string `json:"caption,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// DocumentContent carries document metadata.
type DocumentContent struct {
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// AudioContent carries audio metadata. Voice marks push-to-talk recordings.
type AudioContent struct {
	MimeType string `json:"mimetype"`
	SHA256   string `json:"sha256,omitempty"`
	Voice    bool   `json:"voice"`
	Seconds  uint32 `json:"seconds"`
}

// Message is the normalized inbound message. At most one of the typed
// content fields is expected to be set; classification order when several
// are present is fixed by the relay policy table.
type Message struct {
	Key            Key                  `json:"key"`
	PushName       string               `json:"pushName,omitempty"`
	Timestamp      int64                `json:"timestamp"`
	StubParameters []string             `json:"stubParameters,omitempty"`
	Conversation   string               `json:"conversation,omitempty"`
	ExtendedText   *ExtendedTextContent `json:"extendedText,omitempty"`
	Image          *MediaContent        `json:"image,omitempty"`
	Video          *MediaContent        `json:"video,omitempty"`
	Document       *DocumentContent     `json:"document,omitempty"`
	Audio          *AudioContent        `json:"audio,omitempty"`
	// QuotedID is the stanza id of the message being replied to, if any.
	QuotedID string `json:"quotedId,omitempty"`

	// Raw is an adapter-owned handle used by Conn.Download. Never inspected
	// by the core.
	Raw any `json:"-"`
}

// HasBadMAC reports whether the message failed decryption and must be
// dropped without relay.
func (m *Message) HasBadMAC() bool {
	return len(m.StubParameters) > 0 && m.StubParameters[0] == "Bad MAC"
}

// IsGroup reports whether the message comes from a group conversation.
func (m *Message) IsGroup() bool {
	return strings.Contains(m.Key.RemoteJID, "@g.us")
}

// IsNewsletter reports whether the conversation is a newsletter, which is
// relayed like a regular conversation despite its group-style id.
func (m *Message) IsNewsletter() bool {
	return strings.Contains(m.Key.RemoteJID, "newsletter")
}

// IsStatusBroadcast reports whether the conversation is a status broadcast.
// Status media is archived under its own folder; status text is not relayed.
func (m *Message) IsStatusBroadcast() bool {
	return strings.Contains(m.Key.RemoteJID, "status")
}

// Has reports whether the message carries content of the given kind.
func (m *Message) Has(kind Kind) bool {
	switch kind {
	case KindImage:
		return m.Image != nil
	case KindVideo:
		return m.Video != nil
	case KindDocument:
		return m.Document != nil
	case KindAudio:
		return m.Audio != nil
	case KindText:
		return m.Conversation != "" || m.ExtendedText != nil
	}
	return false
}
