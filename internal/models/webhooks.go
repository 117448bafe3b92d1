package models

// Message variant types carried in the webhook envelope.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
	MessageTypeAudio    = "audio"
)

// Delivery statuses relayed to the webhook target.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusPlayed    = "played"
)

// WebhookPayload is the normalized envelope posted to the webhook target.
// Shape mirrors the WhatsApp Business webhook format: one entry, one change,
// one contact and one message per delivery.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
	PN      *string        `json:"pn"`
}

type ContactProfile struct {
	Name  string `json:"name"`
	PPUrl string `json:"ppUrl,omitempty"`
}

// WebhookMessage is the tagged union over message variants; exactly one of
// the typed bodies is set, matching Type.
type WebhookMessage struct {
	From      string         `json:"from"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	FromMe    bool           `json:"fromMe"`
	Context   MessageContext `json:"context"`
	Text      *TextBody      `json:"text,omitempty"`
	Image     *MediaBody     `json:"image,omitempty"`
	Video     *MediaBody     `json:"video,omitempty"`
	Document  *DocumentBody  `json:"document,omitempty"`
	Audio     *AudioBody     `json:"audio,omitempty"`
}

// MessageContext carries the reply-context (quoted message) identifier.
type MessageContext struct {
	ID string `json:"id"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaBody struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type DocumentBody struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
	SHA256   string `json:"sha256,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type AudioBody struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
	SHA256   string `json:"sha256,omitempty"`
	Voice    bool   `json:"voice"`
	Duration string `json:"duration"`
}

// StatusPayload is the minimal envelope for delivery-status updates.
type StatusPayload struct {
	Entry []StatusEntry `json:"entry"`
}

type StatusEntry struct {
	Changes []StatusChange `json:"changes"`
}

type StatusChange struct {
	Statuses []StatusUpdate `json:"statuses"`
}

type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipientId"`
}
