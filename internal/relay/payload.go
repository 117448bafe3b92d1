// Package relay turns inbound transport messages into normalized webhook
// payloads and delivers them to the configured CRM endpoint.
package relay

import (
	"regexp"
	"strconv"
	"strings"

	"wabridge/internal/models"
	"wabridge/pkg/transport"
)

// deviceSuffixPattern strips per-device suffixes (":12@") out of composed
// conversation identifiers so the same contact always maps to one id.
var deviceSuffixPattern = regexp.MustCompile(`:[^@]*@`)

// ComposeConversationID folds the sender identity triplet into a single
// opaque identifier used as the contact wa_id and the message source.
func ComposeConversationID(key transport.Key) string {
	raw := "primary=" + key.RemoteJID +
		"&secondary=" + key.RemoteJIDAlt +
		"&addressingMode=" + string(key.AddressingMode)
	return deviceSuffixPattern.ReplaceAllString(raw, "@")
}

// SenderJID returns the phone-number-space identifier of the sender, which
// lives in the primary or the alternate field depending on addressing mode.
// Empty when the transport exposed neither.
func SenderJID(key transport.Key) string {
	if key.AddressingMode == transport.AddressingPhone {
		return key.RemoteJID
	}
	return key.RemoteJIDAlt
}

// SenderPhone returns the bare phone number of the sender, or nil when it
// cannot be determined.
func SenderPhone(key transport.Key) *string {
	jid := SenderJID(key)
	if jid == "" {
		return nil
	}
	if at := strings.Index(jid, "@"); at >= 0 {
		jid = jid[:at]
	}
	return &jid
}

// BuildPayload assembles the business-account envelope around msg with a
// placeholder text message. Callers replace the message with a typed variant
// from one of the builders below.
func BuildPayload(session string, msg *transport.Message, ppURL string) *models.WebhookPayload {
	conversationID := ComposeConversationID(msg.Key)
	return &models.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []models.WebhookEntry{{
			ID: session,
			Changes: []models.WebhookChange{{
				Field: "messages",
				Value: models.WebhookValue{
					MessagingProduct: "whatsapp",
					Metadata: models.WebhookMetadata{
						DisplayPhoneNumber: session,
						PhoneNumberID:      session,
					},
					Contacts: []models.WebhookContact{{
						Profile: models.ContactProfile{
							Name:  msg.PushName,
							PPUrl: ppURL,
						},
						WaID: conversationID,
						PN:   SenderPhone(msg.Key),
					}},
					Messages: []models.WebhookMessage{
						messageCommon(msg, conversationID),
					},
				},
			}},
		}},
	}
}

// SetMessage swaps the single message slot of a built payload.
func SetMessage(p *models.WebhookPayload, m models.WebhookMessage) {
	p.Entry[0].Changes[0].Value.Messages[0] = m
}

func messageCommon(msg *transport.Message, from string) models.WebhookMessage {
	return models.WebhookMessage{
		From:      from,
		ID:        msg.Key.ID,
		Timestamp: strconv.FormatInt(msg.Timestamp, 10),
		Type:      models.MessageTypeText,
		FromMe:    msg.Key.FromMe,
		Context:   models.MessageContext{ID: msg.QuotedID},
		Text:      &models.TextBody{},
	}
}

// TextMessage builds the text variant.
func TextMessage(msg *transport.Message, from, body string) models.WebhookMessage {
	m := messageCommon(msg, from)
	m.Text = &models.TextBody{Body: body}
	return m
}

// ImageMessage builds the image variant.
func ImageMessage(msg *transport.Message, from, base64 string) models.WebhookMessage {
	m := messageCommon(msg, from)
	m.Type = models.MessageTypeImage
	m.Text = nil
	m.Image = &models.MediaBody{
		MimeType: msg.Image.MimeType,
		Base64:   base64,
		SHA256:   msg.Image.SHA256,
		Caption:  msg.Image.Caption,
	}
	return m
}

// VideoMessage builds the video variant.
func VideoMessage(msg *transport.Message, from, base64 string) models.WebhookMessage {
	m := messageCommon(msg, from)
	m.Type = models.MessageTypeVideo
	m.Text = nil
	m.Video = &models.MediaBody{
		MimeType: msg.Video.MimeType,
		Base64:   base64,
		SHA256:   msg.Video.SHA256,
		Caption:  msg.Video.Caption,
	}
	return m
}

// DocumentMessage builds the document variant.
func DocumentMessage(msg *transport.Message, from, base64 string) models.WebhookMessage {
	m := messageCommon(msg, from)
	m.Type = models.MessageTypeDocument
	m.Text = nil
	m.Document = &models.DocumentBody{
		MimeType: msg.Document.MimeType,
		Base64:   base64,
		SHA256:   msg.Document.SHA256,
		FileName: msg.Document.FileName,
	}
	return m
}

// AudioMessage builds the audio variant.
func AudioMessage(msg *transport.Message, from, base64 string) models.WebhookMessage {
	m := messageCommon(msg, from)
	m.Type = models.MessageTypeAudio
	m.Text = nil
	m.Audio = &models.AudioBody{
		MimeType: msg.Audio.MimeType,
		Base64:   base64,
		SHA256:   msg.Audio.SHA256,
		Voice:    msg.Audio.Voice,
		Duration: strconv.FormatUint(uint64(msg.Audio.Seconds), 10),
	}
	return m
}

// BuildStatusPayload wraps one delivery-status update in its minimal envelope.
func BuildStatusPayload(receipt transport.ReceiptUpdate) (*models.StatusPayload, bool) {
	var status string
	switch receipt.Status {
	case transport.ReceiptDelivered:
		status = models.StatusDelivered
	case transport.ReceiptRead:
		status = models.StatusRead
	case transport.ReceiptPlayed:
		status = models.StatusPlayed
	default:
		return nil, false
	}

	return &models.StatusPayload{
		Entry: []models.StatusEntry{{
			Changes: []models.StatusChange{{
				Statuses: []models.StatusUpdate{{
					ID:          receipt.MessageID,
					Status:      status,
					RecipientID: receipt.Recipient,
				}},
			}},
		}},
	}, true
}
