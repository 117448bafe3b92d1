package relay

import "wabridge/pkg/transport"

// ExtractText returns the relayable text of a message: the plain conversation
// body first, then the extended-text body, then the image caption, then the
// video caption. Returns nil when nothing matches or the message comes from a
// group conversation.
func ExtractText(msg *transport.Message) *string {
	if msg == nil || msg.IsGroup() {
		return nil
	}

	if msg.Conversation != "" {
		return &msg.Conversation
	}
	if msg.ExtendedText != nil && msg.ExtendedText.Text != "" {
		return &msg.ExtendedText.Text
	}
	if msg.Image != nil && msg.Image.Caption != "" {
		return &msg.Image.Caption
	}
	if msg.Video != nil && msg.Video.Caption != "" {
		return &msg.Video.Caption
	}

	return nil
}
