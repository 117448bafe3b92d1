package models

// SessionConfig is the persisted per-session record. All fields are optional;
// partial updates merge field-wise into the stored record, so pointers are
// used to distinguish "absent" from "set to zero".
type SessionConfig struct {
	Webhook                  *string  `json:"webhook,omitempty"`
	WorkspaceID              *string  `json:"workspaceID,omitempty"`
	CanalID                  *string  `json:"canalID,omitempty"`
	LastSentMessageTimestamp *float64 `json:"lastSentMessageTimestamp,omitempty"`
}

// Merge applies the set fields of update on top of the receiver,
// last-write-wins per field.
func (c *SessionConfig) Merge(update *SessionConfig) {
	if update == nil {
		return
	}
	if update.Webhook != nil {
		c.Webhook = update.Webhook
	}
	if update.WorkspaceID != nil {
		c.WorkspaceID = update.WorkspaceID
	}
	if update.CanalID != nil {
		c.CanalID = update.CanalID
	}
	if update.LastSentMessageTimestamp != nil {
		c.LastSentMessageTimestamp = update.LastSentMessageTimestamp
	}
}

// MediaLink is a link-based media body in an outbound send request.
type MediaLink struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// SendTextBody carries the text of an outbound text send.
type SendTextBody struct {
	Body string `json:"body"`
}

// SendRequest is the user-initiated outbound send, matching the fields object
// accepted by POST /session/:id/send.
type SendRequest struct {
	To       string        `json:"to"`
	Type     string        `json:"type"`
	Text     *SendTextBody `json:"text,omitempty"`
	Image    *MediaLink    `json:"image,omitempty"`
	Video    *MediaLink    `json:"video,omitempty"`
	Document *MediaLink    `json:"document,omitempty"`
	Audio    *MediaLink    `json:"audio,omitempty"`
}

// MediaLinkFor returns the media body matching the declared type, or nil.
func (r *SendRequest) MediaLinkFor(kind string) *MediaLink {
	switch kind {
	case "image":
		return r.Image
	case "video":
		return r.Video
	case "document":
		return r.Document
	case "audio":
		return r.Audio
	}
	return nil
}

// SentMessage identifies one message accepted by the transport.
type SentMessage struct {
	ID string `json:"id"`
}

// SendResult is the response body of a successful send.
type SendResult struct {
	Messages []SentMessage `json:"messages"`
}
