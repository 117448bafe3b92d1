package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"wabridge/internal/constants"
	"wabridge/pkg/transport"
)

// mediaRule is one row of the ordered media policy table. First matching
// rule wins; the order fixes the tie-break when a malformed message carries
// more than one content key.
type mediaRule struct {
	kind      transport.Kind
	extension string
}

func mediaRules() []mediaRule {
	return []mediaRule{
		{kind: transport.KindImage, extension: constants.DefaultImageExtension},
		{kind: transport.KindVideo, extension: constants.DefaultVideoExtension},
		{kind: transport.KindDocument, extension: constants.DefaultDocumentExtension},
		{kind: transport.KindAudio, extension: constants.DefaultAudioExtension},
	}
}

// MediaRelay classifies inbound media messages, persists the binary payload
// under the media directory and posts the typed webhook variant.
type MediaRelay struct {
	dir    string
	poster *Poster
	logger *logrus.Logger
}

func NewMediaRelay(dir string, poster *Poster, logger *logrus.Logger) *MediaRelay {
	return &MediaRelay{dir: dir, poster: poster, logger: logger}
}

// HandleMessage runs msg through the media policy table. It reports whether
// a handler took the message; false means the caller should try the text
// path. The webhook post is mandatory on a match even when the binary
// download fails (the payload ships with an empty base64 string).
func (r *MediaRelay) HandleMessage(ctx context.Context, conn transport.Conn, session, target string, msg *transport.Message, ppURL string) bool {
	if SenderJID(msg.Key) == "" {
		return false
	}
	if msg.IsNewsletter() {
		return false
	}

	for _, rule := range mediaRules() {
		if !msg.Has(rule.kind) {
			continue
		}

		ext := rule.extension
		switch rule.kind {
		case transport.KindDocument:
			if !constants.AllowedDocumentMimeTypes[msg.Document.MimeType] {
				continue
			}
			if e := strings.TrimPrefix(filepath.Ext(msg.Document.FileName), "."); e != "" {
				ext = e
			}
		case transport.KindAudio:
			if strings.Contains(msg.Audio.MimeType, "ogg") {
				ext = "ogg"
			} else {
				ext = "mp3"
			}
		}

		r.relay(ctx, conn, session, target, msg, rule.kind, ext, ppURL)
		return true
	}

	return false
}

func (r *MediaRelay) relay(ctx context.Context, conn transport.Conn, session, target string, msg *transport.Message, kind transport.Kind, ext, ppURL string) {
	path := r.mediaPath(session, msg, ext)

	var data []byte
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("Failed to create media directory")
	} else {
		data = r.downloadAndSave(ctx, conn, msg, path)
	}

	from := ComposeConversationID(msg.Key)
	payload := BuildPayload(session, msg, ppURL)

	switch kind {
	case transport.KindImage:
		SetMessage(payload, ImageMessage(msg, from, dataURI(data, msg.Image.MimeType)))
	case transport.KindVideo:
		SetMessage(payload, VideoMessage(msg, from, dataURI(data, msg.Video.MimeType)))
	case transport.KindDocument:
		SetMessage(payload, DocumentMessage(msg, from, dataURI(data, msg.Document.MimeType)))
	case transport.KindAudio:
		SetMessage(payload, AudioMessage(msg, from, dataURI(data, msg.Audio.MimeType)))
	}

	r.poster.PostBestEffort(ctx, target, payload)
}

// mediaPath namespaces status-broadcast media into its own subfolder with a
// session- and sender-qualified filename; ordinary media is keyed by message
// id alone.
func (r *MediaRelay) mediaPath(session string, msg *transport.Message, ext string) string {
	folder := r.dir
	base := msg.Key.ID

	if msg.IsStatusBroadcast() {
		folder = filepath.Join(r.dir, constants.StatusMediaSubdir)
		pushName := msg.PushName
		if pushName == "" {
			pushName = "no_name"
		}
		base = fmt.Sprintf("%s_%s_%s", session, pushName, msg.Key.ID)
	}

	return filepath.Join(folder, base+"."+ext)
}

func (r *MediaRelay) downloadAndSave(ctx context.Context, conn transport.Conn, msg *transport.Message, path string) []byte {
	data, err := conn.Download(ctx, msg)
	if err != nil {
		r.logger.WithError(err).WithField("messageId", msg.Key.ID).Warn("Failed to download media")
		return nil
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("Failed to save media file")
	} else {
		r.logger.WithField("path", path).Debug("Media file saved")
	}

	return data
}

// dataURI encodes data for webhook transmission. A nil buffer encodes to the
// empty string so the webhook still carries the message metadata.
func dataURI(data []byte, mimeType string) string {
	if len(data) == 0 {
		return ""
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
