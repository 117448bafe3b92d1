package constants

// AllowedDocumentMimeTypes is the closed set of document MIME types that are
// relayed. Anything else falls through the media policy table unhandled.
var AllowedDocumentMimeTypes = map[string]bool{
	"application/pdf":          true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/csv":   true,
	"text/plain": true,
}

// Default file extensions per media category, used when the message metadata
// does not pin one down.
const (
	DefaultImageExtension    = "jpg"
	DefaultVideoExtension    = "mp4"
	DefaultDocumentExtension = "pdf"
	DefaultAudioExtension    = "mp3"
)

// VoiceNoteMimeType is the content type of outbound transcoded voice notes.
const VoiceNoteMimeType = "audio/ogg; codecs=opus"
