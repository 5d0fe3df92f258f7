package transport

import "context"

// MediaKind distinguishes the two media types a channel queue can hold.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// FileRef identifies a file hosted by the platform (not yet downloaded).
type FileRef struct {
	ID   string
	Kind MediaKind
}

// Update is a platform-neutral inbound event.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string

	// Media is set when the message carries a photo or video upload.
	Media *FileRef
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Adapter is the bot's view of the messaging platform.
//
// SendPhoto/SendVideo publish a local media file with a caption; Download
// fetches a freshly uploaded file's bytes for staging. Notification traffic
// goes through SendText.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, to ChatTarget, path string, caption string) error
	SendVideo(ctx context.Context, to ChatTarget, path string, caption string) error
	Download(ctx context.Context, ref FileRef) ([]byte, error)
}
