package telegram

import (
	"context"
	"time"

	"support-chat-service/internal/models"
)

// Per-thread send budget. Telegram starts rejecting bot messages well before
// this, so anything over the budget is dropped instead of retried.
const (
	SendLimit  = 4
	SendWindow = time.Minute
)

// OutboundMedia is a media attachment forwarded into the operator group or a
// direct chat. URL is a presigned link the Bot API fetches itself.
type OutboundMedia struct {
	Kind    models.MediaType
	URL     string
	Caption string
}

// InboundMedia is an attachment taken off an operator's group message. FileID
// is the Telegram file id, still to be downloaded and re-uploaded to blob
// storage before it reaches the customer.
type InboundMedia struct {
	Kind     models.MediaType
	FileID   string
	Caption  string
	MimeType string
	FileSize int64
	Duration int
	Width    int
	Height   int
	Name     string
}

// InboundMessage is an operator message posted inside a forum thread of the
// manager group.
type InboundMessage struct {
	TopicID    int
	SenderID   int64
	SenderName string
	Text       string
	Media      *InboundMedia
}

// Transport is the outbound Telegram surface the rest of the service talks
// to. The concrete client lives in this package; tests swap in a mock.
type Transport interface {
	// SendTopicText posts text into a forum thread of the manager group.
	// A non-empty closeChatID attaches the close-chat button.
	SendTopicText(ctx context.Context, topicID int, text string, closeChatID string) error
	// SendTopicMedia posts an attachment into a forum thread.
	SendTopicMedia(ctx context.Context, topicID int, media OutboundMedia, closeChatID string) error
	// SendTopicDocument uploads raw bytes as a document into a forum thread.
	SendTopicDocument(ctx context.Context, topicID int, filename string, data []byte, caption string) error
	// SendTakeNotice posts the escalation notice with the take-chat button.
	SendTakeNotice(ctx context.Context, topicID int, text string, chatID string) error

	// SendDirectText messages a user directly, with the open-chat web-app
	// button when the widget URL is configured.
	SendDirectText(ctx context.Context, userID int64, text string) error
	// SendDirectMedia forwards an attachment to a user directly.
	SendDirectMedia(ctx context.Context, userID int64, media OutboundMedia) error

	CreateTopic(ctx context.Context, name string) (int, error)
	RenameTopic(ctx context.Context, topicID int, name string) error

	DownloadFile(ctx context.Context, fileID string) ([]byte, error)

	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	// ClearMessageButtons removes the inline keyboard from a group message,
	// used to retire a handled take-chat button.
	ClearMessageButtons(ctx context.Context, messageID int) error
}
