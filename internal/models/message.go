package models

import "time"

// SenderAI is the sentinel sender id for generator-produced messages.
// Customers and operators use their numeric id rendered as a string.
const SenderAI = "ai"

// MediaType enumerates attachment kinds carried by a message.
type MediaType string

const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaVoice     MediaType = "voice"
	MediaVideoNote MediaType = "video_note"
	MediaDocument  MediaType = "document"
)

// MediaContent describes an attachment. FileID is the blob storage key
// (namespaced as "<chat_id>/<name>"); it is a weak reference, deleting the
// blob does not retract the message record.
type MediaContent struct {
	Type     MediaType `bson:"type" json:"type"`
	FileID   string    `bson:"file_id" json:"file_id"`
	Caption  string    `bson:"caption,omitempty" json:"caption,omitempty"`
	MimeType string    `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	FileSize int64     `bson:"file_size,omitempty" json:"file_size,omitempty"`
	Duration int       `bson:"duration,omitempty" json:"duration,omitempty"`
	Width    int       `bson:"width,omitempty" json:"width,omitempty"`
	Height   int       `bson:"height,omitempty" json:"height,omitempty"`
}

// Message is an immutable chat message, ordered by Timestamp within a chat.
type Message struct {
	ID        string        `bson:"_id" json:"id"`
	ChatID    string        `bson:"chat_id" json:"chat_id"`
	SenderID  string        `bson:"sender_id" json:"sender_id"`
	Text      string        `bson:"text,omitempty" json:"text,omitempty"`
	Media     *MediaContent `bson:"media,omitempty" json:"media,omitempty"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
}
