package models

import (
	"encoding/json"
	"time"
)

// EventType discriminates the envelopes sent to the customer. The same
// envelope is serialized identically on both delivery channels.
type EventType string

const (
	EventInit         EventType = "init"
	EventMessage      EventType = "message"
	EventAIResponse   EventType = "ai_response"
	EventStatusUpdate EventType = "status_update"
	EventError        EventType = "error"
)

// Event is the outbound client envelope {type, payload}. Payload holds one of
// the *Payload structs below, matching Type.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// HistoryEntry is one message rendered into the init payload.
type HistoryEntry struct {
	Text      string        `json:"text,omitempty"`
	SenderID  string        `json:"sender_id"`
	Timestamp time.Time     `json:"timestamp"`
	Media     *MediaContent `json:"media,omitempty"`
}

type InitPayload struct {
	ChatID      string         `json:"chat_id,omitempty"`
	History     []HistoryEntry `json:"history"`
	Status      string         `json:"status"`
	ShowButtons bool           `json:"show_buttons,omitempty"`
}

type MessagePayload struct {
	ChatID     string        `json:"chat_id"`
	SenderID   string        `json:"sender_id"`
	SenderType string        `json:"sender_type,omitempty"`
	Text       string        `json:"text,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Media      *MediaContent `json:"media,omitempty"`
}

type AIResponsePayload struct {
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	ShowButtons bool      `json:"show_buttons"`
}

type StatusUpdatePayload struct {
	Status            string `json:"status,omitempty"`
	Message           string `json:"message"`
	ShowNewChatButton bool   `json:"show_new_chat_button,omitempty"`
	ChatID            string `json:"chat_id"`
}

type ErrorPayload struct {
	Message            string `json:"message"`
	ShowOperatorButton bool   `json:"show_operator_button,omitempty"`
	ShowNewChatButton  bool   `json:"show_new_chat_button,omitempty"`
	ChatID             string `json:"chat_id,omitempty"`
}

func NewInitEvent(p InitPayload) Event       { return Event{Type: EventInit, Payload: p} }
func NewMessageEvent(p MessagePayload) Event { return Event{Type: EventMessage, Payload: p} }
func NewAIResponseEvent(p AIResponsePayload) Event {
	p.ShowButtons = true
	return Event{Type: EventAIResponse, Payload: p}
}
func NewStatusUpdateEvent(p StatusUpdatePayload) Event {
	return Event{Type: EventStatusUpdate, Payload: p}
}
func NewErrorEvent(p ErrorPayload) Event { return Event{Type: EventError, Payload: p} }

// ClientEnvelope is the inbound frame read from the live channel.
type ClientEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	ClientTypeMessage      = "message"
	ClientTypeStartNewChat = "start_new_chat"
)

// ClientMessagePayload is the payload of an inbound "message" frame. A
// non-nil File means the binary was already uploaded out-of-band via the
// upload endpoint.
type ClientMessagePayload struct {
	Text   string          `json:"text"`
	File   json.RawMessage `json:"file,omitempty"`
	ChatID string          `json:"chat_id,omitempty"`
}
