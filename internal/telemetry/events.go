package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Lifecycle event types published to the chat events exchange.
const (
	EventChatCreated   = "chat_created"
	EventChatEscalated = "chat_escalated"
	EventChatClaimed   = "chat_claimed"
	EventChatClosed    = "chat_closed"
	EventChatReopened  = "chat_reopened"
)

type ChatEventEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type ChatEventEnvelope struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	OccurredAt    string           `json:"occurred_at"`
	Service       string           `json:"service"`
	Environment   string           `json:"environment"`
	Payload       ChatEventPayload `json:"payload"`
}

type ChatEventPayload struct {
	ChatID    string `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	ManagerID *int64 `json:"manager_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func NewChatEventEmitter(publisher Publisher, routingKey, service, environment string) *ChatEventEmitter {
	return &ChatEventEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes a chat lifecycle event. Publish failures are logged and
// swallowed, lifecycle events never block chat traffic.
func (e *ChatEventEmitter) Emit(ctx context.Context, eventType string, payload ChatEventPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := ChatEventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey+"."+eventType, envelope); err != nil {
		log.Printf("chat event publish failed: type=%s chat_id=%s err=%v", eventType, payload.ChatID, err)
	}
}
