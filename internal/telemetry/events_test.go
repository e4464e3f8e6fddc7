package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"support-chat-service/internal/mocks"
	"support-chat-service/internal/telemetry"
)

func newEmitter(publisher *mocks.PublisherMock) *telemetry.ChatEventEmitter {
	return telemetry.NewChatEventEmitter(publisher, "chat", "support-chat-service", "dev")
}

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	emitter := newEmitter(publisher)
	managerID := int64(99)

	publisher.On("Publish", mock.Anything, "chat.chat_claimed", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.ChatEventEnvelope)
		if !ok {
			return false
		}
		return envelope.SchemaVersion == 1 &&
			envelope.EventType == telemetry.EventChatClaimed &&
			envelope.Service == "support-chat-service" &&
			envelope.Environment == "dev" &&
			envelope.OccurredAt != "" &&
			envelope.Payload.ChatID == "chat-1" &&
			envelope.Payload.UserID == 42 &&
			envelope.Payload.ManagerID != nil &&
			*envelope.Payload.ManagerID == managerID
	})).Return(nil).Once()

	emitter.Emit(context.Background(), telemetry.EventChatClaimed, telemetry.ChatEventPayload{
		ChatID:    "chat-1",
		UserID:    42,
		ManagerID: &managerID,
	})

	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishFailure(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	emitter := newEmitter(publisher)

	publisher.On("Publish", mock.Anything, "chat.chat_closed", mock.Anything).
		Return(errors.New("broker down")).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), telemetry.EventChatClosed, telemetry.ChatEventPayload{ChatID: "chat-1"})
	})
	publisher.AssertExpectations(t)
}

func TestEmitNilEmitterIsNoop(t *testing.T) {
	var emitter *telemetry.ChatEventEmitter

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), telemetry.EventChatCreated, telemetry.ChatEventPayload{ChatID: "chat-1"})
	})
}
