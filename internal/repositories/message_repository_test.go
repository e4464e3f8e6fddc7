package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"support-chat-service/internal/models"
)

func marshaledID(t *testing.T, msg models.Message) string {
	t.Helper()
	raw, err := bson.Marshal(withMessageID(msg))
	require.NoError(t, err)
	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	id, ok := doc["_id"].(string)
	require.True(t, ok)
	return id
}

func TestWithMessageIDAssignsDistinctIDs(t *testing.T) {
	first := models.Message{ChatID: "chat-1", SenderID: "42", Text: "привет", Timestamp: time.Now().UTC()}
	second := models.Message{ChatID: "chat-1", SenderID: models.SenderAI, Text: "здравствуйте", Timestamp: time.Now().UTC()}

	firstID := marshaledID(t, first)
	secondID := marshaledID(t, second)

	assert.NotEmpty(t, firstID)
	assert.NotEmpty(t, secondID)
	assert.NotEqual(t, firstID, secondID)
}

func TestWithMessageIDKeepsProvidedID(t *testing.T) {
	msg := models.Message{ID: "fixed-id", ChatID: "chat-1", SenderID: "42"}

	assert.Equal(t, "fixed-id", withMessageID(msg).ID)
}
