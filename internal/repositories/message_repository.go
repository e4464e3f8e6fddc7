package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"support-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the append-only message store.
type MessageRepository interface {
	Append(ctx context.Context, msg models.Message) error
	ListForChat(ctx context.Context, chatID string, after *time.Time, limit int64) ([]models.Message, error)
	LastMessage(ctx context.Context, chatID string) (models.Message, error)
}

// MessageRepo is the Mongo implementation of MessageRepository.
type MessageRepo struct {
	coll *mongo.Collection
}

// NewMessageRepo constructs a MessageRepo over the chat_messages collection.
func NewMessageRepo(mdb *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: mdb.Collection("chat_messages")}
}

// Append inserts an immutable message, assigning its id when unset.
func (r *MessageRepo) Append(ctx context.Context, msg models.Message) error {
	_, err := r.coll.InsertOne(ctx, withMessageID(msg))
	return err
}

// withMessageID fills in a generated id. An empty _id may not reach the
// collection twice, its unique index would reject the second insert.
func withMessageID(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg
}

// ListForChat returns messages ordered by timestamp ascending. A non-nil
// after bound hides everything before it (customer view after a reopen).
func (r *MessageRepo) ListForChat(ctx context.Context, chatID string, after *time.Time, limit int64) ([]models.Message, error) {
	filter := bson.M{"chat_id": chatID}
	if after != nil {
		filter["timestamp"] = bson.M{"$gte": *after}
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// LastMessage returns the most recent message of the chat.
func (r *MessageRepo) LastMessage(ctx context.Context, chatID string) (models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"chat_id": chatID}, opts).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
