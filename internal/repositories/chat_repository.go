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

var (
	ErrChatNotFound = errors.New("chat not found")
	// ErrManagerConflict is returned when a claim races against an existing
	// assignment; exactly one concurrent claimer wins.
	ErrManagerConflict = errors.New("chat already taken by another manager")
	// ErrChatClosed is returned when a close races against another close;
	// exactly one concurrent closer performs the terminal transition.
	ErrChatClosed = errors.New("chat already closed")
)

// CloseOptions controls the terminal transition. By default the thread
// binding and the manager assignment are cleared; KeepTopic preserves the
// thread for a later reopen.
type CloseOptions struct {
	KeepTopic bool
}

// ChatRepository abstracts chat persistence. All writes are single-document
// atomic updates; claim relies on a conditional filter at the store layer.
type ChatRepository interface {
	CreateChat(ctx context.Context, userID int64) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetChatByTopic(ctx context.Context, topicID int) (models.Chat, error)
	LatestChatForUser(ctx context.Context, userID int64) (models.Chat, error)
	CloseChat(ctx context.Context, chatID string, opts CloseOptions) error
	AssignManager(ctx context.Context, chatID string, managerID int64) error
	ResetManager(ctx context.Context, chatID string) error
	SetManagerRequested(ctx context.Context, chatID string, topicID int) error
	ResetManagerRequested(ctx context.Context, chatID string) error
	ReopenChat(ctx context.Context, chatID string, reboundTopicID *int) error
	ReAIPending(ctx context.Context, chatID string) error
	ListActiveChats(ctx context.Context) ([]models.Chat, error)
}

// ChatRepo is the Mongo implementation of ChatRepository.
type ChatRepo struct {
	coll *mongo.Collection
}

// NewChatRepo constructs a ChatRepo over the chats collection.
func NewChatRepo(mdb *mongo.Database) *ChatRepo {
	return &ChatRepo{coll: mdb.Collection("chats")}
}

// CreateChat inserts a fresh ai_pending chat for the user.
func (r *ChatRepo) CreateChat(ctx context.Context, userID int64) (models.Chat, error) {
	chat := models.Chat{
		ChatID:    uuid.NewString(),
		UserID:    userID,
		Status:    models.StatusAIPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, chat); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	return r.findOne(ctx, bson.M{"chat_id": chatID}, nil)
}

func (r *ChatRepo) GetChatByTopic(ctx context.Context, topicID int) (models.Chat, error) {
	return r.findOne(ctx, bson.M{"topic_id": topicID}, nil)
}

// LatestChatForUser returns the most recently created chat of the user,
// regardless of status.
func (r *ChatRepo) LatestChatForUser(ctx context.Context, userID int64) (models.Chat, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findOne(ctx, bson.M{"user_id": userID}, opts)
}

// CloseChat stamps closed_at and clears the manager; the thread binding is
// cleared too unless opts.KeepTopic is set. The update only matches a chat
// that is not yet closed, so racing closers get ErrChatClosed.
func (r *ChatRepo) CloseChat(ctx context.Context, chatID string, opts CloseOptions) error {
	update := bson.M{
		"status":     models.StatusClosed,
		"closed_at":  time.Now().UTC(),
		"manager_id": nil,
	}
	if !opts.KeepTopic {
		update["topic_id"] = nil
	}
	filter := bson.M{
		"chat_id": chatID,
		"status":  bson.M{"$ne": models.StatusClosed},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetChat(ctx, chatID); err != nil {
			return err
		}
		return ErrChatClosed
	}
	return nil
}

// AssignManager binds the manager only when no manager is currently set.
// Losing racers get ErrManagerConflict.
func (r *ChatRepo) AssignManager(ctx context.Context, chatID string, managerID int64) error {
	filter := bson.M{
		"chat_id":    chatID,
		"manager_id": nil,
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"manager_id": managerID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetChat(ctx, chatID); err != nil {
			return err
		}
		return ErrManagerConflict
	}
	return nil
}

func (r *ChatRepo) ResetManager(ctx context.Context, chatID string) error {
	return r.updateOne(ctx, chatID, bson.M{"manager_id": nil})
}

// SetManagerRequested marks the escalation: operator requested, chat active,
// thread bound.
func (r *ChatRepo) SetManagerRequested(ctx context.Context, chatID string, topicID int) error {
	return r.updateOne(ctx, chatID, bson.M{
		"manager_requested": true,
		"status":            models.StatusActive,
		"topic_id":          topicID,
	})
}

func (r *ChatRepo) ResetManagerRequested(ctx context.Context, chatID string) error {
	return r.updateOne(ctx, chatID, bson.M{
		"manager_requested": false,
		"topic_id":          nil,
	})
}

// ReopenChat re-enters the active state. reopened_at defines the
// visible-history cutoff for the customer view. manager_requested is set only
// when a thread was successfully rebound.
func (r *ChatRepo) ReopenChat(ctx context.Context, chatID string, reboundTopicID *int) error {
	update := bson.M{
		"status":            models.StatusActive,
		"closed_at":         nil,
		"reopened_at":       time.Now().UTC(),
		"manager_requested": reboundTopicID != nil,
	}
	if reboundTopicID != nil {
		update["topic_id"] = *reboundTopicID
	} else {
		update["topic_id"] = nil
	}
	return r.updateOne(ctx, chatID, update)
}

// ReAIPending returns the chat to the generator-handled state, keeping any
// existing thread binding for a later escalation.
func (r *ChatRepo) ReAIPending(ctx context.Context, chatID string) error {
	return r.updateOne(ctx, chatID, bson.M{
		"status":            models.StatusAIPending,
		"closed_at":         nil,
		"reopened_at":       time.Now().UTC(),
		"manager_requested": false,
	})
}

func (r *ChatRepo) ListActiveChats(ctx context.Context) ([]models.Chat, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"status": models.StatusActive})
	if err != nil {
		return nil, err
	}
	var chats []models.Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *ChatRepo) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (models.Chat, error) {
	var chat models.Chat
	var err error
	if opts != nil {
		err = r.coll.FindOne(ctx, filter, opts).Decode(&chat)
	} else {
		err = r.coll.FindOne(ctx, filter).Decode(&chat)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

func (r *ChatRepo) updateOne(ctx context.Context, chatID string, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"chat_id": chatID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrChatNotFound
	}
	return nil
}
