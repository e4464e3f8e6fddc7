package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"support-chat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository manages customer identities.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	FindOrCreateUser(ctx context.Context, userID int64, userName string) (models.User, error)
}

// UserRepo is the Mongo implementation of UserRepository.
type UserRepo struct {
	coll *mongo.Collection
}

// NewUserRepo constructs a UserRepo over the users collection.
func NewUserRepo(mdb *mongo.Database) *UserRepo {
	return &UserRepo{coll: mdb.Collection("users")}
}

func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// FindOrCreateUser creates the user on first contact and refreshes the
// display name when it changed.
func (r *UserRepo) FindOrCreateUser(ctx context.Context, userID int64, userName string) (models.User, error) {
	user, err := r.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		now := time.Now().UTC()
		if userName == "" {
			userName = fmt.Sprintf("User_%d", userID)
		}
		user = models.User{
			UserID:    userID,
			UserName:  userName,
			Language:  "rus",
			Currency:  "EUR",
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := r.coll.InsertOne(ctx, user); err != nil {
			return models.User{}, err
		}
		return user, nil
	}
	if err != nil {
		return models.User{}, err
	}

	if userName != "" && user.UserName != userName {
		now := time.Now().UTC()
		_, err := r.coll.UpdateOne(ctx, bson.M{"user_id": userID},
			bson.M{"$set": bson.M{"user_name": userName, "updated_at": now}})
		if err != nil {
			return models.User{}, err
		}
		user.UserName = userName
		user.UpdatedAt = now
	}
	return user, nil
}
