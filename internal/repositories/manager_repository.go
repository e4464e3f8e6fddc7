package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"support-chat-service/internal/models"
)

// ManagerRepository is the operator set. Membership is the only fact stored.
type ManagerRepository interface {
	IsManager(ctx context.Context, userID int64) (bool, error)
	AddManager(ctx context.Context, userID int64, name string) error
	ListManagers(ctx context.Context) ([]models.Manager, error)
	CountManagers(ctx context.Context) (int64, error)
}

// ManagerRepo is the Mongo implementation of ManagerRepository.
type ManagerRepo struct {
	coll *mongo.Collection
}

// NewManagerRepo constructs a ManagerRepo over the managers collection.
func NewManagerRepo(mdb *mongo.Database) *ManagerRepo {
	return &ManagerRepo{coll: mdb.Collection("managers")}
}

func (r *ManagerRepo) IsManager(ctx context.Context, userID int64) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID})
	return count > 0, err
}

func (r *ManagerRepo) AddManager(ctx context.Context, userID int64, name string) error {
	_, err := r.coll.InsertOne(ctx, models.Manager{UserID: userID, Name: name})
	return err
}

func (r *ManagerRepo) ListManagers(ctx context.Context) ([]models.Manager, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var managers []models.Manager
	if err := cursor.All(ctx, &managers); err != nil {
		return nil, err
	}
	return managers, nil
}

func (r *ManagerRepo) CountManagers(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}
