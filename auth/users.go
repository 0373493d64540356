package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vigila/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Users is the account store.
type Users interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Create(ctx context.Context, u models.User) error
	TouchLogin(ctx context.Context, userID string, at time.Time) error
}

// MongoUsers keeps accounts in the users collection.
type MongoUsers struct {
	coll *mongo.Collection
}

func NewMongoUsers(coll *mongo.Collection) *MongoUsers {
	return &MongoUsers{coll: coll}
}

func (m *MongoUsers) FindByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := m.coll.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return u, ErrUserNotFound
	}
	if err != nil {
		return u, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (m *MongoUsers) Create(ctx context.Context, u models.User) error {
	_, err := m.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MongoUsers) TouchLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := m.coll.UpdateOne(ctx, bson.M{"userid": userID}, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
