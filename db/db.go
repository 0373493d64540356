package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	Users    = "users"
	Bookings = "bookings"
	Services = "services"
	Sales    = "sales"
	Guests   = "guests"
)

// Store is an open database with the collections the app reads.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database

	UserCollection     *mongo.Collection
	BookingsCollection *mongo.Collection
	ServicesCollection *mongo.Collection
	SalesCollection    *mongo.Collection
	GuestsCollection   *mongo.Collection
}

// Connect opens uri, pings it and binds the collections of database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return Bind(client, name), nil
}

// Bind wraps an already connected client.
func Bind(client *mongo.Client, name string) *Store {
	database := client.Database(name)
	return &Store{
		Client:             client,
		DB:                 database,
		UserCollection:     database.Collection(Users),
		BookingsCollection: database.Collection(Bookings),
		ServicesCollection: database.Collection(Services),
		SalesCollection:    database.Collection(Sales),
		GuestsCollection:   database.Collection(Guests),
	}
}

// CreateIndexes makes the entity ids unique and indexes the owner fields
// list fetches filter on.
func (s *Store) CreateIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.UserCollection: {
			{Keys: bson.D{{Key: "userid", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		s.BookingsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "consumerId", Value: 1}}},
			{Keys: bson.D{{Key: "vigilId", Value: 1}}},
		},
		s.ServicesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "vigilId", Value: 1}}},
		},
		s.SalesCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "vigilId", Value: 1}}},
		},
		s.GuestsCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "hostId", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
