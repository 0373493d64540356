package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vigila/cache"
)

// Mongo serves one domain from a Mongo collection. Entities are keyed by
// their "id" field.
type Mongo[T cache.Entity] struct {
	coll   *mongo.Collection
	schema *schema
}

// NewMongo returns a gateway over coll.
func NewMongo[T cache.Entity](coll *mongo.Collection) *Mongo[T] {
	return &Mongo[T]{coll: coll, schema: schemaOf[T]()}
}

func (m *Mongo[T]) FetchList(ctx context.Context, params cache.Params) ([]T, error) {
	filter, err := mongoFilter(m.schema, params)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}})
	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, cache.Transport(err)
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, cache.Transport(err)
	}
	return items, nil
}

func (m *Mongo[T]) FetchDetail(ctx context.Context, id string) (T, error) {
	var e T
	err := m.coll.FindOne(ctx, bson.M{"id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return e, cache.NotFound(id)
	}
	if err != nil {
		return e, cache.Transport(err)
	}
	return e, nil
}

func (m *Mongo[T]) Insert(ctx context.Context, e T) error {
	if _, err := m.coll.InsertOne(ctx, e); err != nil {
		return cache.Transport(err)
	}
	return nil
}

func (m *Mongo[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	set, err := mongoSet(m.schema, fields)
	if err != nil {
		return err
	}
	res, err := m.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return cache.Transport(err)
	}
	if res.MatchedCount == 0 {
		return cache.NotFound(id)
	}
	return nil
}

func (m *Mongo[T]) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return cache.Transport(err)
	}
	if res.DeletedCount == 0 {
		return cache.NotFound(id)
	}
	return nil
}

// mongoFilter turns params into an equality filter. Only fields of the
// entity are accepted so params can never smuggle in operators.
func mongoFilter(s *schema, params cache.Params) (bson.D, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filter := bson.D{}
	for _, k := range keys {
		field, err := s.bsonField(k)
		if err != nil {
			return nil, fmt.Errorf("mongo filter: %w", err)
		}
		filter = append(filter, bson.E{Key: field, Value: params[k]})
	}
	return filter, nil
}

func mongoSet(s *schema, fields map[string]any) (bson.D, error) {
	if len(fields) == 0 {
		return nil, errors.New("mongo update: no fields")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := bson.D{}
	for _, k := range keys {
		field, err := s.bsonField(k)
		if err != nil {
			return nil, fmt.Errorf("mongo update: %w", err)
		}
		if field == "id" {
			return nil, errors.New("mongo update: id is immutable")
		}
		set = append(set, bson.E{Key: field, Value: fields[k]})
	}
	return set, nil
}
