package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"vigila/cache"
	"vigila/db"
	"vigila/models"
)

func TestMongoFilter(t *testing.T) {
	s := schemaOf[models.Booking]()

	filter, err := mongoFilter(s, cache.Params{"vigilId": "u-1", "consumerId": "u-2"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "consumerId", Value: "u-2"}, {Key: "vigilId", Value: "u-1"}}, filter)

	_, err = mongoFilter(s, cache.Params{"$where": "1"})
	assert.Error(t, err)
}

func TestMongoSet(t *testing.T) {
	s := schemaOf[models.Booking]()

	set, err := mongoSet(s, map[string]any{"status": models.BookingCancelled})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "status", Value: "cancelled"}}, set)

	_, err = mongoSet(s, map[string]any{"id": "x"})
	assert.Error(t, err)
	_, err = mongoSet(s, nil)
	assert.Error(t, err)
}

func TestMongoRoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := db.Connect(ctx, uri, "vigila_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer func() {
		_ = store.DB.Drop(context.Background())
		_ = store.Close(context.Background())
	}()

	gw := NewMongo[models.Guest](store.GuestsCollection)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, gw.Insert(ctx, models.Guest{ID: "g-1", HostID: "u-1", Name: "Ola", CreatedAt: now}))
	require.NoError(t, gw.Insert(ctx, models.Guest{ID: "g-2", HostID: "u-2", Name: "Kim", CreatedAt: now}))

	items, err := gw.FetchList(ctx, cache.Params{"hostId": "u-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "g-1", items[0].ID)

	require.NoError(t, gw.Update(ctx, "g-1", map[string]any{"notes": "allergic to cats"}))
	g, err := gw.FetchDetail(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "allergic to cats", g.Notes)

	require.NoError(t, gw.Delete(ctx, "g-1"))
	_, err = gw.FetchDetail(ctx, "g-1")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.ErrorIs(t, gw.Delete(ctx, "g-1"), cache.ErrNotFound)
}
