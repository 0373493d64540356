package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/cache"
	"vigila/models"
)

func TestSelectSQL(t *testing.T) {
	s := schemaOf[models.Service]()

	query, args, err := selectSQL(s, "services", cache.Params{"vigilId": "u-1", "unit": "hour"})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id", "vigil_id", "name", "description", "unit_price", "unit", "active", "created_at" FROM "services"`+
		` WHERE "unit" = $1 AND "vigil_id" = $2 ORDER BY created_at, id`, query)
	assert.Equal(t, []any{"hour", "u-1"}, args)
}

func TestSelectSQLWithoutParams(t *testing.T) {
	query, args, err := selectSQL(schemaOf[models.Guest](), "guests", nil)
	require.NoError(t, err)

	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestSelectSQLRejectsUnknownField(t *testing.T) {
	_, _, err := selectSQL(schemaOf[models.Guest](), "guests", cache.Params{"1=1; DROP TABLE guests; --": "x"})

	assert.Error(t, err)
}

func TestUpdateSQL(t *testing.T) {
	s := schemaOf[models.Booking]()

	query, args, err := updateSQL(s, "bookings", "b-1", map[string]any{"status": "cancelled", "notes": "flu"})
	require.NoError(t, err)

	assert.Equal(t, `UPDATE "bookings" SET "notes" = $1, "status" = $2 WHERE id = $3`, query)
	assert.Equal(t, []any{"flu", "cancelled", "b-1"}, args)

	_, _, err = updateSQL(s, "bookings", "b-1", map[string]any{"id": "b-2"})
	assert.Error(t, err)
}

func TestIdentQuotesNames(t *testing.T) {
	assert.Equal(t, `"sales"`, ident("sales"))
	assert.Equal(t, `"we""ird"`, ident(`we"ird`))
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := OpenPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	table := "guests_test_" + time.Now().Format("150405")
	_, err = pool.Exec(ctx, `CREATE TABLE `+ident(table)+` (
		id TEXT PRIMARY KEY, host_id TEXT NOT NULL, name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '', phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '', notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL)`)
	require.NoError(t, err)
	defer func() { _, _ = pool.Exec(context.Background(), `DROP TABLE `+ident(table)) }()

	gw := NewPostgres[models.Guest](pool, table)
	require.NoError(t, gw.Insert(ctx, models.Guest{ID: "g-1", HostID: "u-1", Name: "Ola", CreatedAt: time.Now()}))

	items, err := gw.FetchList(ctx, cache.Params{"hostId": "u-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, gw.Update(ctx, "g-1", map[string]any{"phone": "555"}))
	g, err := gw.FetchDetail(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "555", g.Phone)

	require.NoError(t, gw.Delete(ctx, "g-1"))
	_, err = gw.FetchDetail(ctx, "g-1")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
