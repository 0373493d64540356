package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/cache"
	"vigila/models"
)

func TestSchemaOfBooking(t *testing.T) {
	s := schemaOf[models.Booking]()

	col, err := s.sqlColumn("vigilId")
	require.NoError(t, err)
	assert.Equal(t, "vigil_id", col)

	field, err := s.bsonField("consumerId")
	require.NoError(t, err)
	assert.Equal(t, "consumerId", field)

	_, err = s.sqlColumn("$where")
	assert.Error(t, err)

	assert.Same(t, s, schemaOf[models.Booking]())
	assert.Equal(t, "id", s.columns[0])
}

func TestSchemaRow(t *testing.T) {
	s := schemaOf[models.Guest]()

	row := s.row(models.Guest{ID: "g-1", HostID: "u-1", Name: "Ola"})

	assert.Equal(t, "g-1", row["id"])
	assert.Equal(t, "u-1", row["host_id"])
	assert.Equal(t, "Ola", row["name"])
	assert.Len(t, row, len(s.columns))
}

type slowBackend struct {
	Backend[models.Guest]
	deadline bool
}

func (b *slowBackend) FetchList(ctx context.Context, _ cache.Params) ([]models.Guest, error) {
	_, b.deadline = ctx.Deadline()
	<-ctx.Done()
	return nil, cache.Transport(ctx.Err())
}

func TestWithTimeout(t *testing.T) {
	inner := &slowBackend{}
	b := WithTimeout[models.Guest](inner, 20*time.Millisecond)

	_, err := b.FetchList(context.Background(), nil)

	assert.True(t, inner.deadline)
	assert.ErrorIs(t, err, cache.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	inner := &slowBackend{}

	assert.Same(t, Backend[models.Guest](inner), WithTimeout[models.Guest](inner, 0))
}
