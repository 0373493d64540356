package sales

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/cache"
	"vigila/models"
	"vigila/session"
	"vigila/workspace"
)

type memSales []models.Sale

func (m memSales) FetchList(_ context.Context, p cache.Params) ([]models.Sale, error) {
	out := []models.Sale{}
	for _, s := range m {
		if s.VigilID == p["vigilId"] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSales) FetchDetail(_ context.Context, id string) (models.Sale, error) {
	for _, s := range m {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Sale{}, cache.NotFound(id)
}

type none[T cache.Entity] struct{}

func (none[T]) FetchList(context.Context, cache.Params) ([]T, error) { return []T{}, nil }

func (none[T]) FetchDetail(_ context.Context, id string) (T, error) {
	var zero T
	return zero, cache.NotFound(id)
}

var vigil = &session.Session{ID: "s-v", UserID: "v-1", Username: "anna", Role: session.RoleVigil}

func newHandler(t *testing.T) *Handler {
	t.Helper()
	spaces := workspace.NewRegistry(workspace.Gateways{
		Bookings: none[models.Booking]{},
		Services: none[models.Service]{},
		Sales: memSales{
			{ID: "sa-1", VigilID: "v-1", BookingID: "b-1", Amount: 100, Fee: 12.5, Currency: "NOK", Status: "paid", PaidAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
			{ID: "sa-2", VigilID: "v-2", BookingID: "b-7", Amount: 40, Status: "pending"},
		},
		Guests: none[models.Guest]{},
	}, nil, zerolog.Nop())
	return NewHandler(spaces, nil, zerolog.Nop())
}

func get(h httprouter.Handle, s *session.Session, target, id string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if s != nil {
		r = r.WithContext(session.WithSession(r.Context(), s))
	}
	rec := httptest.NewRecorder()
	h(rec, r, httprouter.Params{{Key: "id", Value: id}})
	return rec
}

func TestListOnlyOwnSales(t *testing.T) {
	h := newHandler(t)

	rec := get(h.List, vigil, "/sales", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.Contains(t, rec.Body.String(), "sa-1")
}

func TestReceipt(t *testing.T) {
	h := newHandler(t)

	rec := get(h.Receipt, vigil, "/sales/sa-1/receipt", "sa-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = get(h.Receipt, vigil, "/sales/sa-2/receipt", "sa-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	consumer := &session.Session{ID: "s-c", UserID: "c-1", Role: session.RoleConsumer}
	rec = get(h.Receipt, consumer, "/sales/sa-1/receipt", "sa-1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "87.50 NOK", money(87.5, "NOK"))
	assert.Equal(t, "-2.00 EUR", money(-2, ""))
}
