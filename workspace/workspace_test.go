package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/cache"
	"vigila/models"
	"vigila/session"
)

type memGateway[T cache.Entity] struct {
	mu     sync.Mutex
	items  []T
	params []cache.Params
}

func (g *memGateway[T]) FetchList(_ context.Context, p cache.Params) ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = append(g.params, p)
	return append([]T(nil), g.items...), nil
}

func (g *memGateway[T]) FetchDetail(_ context.Context, id string) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.items {
		if e.EntityID() == id {
			return e, nil
		}
	}
	var zero T
	return zero, cache.NotFound(id)
}

type fixture struct {
	now      time.Time
	manager  *session.Manager
	registry *Registry
	bookings *memGateway[models.Booking]
	sales    *memGateway[models.Sale]
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		now: time.Now(),
		bookings: &memGateway[models.Booking]{items: []models.Booking{
			{ID: "b-1", ConsumerID: "c-1", VigilID: "v-1"},
			{ID: "b-2", ConsumerID: "c-2", VigilID: "v-1"},
		}},
		sales: &memGateway[models.Sale]{items: []models.Sale{{ID: "s-1", VigilID: "v-1"}}},
	}
	clock := func() time.Time { return f.now }
	f.manager = session.NewManager([]byte("secret"), time.Hour, session.NewMemoryRegistry(), zerolog.Nop(), session.WithClock(clock))
	f.registry = NewRegistry(Gateways{
		Bookings: f.bookings,
		Services: &memGateway[models.Service]{},
		Sales:    f.sales,
		Guests:   &memGateway[models.Guest]{},
	}, f.manager, zerolog.Nop(), append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(f.registry.Close)
	return f
}

func (f *fixture) login(t *testing.T, userID, role string) *session.Session {
	t.Helper()
	_, s, err := f.manager.Issue(context.Background(), models.User{UserID: userID, Role: role})
	require.NoError(t, err)
	return &s
}

func TestForScopesByRole(t *testing.T) {
	f := newFixture(t)
	consumer := f.registry.For(f.login(t, "c-1", "consumer"))
	vigil := f.registry.For(f.login(t, "v-1", "vigil"))
	admin := f.registry.For(f.login(t, "a-1", "admin"))

	require.NotNil(t, consumer.Bookings)
	assert.Nil(t, consumer.Sales)
	assert.Nil(t, consumer.Services)
	assert.Nil(t, consumer.Guests)
	assert.NotNil(t, vigil.Sales)
	assert.NotNil(t, vigil.Guests)
	assert.NotNil(t, admin.Services)

	_, err := consumer.Bookings.Read(context.Background(), false)
	require.NoError(t, err)
	_, err = vigil.Bookings.Read(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []cache.Params{{"consumerId": "c-1"}, {"vigilId": "v-1"}}, f.bookings.params)
}

func TestForReusesWorkspace(t *testing.T) {
	f := newFixture(t)
	s := f.login(t, "v-1", "vigil")

	assert.Same(t, f.registry.For(s), f.registry.For(s))
	assert.Equal(t, 1, f.registry.Len())
}

func TestConsumerCannotReadForeignBooking(t *testing.T) {
	f := newFixture(t)
	w := f.registry.For(f.login(t, "c-1", "consumer"))

	_, err := w.Bookings.ReadDetail(context.Background(), "b-2", false)

	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Empty(t, w.Bookings.Snapshot())
}

func TestSessionEndDropsWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, "v-1", "vigil")
	other := f.login(t, "v-1", "vigil")
	w := f.registry.For(s)
	kept := f.registry.For(other)
	_, err := w.Sales.Read(ctx, false)
	require.NoError(t, err)
	_, err = kept.Sales.Read(ctx, false)
	require.NoError(t, err)

	require.NoError(t, f.manager.End(ctx, s.ID))

	_, ok := f.registry.Lookup(s.ID)
	assert.False(t, ok)
	assert.Empty(t, w.Sales.Snapshot())
	assert.True(t, w.Sales.SyncedAt().IsZero())
	assert.Len(t, kept.Sales.Snapshot(), 1)
	assert.Equal(t, 1, f.registry.Len())
}

func TestForRefusesEndedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, "v-1", "vigil")
	require.NotNil(t, f.registry.For(s))

	require.NoError(t, f.manager.End(ctx, s.ID))

	assert.Nil(t, f.registry.For(s))
	assert.True(t, f.registry.Ended(s.ID))
	assert.Equal(t, 0, f.registry.Len())

	never := f.login(t, "c-1", "consumer")
	require.NoError(t, f.manager.End(ctx, never.ID))
	assert.Nil(t, f.registry.For(never))
}

func TestEndedSessionIsForgottenAfterExpiry(t *testing.T) {
	f := newFixture(t, WithRetention(time.Minute))
	s := f.login(t, "v-1", "vigil")
	f.registry.For(s)
	require.NoError(t, f.manager.End(context.Background(), s.ID))

	f.now = f.now.Add(30 * time.Minute)
	assert.True(t, f.registry.Ended(s.ID))

	f.now = f.now.Add(time.Hour)
	assert.False(t, f.registry.Ended(s.ID))
	assert.Nil(t, f.registry.For(s))
}

func TestForRefusesExpiredSession(t *testing.T) {
	f := newFixture(t)
	s := f.login(t, "v-1", "vigil")

	f.now = f.now.Add(2 * time.Hour)

	assert.Nil(t, f.registry.For(s))
	assert.Equal(t, 0, f.registry.Len())
}

func TestExpiredSessionDropsWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, "v-1", "vigil")
	w := f.registry.For(s)
	_, err := w.Sales.Read(ctx, false)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	assert.Equal(t, []string{s.ID}, f.manager.Reap(ctx))

	_, ok := f.registry.Lookup(s.ID)
	assert.False(t, ok)
	assert.Empty(t, w.Sales.Snapshot())
	assert.Nil(t, f.registry.For(s))
}

func TestRefreshExtendsWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.login(t, "v-1", "vigil")
	w := f.registry.For(s)

	f.now = f.now.Add(50 * time.Minute)
	_, refreshed, err := f.manager.Refresh(ctx, *s)
	require.NoError(t, err)
	assert.Same(t, w, f.registry.For(&refreshed))
	assert.Equal(t, refreshed.ExpiresAt, w.ExpiresAt)

	f.now = f.now.Add(50 * time.Minute)
	assert.Empty(t, f.manager.Reap(ctx))
	assert.Same(t, w, f.registry.For(&refreshed))
}

func TestInvalidateAll(t *testing.T) {
	f := newFixture(t)
	w := f.registry.For(f.login(t, "v-1", "vigil"))
	_, err := w.Sales.Read(context.Background(), false)
	require.NoError(t, err)

	w.InvalidateAll()

	assert.True(t, w.Sales.SyncedAt().IsZero())
	assert.Len(t, w.Sales.Snapshot(), 1)
}

func TestEach(t *testing.T) {
	f := newFixture(t)
	f.registry.For(f.login(t, "v-1", "vigil"))
	f.registry.For(f.login(t, "c-1", "consumer"))

	var roles []session.Role
	f.registry.Each(func(w *Workspace) { roles = append(roles, w.Role) })

	assert.ElementsMatch(t, []session.Role{session.RoleVigil, session.RoleConsumer}, roles)
}
