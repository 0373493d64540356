// Package workspace keeps the per-session set of domain stores.
package workspace

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/gateway"
	"vigila/models"
	"vigila/session"
)

// Domain names.
const (
	Bookings = "bookings"
	Services = "services"
	Sales    = "sales"
	Guests   = "guests"
)

// Gateways are the backends every workspace reads through.
type Gateways struct {
	Bookings cache.Gateway[models.Booking]
	Services cache.Gateway[models.Service]
	Sales    cache.Gateway[models.Sale]
	Guests   cache.Gateway[models.Guest]
}

// Workspace holds the stores of one session. A store is nil when the
// session's role has no access to its domain.
type Workspace struct {
	SessionID string
	UserID    string
	Role      session.Role
	ExpiresAt time.Time

	Bookings *cache.Store[models.Booking]
	Services *cache.Store[models.Service]
	Sales    *cache.Store[models.Sale]
	Guests   *cache.Store[models.Guest]
}

// Handle is the domain-independent view of a store.
type Handle interface {
	Domain() string
	Invalidate()
	SyncedAt() time.Time
	Len() int
}

// Handle returns the store of domain, or nil when the workspace has none.
func (w *Workspace) Handle(domain string) Handle {
	switch {
	case domain == Bookings && w.Bookings != nil:
		return w.Bookings
	case domain == Services && w.Services != nil:
		return w.Services
	case domain == Sales && w.Sales != nil:
		return w.Sales
	case domain == Guests && w.Guests != nil:
		return w.Guests
	}
	return nil
}

// Handles returns every store of the workspace.
func (w *Workspace) Handles() []Handle {
	var out []Handle
	for _, d := range []string{Bookings, Services, Sales, Guests} {
		if h := w.Handle(d); h != nil {
			out = append(out, h)
		}
	}
	return out
}

// InvalidateAll marks every store of w stale.
func (w *Workspace) InvalidateAll() {
	if w.Bookings != nil {
		w.Bookings.Invalidate()
	}
	if w.Services != nil {
		w.Services.Invalidate()
	}
	if w.Sales != nil {
		w.Sales.Invalidate()
	}
	if w.Guests != nil {
		w.Guests.Invalidate()
	}
}

func (w *Workspace) end() {
	if w.Bookings != nil {
		w.Bookings.OnSessionEnd()
		w.Bookings.Close()
	}
	if w.Services != nil {
		w.Services.OnSessionEnd()
		w.Services.Close()
	}
	if w.Sales != nil {
		w.Sales.OnSessionEnd()
		w.Sales.Close()
	}
	if w.Guests != nil {
		w.Guests.OnSessionEnd()
		w.Guests.Close()
	}
}

// DefaultRetention is how long an ended session stays refused when its
// expiry is unknown.
const DefaultRetention = 24 * time.Hour

// Registry creates workspaces lazily and drops them when their session
// ends. Ended sessions are remembered so a late request cannot bring their
// workspace back.
type Registry struct {
	gateways  Gateways
	lifecycle cache.Lifecycle
	opts      []cache.Option
	logger    zerolog.Logger
	detach    func()
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace
	ended  map[string]time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithStoreOptions applies opts to every store the registry creates.
func WithStoreOptions(opts ...cache.Option) Option {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// WithRetention sets how long an ended session is refused at least.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a registry subscribed to lifecycle.
func NewRegistry(gw Gateways, lifecycle cache.Lifecycle, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		gateways:  gw,
		lifecycle: lifecycle,
		logger:    logger.With().Str("pkg", "workspace").Logger(),
		retention: DefaultRetention,
		now:       time.Now,
		spaces:    make(map[string]*Workspace),
		ended:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	if lifecycle != nil {
		r.detach = lifecycle.OnEnd(r.Drop)
	}
	return r
}

// For returns the workspace of s, creating it on first use. It returns nil
// when s has ended or expired.
func (r *Registry) For(s *session.Session) *Workspace {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if until, ok := r.ended[s.ID]; ok {
		if now.Before(until) {
			return nil
		}
		delete(r.ended, s.ID)
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return nil
	}
	if w, ok := r.spaces[s.ID]; ok {
		if s.ExpiresAt.After(w.ExpiresAt) {
			w.ExpiresAt = s.ExpiresAt
		}
		return w
	}
	w := r.build(s)
	r.spaces[s.ID] = w
	r.logger.Debug().Str("session", s.ID).Str("role", string(s.Role)).Msg("workspace created")
	return w
}

// Ended reports whether sessionID was dropped and is still refused.
func (r *Registry) Ended(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.ended[sessionID]
	return ok && r.now().Before(until)
}

// Lookup returns the workspace of sessionID if one exists.
func (r *Registry) Lookup(sessionID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.spaces[sessionID]
	return w, ok
}

// Each calls fn for every live workspace.
func (r *Registry) Each(fn func(*Workspace)) {
	r.mu.Lock()
	spaces := make([]*Workspace, 0, len(r.spaces))
	for _, w := range r.spaces {
		spaces = append(spaces, w)
	}
	r.mu.Unlock()
	for _, w := range spaces {
		fn(w)
	}
}

// Drop clears and forgets the workspace of sessionID. For refuses the
// session afterwards until its expiry, or for the retention period when
// that is later.
func (r *Registry) Drop(sessionID string) {
	now := r.now()
	r.mu.Lock()
	w, ok := r.spaces[sessionID]
	delete(r.spaces, sessionID)
	until := now.Add(r.retention)
	if ok && w.ExpiresAt.After(until) {
		until = w.ExpiresAt
	}
	for id, t := range r.ended {
		if !now.Before(t) {
			delete(r.ended, id)
		}
	}
	r.ended[sessionID] = until
	r.mu.Unlock()
	if !ok {
		return
	}
	w.end()
	r.logger.Debug().Str("session", sessionID).Msg("workspace dropped")
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spaces)
}

// Close drops every workspace and unsubscribes from the lifecycle.
func (r *Registry) Close() {
	if r.detach != nil {
		r.detach()
	}
	r.mu.Lock()
	spaces := r.spaces
	r.spaces = make(map[string]*Workspace)
	r.mu.Unlock()
	for _, w := range spaces {
		w.end()
	}
}

func (r *Registry) build(s *session.Session) *Workspace {
	w := &Workspace{SessionID: s.ID, UserID: s.UserID, Role: s.Role, ExpiresAt: s.ExpiresAt}
	opts := append([]cache.Option{cache.WithLogger(r.logger)}, r.opts...)
	if r.lifecycle != nil {
		opts = append(opts, cache.WithLifecycle(r.lifecycle, s.ID))
	}

	switch s.Role {
	case session.RoleConsumer:
		w.Bookings = newStore(Bookings, r.gateways.Bookings, cache.Params{"consumerId": s.UserID}, opts)
	case session.RoleVigil:
		own := cache.Params{"vigilId": s.UserID}
		w.Bookings = newStore(Bookings, r.gateways.Bookings, own, opts)
		w.Services = newStore(Services, r.gateways.Services, own, opts)
		w.Sales = newStore(Sales, r.gateways.Sales, own, opts)
		w.Guests = newStore(Guests, r.gateways.Guests, cache.Params{"hostId": s.UserID}, opts)
	case session.RoleAdmin:
		w.Bookings = newStore(Bookings, r.gateways.Bookings, nil, opts)
		w.Services = newStore(Services, r.gateways.Services, nil, opts)
		w.Sales = newStore(Sales, r.gateways.Sales, nil, opts)
		w.Guests = newStore(Guests, r.gateways.Guests, nil, opts)
	}
	return w
}

// newStore scopes both list and detail fetches of gw to params.
func newStore[T cache.Entity](domain string, gw cache.Gateway[T], params cache.Params, opts []cache.Option) *cache.Store[T] {
	return cache.New(domain, gateway.Scope(gw, params), params, opts...)
}
