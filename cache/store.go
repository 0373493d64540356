// Package cache holds the per-domain resource stores that sit between the
// views and the remote backend.
//
// A Store keeps an ordered collection of one entity type together with the
// time it was last synchronized. Reads are served from memory until the
// collection is invalidated, ends with the session, or is explicitly forced.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entity is a record with a stable identifier, unique within its domain.
type Entity interface {
	EntityID() string
}

// Params scopes a list fetch, e.g. {"vigil_id": "u-1"}.
type Params map[string]string

// Gateway performs the network calls for one domain.
type Gateway[T Entity] interface {
	FetchList(ctx context.Context, params Params) ([]T, error)
	FetchDetail(ctx context.Context, id string) (T, error)
}

// Lifecycle delivers session-end notifications.
type Lifecycle interface {
	OnEnd(fn func(sessionID string)) (cancel func())
}

// Observer receives store events, usually to feed metrics.
type Observer interface {
	Hit(domain string)
	Miss(domain string)
	FetchError(domain string, err error)
	Discard(domain string)
}

// Store caches the collection of a single domain for a single session.
type Store[T Entity] struct {
	domain   string
	gateway  Gateway[T]
	params   Params
	maxAge   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	observer Observer
	detach   func()

	mu       sync.Mutex
	coll     collection[T]
	syncedAt time.Time
	// epoch changes on every local mutation that must not be overwritten by
	// a fetch started before it; generation changes only on session end.
	epoch      uint64
	generation uint64
}

// Option configures a Store.
type Option func(*options)

type options struct {
	maxAge    time.Duration
	now       func() time.Time
	logger    zerolog.Logger
	observer  Observer
	lifecycle Lifecycle
	sessionID string
}

// WithMaxAge makes Read refetch once the collection is older than d.
// Zero keeps the collection until it is invalidated or forced.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver attaches an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLifecycle subscribes the store to the end of sessionID: when it fires
// the store clears itself.
func WithLifecycle(l Lifecycle, sessionID string) Option {
	return func(o *options) {
		o.lifecycle = l
		o.sessionID = sessionID
	}
}

// New builds a store for domain backed by gw. params scope every list fetch.
func New[T Entity](domain string, gw Gateway[T], params Params, opts ...Option) *Store[T] {
	o := options{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		domain:   domain,
		gateway:  gw,
		params:   params,
		maxAge:   o.maxAge,
		now:      o.now,
		logger:   o.logger.With().Str("domain", domain).Logger(),
		observer: o.observer,
		coll:     newCollection[T](nil),
	}
	if o.lifecycle != nil {
		sessionID := o.sessionID
		s.detach = o.lifecycle.OnEnd(func(ended string) {
			if ended == sessionID {
				s.OnSessionEnd()
			}
		})
	}
	return s
}

// Domain returns the store's domain name.
func (s *Store[T]) Domain() string {
	return s.domain
}

// Read returns the collection. It calls the gateway when force is set, when
// the collection was never synchronized, or when it is older than the
// configured max age; otherwise it serves the held collection.
//
// On failure the held collection is left untouched; Snapshot still returns
// the last known good data.
func (s *Store[T]) Read(ctx context.Context, force bool) ([]T, error) {
	s.mu.Lock()
	if !force && !s.staleLocked() {
		out := s.coll.snapshot()
		s.mu.Unlock()
		s.hit()
		return out, nil
	}
	epoch, generation := s.epoch, s.generation
	s.mu.Unlock()

	s.miss()
	s.logger.Debug().Bool("force", force).Msg("fetching collection")

	items, err := s.gateway.FetchList(ctx, s.params)
	if err != nil {
		return nil, s.failed("list", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case generation != s.generation:
		s.discarded("list")
		return nil, ErrSessionEnded
	case epoch != s.epoch:
		// A remove or invalidate landed while the fetch was in flight.
		s.discarded("list")
		return s.coll.snapshot(), nil
	}
	s.coll = newCollection(items)
	s.syncedAt = s.now()
	return s.coll.snapshot(), nil
}

// ReadDetail returns the entity with id. A cached entity is returned as-is
// unless force is set; otherwise the gateway is asked for it and the result
// is merged into the collection.
func (s *Store[T]) ReadDetail(ctx context.Context, id string, force bool) (T, error) {
	var zero T

	s.mu.Lock()
	if !force {
		if e, ok := s.coll.get(id); ok {
			s.mu.Unlock()
			s.hit()
			return e, nil
		}
	}
	epoch, generation := s.epoch, s.generation
	s.mu.Unlock()

	s.miss()
	s.logger.Debug().Str("id", id).Bool("force", force).Msg("fetching detail")

	e, err := s.gateway.FetchDetail(ctx, id)
	if err != nil {
		return zero, s.failed("detail", err)
	}
	if e.EntityID() == "" {
		return zero, s.failed("detail", NotFound(id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case generation != s.generation:
		s.discarded("detail")
		return zero, ErrSessionEnded
	case epoch != s.epoch:
		s.discarded("detail")
		return e, nil
	}
	s.coll.merge(e)
	return e, nil
}

// Invalidate marks the collection as never synchronized. The held entities
// stay readable through Snapshot until the next Read replaces them.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	s.syncedAt = time.Time{}
	s.epoch++
	s.mu.Unlock()
}

// Remove drops the entity with id from the collection.
func (s *Store[T]) Remove(id string) {
	s.mu.Lock()
	s.coll.remove(id)
	s.epoch++
	s.mu.Unlock()
}

// OnSessionEnd empties the store. Calling it more than once, or on a store
// that was never read, is a no-op beyond the first clear.
func (s *Store[T]) OnSessionEnd() {
	s.mu.Lock()
	s.coll = newCollection[T](nil)
	s.syncedAt = time.Time{}
	s.epoch++
	s.generation++
	s.mu.Unlock()
	s.logger.Debug().Msg("store cleared on session end")
}

// Snapshot returns the held collection without any network call, stale or
// not.
func (s *Store[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.snapshot()
}

// Len returns the number of held entities.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coll.items)
}

// SyncedAt returns when the collection was last fully refreshed. The zero
// time means never.
func (s *Store[T]) SyncedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncedAt
}

// Close detaches the store from its lifecycle subscription.
func (s *Store[T]) Close() {
	if s.detach != nil {
		s.detach()
	}
}

func (s *Store[T]) staleLocked() bool {
	if s.syncedAt.IsZero() {
		return true
	}
	return s.maxAge > 0 && s.now().Sub(s.syncedAt) > s.maxAge
}

func (s *Store[T]) failed(op string, err error) error {
	err = classify(err)
	if s.observer != nil {
		s.observer.FetchError(s.domain, err)
	}
	s.logger.Warn().Err(err).Str("op", op).Msg("fetch failed")
	return err
}

func (s *Store[T]) discarded(op string) {
	if s.observer != nil {
		s.observer.Discard(s.domain)
	}
	s.logger.Debug().Str("op", op).Msg("discarding stale fetch result")
}

func (s *Store[T]) hit() {
	if s.observer != nil {
		s.observer.Hit(s.domain)
	}
}

func (s *Store[T]) miss() {
	if s.observer != nil {
		s.observer.Miss(s.domain)
	}
}
