package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vigila/models"
)

// Registry keeps the set of live sessions and fans out session ends across
// instances.
type Registry interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) error
	PublishEnd(ctx context.Context, id string) error
	SubscribeEnds(ctx context.Context) (<-chan string, error)
}

// Claims are the JWT claims of an access token.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and resolves sessions and runs the end-of-session hooks.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	registry Registry
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	hooks    map[uint64]func(string)
	nextHook uint64
	expiries map[string]time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for issuing, parsing and reaping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager signing tokens with secret. Sessions live for
// ttl unless refreshed.
func NewManager(secret []byte, ttl time.Duration, registry Registry, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		secret:   secret,
		ttl:      ttl,
		registry: registry,
		logger:   logger.With().Str("pkg", "session").Logger(),
		now:      time.Now,
		hooks:    make(map[uint64]func(string)),
		expiries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue starts a session for user and returns its signed access token.
func (m *Manager) Issue(ctx context.Context, user models.User) (string, Session, error) {
	role := Role(user.Role)
	if !role.Valid() {
		return "", Session{}, fmt.Errorf("issue session: unknown role %q", user.Role)
	}
	s := Session{
		ID:        uuid.NewString(),
		UserID:    user.UserID,
		Username:  user.Username,
		Role:      role,
		ExpiresAt: m.now().Add(m.ttl),
	}
	token, err := m.store(ctx, s)
	if err != nil {
		return "", Session{}, err
	}
	m.logger.Info().Str("session", s.ID).Str("user", s.UserID).Str("role", string(s.Role)).Msg("session started")
	return token, s, nil
}

// Refresh extends s and returns a new token for the same session ID.
func (m *Manager) Refresh(ctx context.Context, s Session) (string, Session, error) {
	if _, ok, err := m.registry.Get(ctx, s.ID); err != nil {
		return "", Session{}, fmt.Errorf("refresh session: %w", err)
	} else if !ok {
		return "", Session{}, ErrNoSession
	}
	s.ExpiresAt = m.now().Add(m.ttl)
	token, err := m.store(ctx, s)
	if err != nil {
		return "", Session{}, err
	}
	return token, s, nil
}

func (m *Manager) store(ctx context.Context, s Session) (string, error) {
	claims := &Claims{
		SessionID: s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			Subject:   s.UserID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := m.registry.Put(ctx, s, m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	m.track(s)
	return token, nil
}

func (m *Manager) track(s Session) {
	if s.ExpiresAt.IsZero() {
		return
	}
	m.mu.Lock()
	m.expiries[s.ID] = s.ExpiresAt
	m.mu.Unlock()
}

// Parse validates token and returns its claims.
func (m *Manager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return claims, nil
}

// Resolve returns the live session behind token. A valid token whose
// session has ended resolves to ErrNoSession.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := m.Parse(token)
	if err != nil {
		return nil, err
	}
	s, ok, err := m.registry.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	m.track(s)
	return &s, nil
}

// Current returns the session of the request carried by ctx, resolving the
// bearer token lazily when no session was attached yet. It returns nil when
// the caller is anonymous or the token does not resolve.
func (m *Manager) Current(ctx context.Context) *Session {
	if s := FromContext(ctx); s != nil {
		return s
	}
	token := TokenFromContext(ctx)
	if token == "" {
		return nil
	}
	s, err := m.Resolve(ctx, token)
	if err != nil {
		m.logger.Debug().Err(err).Msg("session not resolved")
		return nil
	}
	return s
}

// End terminates session id, runs the local hooks and tells the other
// instances.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.registry.Delete(ctx, id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	m.fire(id)
	if err := m.registry.PublishEnd(ctx, id); err != nil {
		m.logger.Warn().Err(err).Str("session", id).Msg("failed to publish session end")
	}
	m.logger.Info().Str("session", id).Msg("session ended")
	return nil
}

// OnEnd registers fn to run with the ID of every session that ends. The
// returned func unregisters it.
func (m *Manager) OnEnd(fn func(sessionID string)) (cancel func()) {
	m.mu.Lock()
	id := m.nextHook
	m.nextHook++
	m.hooks[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.hooks, id)
		m.mu.Unlock()
	}
}

// Listen runs the hooks for sessions ended on other instances until ctx is
// done.
func (m *Manager) Listen(ctx context.Context) error {
	ends, err := m.registry.SubscribeEnds(ctx)
	if err != nil {
		return fmt.Errorf("subscribe session ends: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ends:
			if !ok {
				return nil
			}
			m.fire(id)
		}
	}
}

// Reap ends every session seen by this instance whose expiry has passed and
// returns their IDs. A session refreshed meanwhile is kept.
func (m *Manager) Reap(ctx context.Context) []string {
	now := m.now()
	m.mu.Lock()
	var due []string
	for id, at := range m.expiries {
		if now.After(at) {
			due = append(due, id)
		}
	}
	m.mu.Unlock()

	var reaped []string
	for _, id := range due {
		s, ok, err := m.registry.Get(ctx, id)
		if err != nil {
			m.logger.Warn().Err(err).Str("session", id).Msg("failed to check expired session")
			continue
		}
		if ok && s.ExpiresAt.After(now) {
			m.track(s)
			continue
		}
		if ok {
			if err := m.registry.Delete(ctx, id); err != nil {
				m.logger.Warn().Err(err).Str("session", id).Msg("failed to delete expired session")
			}
		}
		m.fire(id)
		m.logger.Info().Str("session", id).Msg("session expired")
		reaped = append(reaped, id)
	}
	return reaped
}

// RunReaper calls Reap every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

func (m *Manager) fire(id string) {
	m.mu.Lock()
	delete(m.expiries, id)
	hooks := make([]func(string), 0, len(m.hooks))
	for _, fn := range m.hooks {
		hooks = append(hooks, fn)
	}
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
}
