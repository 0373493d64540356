package rdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vigila/globals"
	"vigila/mq"
	"vigila/session"
)

const sessionKeyPrefix = "auth:session:"

// Registry stores live sessions in Redis and fans session ends out over
// Redis pub/sub.
type Registry struct {
	conn    redis.UniversalClient
	channel string
	logger  zerolog.Logger
}

// NewRegistry returns a session registry on conn.
func NewRegistry(conn redis.UniversalClient, logger zerolog.Logger) *Registry {
	return &Registry{
		conn:    conn,
		channel: globals.SessionEndedChannel,
		logger:  logger.With().Str("pkg", "rdx").Logger(),
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *Registry) Put(ctx context.Context, s session.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.conn.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (session.Session, bool, error) {
	data, err := r.conn.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("redis get session: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return session.Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, true, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.conn.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (r *Registry) PublishEnd(ctx context.Context, id string) error {
	return mq.Emit(ctx, r.conn, r.channel, mq.SessionEnded{SessionID: id, At: time.Now().UTC()})
}

func (r *Registry) SubscribeEnds(ctx context.Context) (<-chan string, error) {
	return mq.ListenSessionEnds(ctx, r.conn, r.channel, r.logger)
}
