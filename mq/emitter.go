package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionEnded is published when a session is terminated on any instance.
type SessionEnded struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// BookingChanged is published when a booking is created, cancelled or
// deleted. Origin names the publishing instance.
type BookingChanged struct {
	Origin     string    `json:"origin"`
	BookingID  string    `json:"booking_id"`
	ConsumerID string    `json:"consumer_id"`
	VigilID    string    `json:"vigil_id"`
	At         time.Time `json:"at"`
}

// Emit publishes content as JSON on channel.
func Emit(ctx context.Context, conn redis.UniversalClient, channel string, content any) error {
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", channel, err)
	}
	if err := conn.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", channel, err)
	}
	return nil
}

// Listen subscribes to channel and streams the decoded events until ctx is
// done. Payloads decode rejects are logged and skipped.
func Listen[V any](ctx context.Context, conn redis.UniversalClient, channel string, logger zerolog.Logger, decode func(payload string) (V, bool)) (<-chan V, error) {
	sub := conn.Subscribe(ctx, channel)
	// Receive confirms the subscription before we hand out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan V)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				v, ok := decode(msg.Payload)
				if !ok {
					logger.Warn().Str("channel", channel).Msg("dropping malformed event")
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ListenSessionEnds streams the IDs of sessions ended on any instance.
func ListenSessionEnds(ctx context.Context, conn redis.UniversalClient, channel string, logger zerolog.Logger) (<-chan string, error) {
	return Listen(ctx, conn, channel, logger, func(payload string) (string, bool) {
		evt, ok := DecodeSessionEnded(payload)
		return evt.SessionID, ok
	})
}

// ListenBookingChanges streams booking changes published on channel.
func ListenBookingChanges(ctx context.Context, conn redis.UniversalClient, channel string, logger zerolog.Logger) (<-chan BookingChanged, error) {
	return Listen(ctx, conn, channel, logger, DecodeBookingChanged)
}

func DecodeSessionEnded(payload string) (SessionEnded, bool) {
	var evt SessionEnded
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || evt.SessionID == "" {
		return SessionEnded{}, false
	}
	return evt, true
}

func DecodeBookingChanged(payload string) (BookingChanged, bool) {
	var evt BookingChanged
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || evt.BookingID == "" {
		return BookingChanged{}, false
	}
	return evt, true
}
