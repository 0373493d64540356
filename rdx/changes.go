package rdx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vigila/globals"
	"vigila/models"
	"vigila/mq"
)

// Changes relays booking changes between instances so every instance can
// mark the stores of the involved sessions stale.
type Changes struct {
	conn    redis.UniversalClient
	channel string
	origin  string
	logger  zerolog.Logger
}

func NewChanges(conn redis.UniversalClient, logger zerolog.Logger) *Changes {
	return &Changes{
		conn:    conn,
		channel: globals.BookingChangedChannel,
		origin:  uuid.NewString(),
		logger:  logger.With().Str("pkg", "rdx").Logger(),
	}
}

// Publish tells the other instances that b changed.
func (c *Changes) Publish(ctx context.Context, b models.Booking) error {
	return mq.Emit(ctx, c.conn, c.channel, mq.BookingChanged{
		Origin:     c.origin,
		BookingID:  b.ID,
		ConsumerID: b.ConsumerID,
		VigilID:    b.VigilID,
		At:         time.Now().UTC(),
	})
}

// Run calls apply for every change published by another instance until ctx
// is done.
func (c *Changes) Run(ctx context.Context, apply func(models.Booking)) error {
	changes, err := mq.ListenBookingChanges(ctx, c.conn, c.channel, c.logger)
	if err != nil {
		return err
	}
	for evt := range changes {
		if evt.Origin == c.origin {
			continue
		}
		c.logger.Debug().Str("booking", evt.BookingID).Msg("remote booking change")
		apply(models.Booking{ID: evt.BookingID, ConsumerID: evt.ConsumerID, VigilID: evt.VigilID})
	}
	return nil
}
