// Package backplane shares booking updates between instances over Redis pub/sub.
package backplane

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"barber-booking-api/internal/model"
)

const DefaultChannel = "booking_updates"

type Redis struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedis(rdb *redis.Client, channel string, log *zap.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{rdb: rdb, channel: channel, log: log}
}

func (b *Redis) Publish(ctx context.Context, u model.BookingUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Start subscribes and hands every update to sink until ctx ends. It returns
// once the subscription is confirmed.
func (b *Redis) Start(ctx context.Context, sink func(model.BookingUpdate) int) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info("backplane subscribed", zap.String("channel", b.channel))

	go b.listen(ctx, ps, sink)
	return nil
}

func (b *Redis) listen(ctx context.Context, ps *redis.PubSub, sink func(model.BookingUpdate) int) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("backplane stopping")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var u model.BookingUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				b.log.Warn("backplane bad payload", zap.Error(err))
				continue
			}
			sink(u)
		}
	}
}
