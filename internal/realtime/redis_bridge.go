package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "civichub:issues:events"

var ErrRelayDown = errors.New("redis relay not subscribed")

// broker is the slice of redis the bridge needs.
type broker interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	// Subscribe returns once the subscription is confirmed.
	Subscribe(ctx context.Context, channel string) (subscription, error)
}

type subscription interface {
	Messages() <-chan *redis.Message
	Close() error
}

type redisBroker struct {
	rdb *redis.Client
}

func (r redisBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	return r.rdb.Publish(ctx, channel, msg).Err()
}

func (r redisBroker) Subscribe(ctx context.Context, channel string) (subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return redisSubscription{ps: ps}, nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s redisSubscription) Messages() <-chan *redis.Message { return s.ps.Channel() }
func (s redisSubscription) Close() error                    { return s.ps.Close() }

// RedisBridge shares one event stream between every API instance and the
// worker. Publish goes through Redis; Run relays what Redis delivers into the
// local hub, so an instance sees its own events exactly once. While the relay
// is not subscribed, Publish delivers to the local hub directly.
type RedisBridge struct {
	broker  broker
	hub     *Hub
	channel string
	log     *slog.Logger

	subscribed atomic.Bool

	retryMin time.Duration
	retryMax time.Duration
}

// NewRedisBridge accepts a nil hub for publish-only processes. An empty
// channel means DefaultChannel.
func NewRedisBridge(rdb *redis.Client, channel string, hub *Hub, log *slog.Logger) *RedisBridge {
	return newBridge(redisBroker{rdb: rdb}, channel, hub, log)
}

func newBridge(b broker, channel string, hub *Hub, log *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		broker:   b,
		hub:      hub,
		channel:  channel,
		log:      log,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

func (b *RedisBridge) Publish(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{Name: name, Data: data}

	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	// without a live relay our own message would never come back
	local := b.hub != nil && !b.subscribed.Load()
	if local {
		b.hub.Deliver(ev)
	}

	if err := b.broker.Publish(ctx, b.channel, msg); err != nil {
		if b.hub != nil && !local {
			b.hub.Deliver(ev)
		}
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribed reports whether the relay currently holds a confirmed
// subscription.
func (b *RedisBridge) Subscribed() bool {
	return b.subscribed.Load()
}

// Ready is a readiness check for processes that relay into a hub.
func (b *RedisBridge) Ready(context.Context) error {
	if b.hub != nil && !b.subscribed.Load() {
		return ErrRelayDown
	}
	return nil
}

// Run relays messages until ctx is done, resubscribing with backoff whenever
// the subscription fails or drops.
func (b *RedisBridge) Run(ctx context.Context) error {
	if b.hub == nil {
		return nil
	}

	delay := b.retryMin
	for {
		sub, err := b.broker.Subscribe(ctx, b.channel)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("realtime.subscribe_failed", "channel", b.channel, "retry_in", delay, "err", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			delay *= 2
			if delay > b.retryMax {
				delay = b.retryMax
			}
			continue
		}

		delay = b.retryMin
		b.subscribed.Store(true)
		b.log.Info("realtime.subscribed", "channel", b.channel)

		b.pump(ctx, sub.Messages())

		b.subscribed.Store(false)
		_ = sub.Close()

		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn("realtime.subscription_lost", "channel", b.channel)
	}
}

func (b *RedisBridge) pump(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(payload string) {
	ev, err := decodeEvent(payload)
	if err != nil {
		b.log.Warn("realtime.relay_decode_failed", "err", err)
		return
	}
	b.hub.Deliver(ev)
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.Name == "" {
		return Event{}, fmt.Errorf("event without name")
	}
	return ev, nil
}
