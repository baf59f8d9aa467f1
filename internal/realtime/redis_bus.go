package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mathquest/internal/logger"
)

// RedisBus publishes updates on a Redis channel so every server instance
// sees them, and fans received messages out through a local Hub.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	hub     *Hub

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisBus connects to addr and starts forwarding channel messages to
// local subscribers
func NewRedisBus(ctx context.Context, log *logger.Logger, addr, channel string) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "mathquest-updates"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := &RedisBus{
		log:     log.With("service", "RedisBus"),
		rdb:     rdb,
		channel: channel,
		hub:     NewHub(),
		done:    make(chan struct{}),
	}
	if err := b.startForwarder(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return b, nil
}

func (b *RedisBus) startForwarder(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.cancel = cancel

	go func() {
		defer close(b.done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(m.Payload), &u); err != nil {
					b.log.Warn("bad redis update payload", "error", err)
					continue
				}
				b.hub.Dispatch(u)
			}
		}
	}()
	return nil
}

// Publish sends u to every instance, including this one
func (b *RedisBus) Publish(ctx context.Context, u Update) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe registers a local subscriber
func (b *RedisBus) Subscribe(topic string, onUpdate func(Update)) func() {
	return b.hub.Subscribe(topic, onUpdate)
}

// Close stops the forwarder and closes the client
func (b *RedisBus) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		<-b.done
		err = b.rdb.Close()
	})
	return err
}
