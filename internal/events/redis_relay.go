package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/webdash/storefront/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultRelayChannel = "storefront:signals"
	relayCloseTimeout   = 5 * time.Second
)

type relayMessage struct {
	Origin string `json:"origin"`
	Signal
}

// RedisRelay mirrors signals between processes over Redis pub/sub. A process
// never re-delivers its own signals, which matches how a browser storage
// event only fires in the other tabs.
type RedisRelay struct {
	client  *redis.Client
	bus     *Bus
	channel string
	origin  string
	log     *zap.Logger

	mu       sync.Mutex
	cancelFn context.CancelFunc
	doneCh   chan struct{}
	ready    chan struct{}
}

func NewRedisRelay(client *redis.Client, bus *Bus, channel string, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		bus:     bus,
		channel: channel,
		origin:  uuid.NewString(),
		log:     logger.OrNop(log),
		doneCh:  make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

func (r *RedisRelay) Forward(ctx context.Context, sig Signal) error {
	data, err := json.Marshal(relayMessage{Origin: r.origin, Signal: sig})
	if err != nil {
		return fmt.Errorf("marshal signal failed: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and delivers foreign signals to the local bus until ctx is
// cancelled or Close is called. It blocks.
func (r *RedisRelay) Run(ctx context.Context) error {
	defer close(r.doneCh)

	subCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelFn = cancel
	r.mu.Unlock()
	defer cancel()

	pubsub := r.client.Subscribe(subCtx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	close(r.ready)
	r.log.Info("signal relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				r.log.Warn("signal relay channel closed")
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Error("failed to unmarshal relayed signal", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			r.bus.Deliver(subCtx, m.Signal)
		}
	}
}

// Close stops Run and waits briefly for it to exit.
func (r *RedisRelay) Close() {
	r.mu.Lock()
	cancelFn := r.cancelFn
	r.mu.Unlock()
	if cancelFn == nil {
		return
	}
	cancelFn()
	select {
	case <-r.doneCh:
	case <-time.After(relayCloseTimeout):
		r.log.Warn("timeout waiting for signal relay to stop")
	}
}
