package events

import (
	"context"
	"sync"

	"github.com/webdash/storefront/internal/logger"
	"go.uber.org/zap"
)

type Topic string

const (
	CartUpdated     Topic = "ecommerce-cart-updated"
	WishlistUpdated Topic = "ecommerce-wishlist-updated"
)

// Signal addresses a change to the state stored under Key. It carries no
// payload: subscribers re-read the whole snapshot.
type Signal struct {
	Key   string `json:"key"`
	Topic Topic  `json:"topic"`
}

type Handler func(ctx context.Context, topic Topic)

// Relay forwards locally published signals to other processes.
type Relay interface {
	Forward(ctx context.Context, sig Signal) error
}

// Bus is the process-wide notification channel for state changes.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler // key -> subscription id -> handler
	relay  Relay
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]Handler),
		log:  logger.OrNop(log),
	}
}

// SetRelay attaches a cross-process relay. Call before serving traffic.
func (b *Bus) SetRelay(r Relay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = r
}

// Subscription is returned by Subscribe. Unsubscribe may be called any
// number of times.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscribe registers handler for every topic published under key.
func (b *Bus) Subscribe(key string, handler Handler) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]Handler)
	}
	b.subs[key][id] = handler
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[key], id)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}}
}

// Publish delivers sig to local subscribers before returning, then forwards
// it through the relay if one is attached.
func (b *Bus) Publish(ctx context.Context, sig Signal) {
	b.Deliver(ctx, sig)

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Forward(ctx, sig); err != nil {
		b.log.Warn("failed to relay signal",
			zap.String("key", sig.Key),
			zap.String("topic", string(sig.Topic)),
			zap.Error(err))
	}
}

// Deliver dispatches sig to local subscribers only.
func (b *Bus) Deliver(ctx context.Context, sig Signal) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[sig.Key]))
	for _, h := range b.subs[sig.Key] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, sig)
	}
}

// SubscriberCount returns the number of live subscriptions for key.
func (b *Bus) SubscriberCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

func (b *Bus) dispatch(ctx context.Context, h Handler, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("signal handler panicked",
				zap.String("key", sig.Key),
				zap.String("topic", string(sig.Topic)),
				zap.Any("panic", r))
		}
	}()
	h(ctx, sig.Topic)
}
