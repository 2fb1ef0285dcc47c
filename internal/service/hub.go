package service

import (
	"context"
	"sync"

	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/events"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/statestore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Hub is the one ecommerce state service per process. It owns the state
// store, the signal bus and the per-key write locks; Store handles opened
// from it share all three.
type Hub struct {
	states statestore.StateStore
	bus    *events.Bus
	log    *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*keyLock

	sfg singleflight.Group // coalesces initial loads of the same key
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewHub(states statestore.StateStore, bus *events.Bus, log *zap.Logger) *Hub {
	return &Hub{
		states: states,
		bus:    bus,
		log:    logger.OrNop(log),
		locks:  make(map[string]*keyLock),
	}
}

func (h *Hub) Bus() *events.Bus {
	return h.bus
}

// Open returns a new handle on the state stored under key and loads its
// current snapshot. Close the handle when done.
func (h *Hub) Open(ctx context.Context, key string) *Store {
	s := &Store{hub: h, key: key, view: domain.EmptyState()}
	s.sub = h.bus.Subscribe(key, s.onSignal)
	t := s.begin()
	s.commit(t, h.load(ctx, key))
	return s
}

// mutate serializes read-modify-write cycles on key inside this process.
// Across processes the last Persist wins.
func (h *Hub) mutate(ctx context.Context, key string, fn func(domain.State) domain.State) domain.State {
	unlock := h.lock(key)
	defer unlock()

	next := fn(h.states.Load(ctx, key)).Normalize()
	if err := h.states.Persist(ctx, key, next); err != nil {
		h.log.Warn("state persist failed", zap.String("key", key), zap.Error(err))
	}
	// an Open starting after this write must not join a read from before it
	h.sfg.Forget(key)
	return next
}

func (h *Hub) lock(key string) func() {
	h.locksMu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &keyLock{}
		h.locks[key] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, key)
		}
		h.locksMu.Unlock()
	}
}

// load reads the snapshot, sharing one backend read among handles opened at
// the same time. Signal re-syncs bypass it and always read fresh. The shared
// read ignores the first caller's cancellation since other openers wait on it.
func (h *Hub) load(ctx context.Context, key string) domain.State {
	shared := context.WithoutCancel(ctx)
	v, _, _ := h.sfg.Do(key, func() (interface{}, error) {
		return h.states.Load(shared, key), nil
	})
	return v.(domain.State)
}
