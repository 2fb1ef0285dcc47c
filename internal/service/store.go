package service

import (
	"context"
	"sync"

	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/events"
)

// Store is one consumer's handle on a shared ecommerce state. Many handles
// may be open on the same key; every mutation starts from the latest
// persisted snapshot and every handle re-reads the snapshot on each signal.
type Store struct {
	hub *Hub
	key string
	sub *events.Subscription

	mu      sync.RWMutex
	view    domain.State
	ticket  uint64 // bumped before every read of the backend
	applied uint64 // ticket of the read currently in view
}

func (s *Store) Key() string {
	return s.key
}

// Close detaches the handle from the bus. Safe to call more than once.
func (s *Store) Close() {
	s.sub.Unsubscribe()
}

// Refresh re-reads the persisted snapshot into the handle's view.
func (s *Store) Refresh(ctx context.Context) {
	t := s.begin()
	s.commit(t, s.hub.states.Load(ctx, s.key))
}

func (s *Store) onSignal(ctx context.Context, _ events.Topic) {
	s.Refresh(ctx)
}

// begin hands out a ticket before a backend read. A read that starts later
// observes newer data, so commit keeps the result with the highest ticket
// no matter in which order the reads finish.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket++
	return s.ticket
}

func (s *Store) commit(ticket uint64, state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket > s.applied {
		s.view = state
		s.applied = ticket
	}
}

// apply persists fn's result and only then announces it.
func (s *Store) apply(ctx context.Context, topic events.Topic, fn func(domain.State) domain.State) {
	t := s.begin()
	s.commit(t, s.hub.mutate(ctx, s.key, fn))
	s.hub.bus.Publish(ctx, events.Signal{Key: s.key, Topic: topic})
}

// AddToCart increments the matching (productId, variant) line or appends one.
// A quantity below 1 counts as 1.
func (s *Store) AddToCart(ctx context.Context, item domain.CartItem, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	s.apply(ctx, events.CartUpdated, func(st domain.State) domain.State {
		return st.AddToCart(item, quantity)
	})
}

func (s *Store) RemoveFromCart(ctx context.Context, productID, variant string) {
	s.apply(ctx, events.CartUpdated, func(st domain.State) domain.State {
		return st.RemoveFromCart(productID, variant)
	})
}

// UpdateCartQuantity sets the line quantity; quantity <= 0 removes the line.
func (s *Store) UpdateCartQuantity(ctx context.Context, productID string, quantity int, variant string) {
	s.apply(ctx, events.CartUpdated, func(st domain.State) domain.State {
		return st.UpdateCartQuantity(productID, quantity, variant)
	})
}

func (s *Store) ClearCart(ctx context.Context) {
	s.apply(ctx, events.CartUpdated, func(st domain.State) domain.State {
		return st.ClearCart()
	})
}

// RemoveCartLines subtracts the given lines from the cart, leaving anything
// added after they were read.
func (s *Store) RemoveCartLines(ctx context.Context, lines []domain.CartItem) {
	s.apply(ctx, events.CartUpdated, func(st domain.State) domain.State {
		return st.SubtractCartLines(lines)
	})
}

func (s *Store) AddToWishlist(ctx context.Context, item domain.WishlistItem) {
	s.apply(ctx, events.WishlistUpdated, func(st domain.State) domain.State {
		return st.AddToWishlist(item)
	})
}

func (s *Store) RemoveFromWishlist(ctx context.Context, productID string) {
	s.apply(ctx, events.WishlistUpdated, func(st domain.State) domain.State {
		return st.RemoveFromWishlist(productID)
	})
}

func (s *Store) ToggleWishlist(ctx context.Context, item domain.WishlistItem) {
	s.apply(ctx, events.WishlistUpdated, func(st domain.State) domain.State {
		return st.ToggleWishlist(item)
	})
}

// MoveWishlistToCart adds the wishlist entry to the cart (quantity 1, no
// variant) and then removes it from the wishlist. It reports false and does
// nothing when the entry is missing or marked out of stock.
//
// The two steps are separate writes: the cart signal goes out before the
// wishlist signal, and two processes moving the same item at once can both
// add it to the cart.
func (s *Store) MoveWishlistToCart(ctx context.Context, productID string) bool {
	item, ok := s.hub.states.Load(ctx, s.key).FindWishlist(productID)
	if !ok || item.OutOfStock() {
		return false
	}
	s.AddToCart(ctx, domain.CartLineFromWishlist(item), 1)
	s.RemoveFromWishlist(ctx, productID)
	return true
}

// Snapshot returns a copy of the handle's current view.
func (s *Store) Snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := domain.State{
		Cart:     make([]domain.CartItem, len(s.view.Cart)),
		Wishlist: make([]domain.WishlistItem, len(s.view.Wishlist)),
	}
	copy(out.Cart, s.view.Cart)
	copy(out.Wishlist, s.view.Wishlist)
	return out
}

func (s *Store) Cart() []domain.CartItem {
	return s.Snapshot().Cart
}

func (s *Store) Wishlist() []domain.WishlistItem {
	return s.Snapshot().Wishlist
}

func (s *Store) IsInCart(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.IsInCart(productID)
}

func (s *Store) HasCartLine(productID, variant string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.HasCartLine(productID, variant)
}

func (s *Store) IsInWishlist(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.IsInWishlist(productID)
}

func (s *Store) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.CartCount()
}

func (s *Store) CartTotal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.CartTotal()
}

func (s *Store) WishlistCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.WishlistCount()
}
