package statestore

import (
	"context"

	"github.com/webdash/storefront/internal/domain"
)

// StateStore persists the whole ecommerce snapshot under one key.
//
// Load never fails: a missing key, a corrupt blob or an unreachable backend
// all read as domain.EmptyState(). Persist overwrites the key; callers treat
// its error as best effort.
type StateStore interface {
	Load(ctx context.Context, key string) domain.State
	Persist(ctx context.Context, key string, state domain.State) error
}
