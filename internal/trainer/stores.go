package trainer

import (
	"context"

	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/store"
)

// StoreProvider yields the memory store view for one episode. Every
// episode decides against its own view so repeated epochs over the
// same dialogue start from an empty store, and parallel episodes never
// share mutable state. The key names the view; providers backed by
// persistent storage use it as the collection name.
type StoreProvider func(ctx context.Context, key string) (memory.Store, error)

// EphemeralStores returns a provider handing out a fresh in-memory
// store per episode. This is the training default: nothing outlives
// the episode.
func EphemeralStores() StoreProvider {
	return func(context.Context, string) (memory.Store, error) {
		return memory.NewInMemoryStore(), nil
	}
}

// PartitionedStores returns a provider backed by named collections of
// a persistent store. Distinct keys get distinct partitions, so the
// written memories survive the run and can be inspected afterwards.
func PartitionedStores(c store.Collections) StoreProvider {
	return func(_ context.Context, key string) (memory.Store, error) {
		return c.Collection(key)
	}
}
