package store

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
)

// ThreadStore handles thread persistence.
type ThreadStore interface {
	// CreateThread stores a new thread.
	CreateThread(ctx context.Context, thr thread.Thread) error

	// ResolveThread looks a thread up by id. A missing thread is None,
	// not an error.
	//
	// NOTE: This implements the thread.Registry interface.
	ResolveThread(ctx context.Context,
		threadID string) (fn.Option[thread.Thread], error)

	// ListThreads returns all threads, oldest first.
	ListThreads(ctx context.Context) ([]thread.Thread, error)

	// DeleteThread removes a thread together with every interaction in
	// it.
	DeleteThread(ctx context.Context, threadID string) error
}

// SortKeyAllocator hands out the global order keys of committed
// interactions.
type SortKeyAllocator interface {
	// NextSortID allocates the next sort id. Ids are strictly increasing
	// across all threads and never reused, but an id allocated inside a
	// transaction that is rolled back may be handed out again.
	NextSortID(ctx context.Context) (uint64, error)
}

// InteractionStore handles interaction persistence. Interactions are stored
// in their encoded form; reads return freshly decoded variants, so mutating
// a returned value never changes what is stored.
type InteractionStore interface {
	SortKeyAllocator

	// InsertInteraction allocates a sort id and stores v under it,
	// returning the id. v itself is left untouched: the caller records the
	// id with ReplaceSortID once the surrounding transaction has
	// committed. Dynamic and already persisted interactions are refused.
	InsertInteraction(ctx context.Context,
		v interaction.Variant) (uint64, error)

	// FetchInteraction loads an interaction by unique id.
	FetchInteraction(ctx context.Context,
		uniqueID string) (fn.Option[interaction.Variant], error)

	// ListThreadInteractions returns up to limit interactions of a thread
	// with a sort id above afterSortID, in sort id order. A limit of zero
	// or less means no limit.
	ListThreadInteractions(ctx context.Context, threadID string,
		afterSortID uint64, limit int) ([]interaction.Variant, error)

	// DeleteInteraction removes a stored interaction.
	DeleteInteraction(ctx context.Context, uniqueID string) error

	// UpdatePlaceholder writes back the timestamp and lifecycle state of
	// a persisted placeholder.
	UpdatePlaceholder(ctx context.Context,
		p *interaction.Placeholder) error

	// FindPlaceholder returns the undecremented placeholder standing in
	// for senderID's message at the given timestamp of a thread, if any.
	// With several, the oldest by sort id wins.
	FindPlaceholder(ctx context.Context, threadID, senderID string,
		timestamp uint64) (fn.Option[*interaction.Placeholder], error)

	// ListActivePlaceholders returns active placeholders whose
	// replacement window closes at or before expiresBy, oldest expiry
	// first.
	ListActivePlaceholders(ctx context.Context,
		expiresBy uint64) ([]*interaction.Placeholder, error)

	// CountInteractionsByType returns the number of stored interactions
	// per type. Types with no rows are absent.
	CountInteractionsByType(
		ctx context.Context) (map[interaction.Type]int64, error)

	// MaxSortID returns the highest committed sort id, zero when nothing
	// is stored.
	MaxSortID(ctx context.Context) (uint64, error)
}

// Storage combines all store interfaces for unified access.
type Storage interface {
	ThreadStore
	InteractionStore

	// WithTx executes a function within a write database transaction.
	// Calls made through the Storage handed to fn are atomic: they all
	// commit or none do.
	WithTx(ctx context.Context,
		fn func(ctx context.Context, s Storage) error) error

	// WithReadTx executes a function within a read-only database
	// transaction. This ensures consistent snapshot reads across multiple
	// queries.
	WithReadTx(ctx context.Context,
		fn func(ctx context.Context, s Storage) error) error

	// Close closes the store and releases resources.
	Close() error
}

// Ensure the storage interfaces can stand in for the thread registry.
var _ thread.Registry = (Storage)(nil)
