package thread

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Thread is a conversation that interactions belong to. Only the identifier
// matters to the interaction model, the rest is descriptive.
type Thread struct {
	// UniqueID is the stable identifier interactions reference.
	UniqueID string

	// Title is a human readable name for the thread.
	Title string

	// CreatedAt is when the thread was first created locally.
	CreatedAt time.Time
}

// New creates a thread with a freshly generated identifier.
func New(title string, clk clock.Clock) Thread {
	return Thread{
		UniqueID:  uuid.New().String(),
		Title:     title,
		CreatedAt: clk.Now(),
	}
}

// Registry resolves thread identifiers to threads. Implementations are bound
// to a transaction, so a lookup observes the same snapshot as the other reads
// made through it.
type Registry interface {
	// ResolveThread returns the thread with the given identifier. A thread
	// that does not exist (for example, one deleted concurrently) is
	// reported as None rather than as an error.
	ResolveThread(ctx context.Context, threadID string) (
		fn.Option[Thread], error)
}
