package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
	"pgregory.net/rapid"
)

// TestMockStoreOrderingInvariant runs random insert and delete sequences
// against the mock store and checks that sort ids only ever grow, that
// dynamic interactions never reach the allocator, and that the store stays
// internally consistent.
func TestMockStoreOrderingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := NewMockStore()

		numThreads := rapid.IntRange(1, 4).Draw(t, "numThreads")
		threads := make([]*thread.Thread, numThreads)
		for i := range threads {
			threads[i] = &thread.Thread{
				UniqueID: rapid.StringMatching(`t[0-9]{4}`).Draw(
					t, "threadID",
				),
			}
			err := store.CreateThread(ctx, *threads[i])
			if errors.Is(err, ErrThreadExists) {
				t.Skip("duplicate thread id")
			}
			if err != nil {
				t.Fatal(err)
			}
		}

		var (
			lastSortID uint64
			stored     []string
		)
		numOps := rapid.IntRange(1, 40).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			thr := rapid.SampledFrom(threads).Draw(t, "thread")
			kind := rapid.SampledFrom(
				interaction.AllTypes(),
			).Draw(t, "kind")
			ts := rapid.Uint64Range(0, 1<<40).Draw(t, "timestamp")

			// Occasionally delete something instead.
			if len(stored) > 0 && rapid.Bool().Draw(t, "delete") {
				idx := rapid.IntRange(0, len(stored)-1).Draw(
					t, "victim",
				)
				err := store.DeleteInteraction(ctx, stored[idx])
				if err != nil {
					t.Fatal(err)
				}
				stored = append(stored[:idx], stored[idx+1:]...)

				continue
			}

			v := variantOfKind(t, kind, thr, ts)
			before := store.Allocations()

			sortID, err := store.InsertInteraction(ctx, v)

			// PROPERTY: dynamic kinds are refused without touching
			// the allocator.
			if kind.IsDynamic() {
				if !errors.Is(err, ErrDynamicInteraction) {
					t.Fatalf("dynamic %v accepted: %v", kind,
						err)
				}
				if store.Allocations() != before {
					t.Fatalf("dynamic %v allocated", kind)
				}

				continue
			}
			if err != nil {
				t.Fatal(err)
			}

			// PROPERTY: sort ids strictly increase across all
			// threads, even after deletes.
			if sortID <= lastSortID {
				t.Fatalf("sort id %d after %d", sortID,
					lastSortID)
			}
			lastSortID = sortID
			stored = append(stored, v.Base().UniqueID())
		}

		// PROPERTY: the store is consistent.
		if !store.IsConsistent() {
			t.Fatal("store is inconsistent")
		}
	})
}

// variantOfKind builds a variant with the given kind for property tests.
func variantOfKind(t *rapid.T, kind interaction.Type, thr *thread.Thread,
	ts uint64) interaction.Variant {

	var (
		v   interaction.Variant
		err error
	)
	switch kind {
	case interaction.TypeIncomingMessage:
		v, err = interaction.NewIncomingMessage(thr, ts, ts, "a", "hi")
	case interaction.TypeOutgoingMessage:
		v, err = interaction.NewOutgoingMessage(thr, ts, "hi", nil)
	case interaction.TypeInfo:
		v, err = interaction.NewInfoMessage(
			thr, ts, interaction.InfoGeneric, "",
		)
	case interaction.TypeError:
		v, err = interaction.NewErrorMessage(thr, ts, "oops")
	case interaction.TypeCall:
		v, err = interaction.NewCallEvent(
			thr, ts, true, false, interaction.CallMissed, 0,
		)
	case interaction.TypeDateHeader:
		v, err = interaction.NewDateHeader(thr, ts)
	case interaction.TypeUnreadIndicator:
		v, err = interaction.NewUnreadIndicator(thr, ts, 1)
	default:
		// The remaining dynamic kinds share the same rules; a typing
		// indicator stands in for them.
		var base *interaction.Interaction
		base, err = interaction.New(kind, ts, thr)
		if err == nil {
			v = &interaction.TypingIndicator{Interaction: base}
		}
	}
	if err != nil {
		t.Fatal(err)
	}

	return v
}
