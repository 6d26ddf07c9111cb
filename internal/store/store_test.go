package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/stretchr/testify/require"
)

// newTestSQLStore creates a SQLStore backed by a temporary SQLite database
// with migrations applied.
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	log := slog.New(slog.DiscardHandler)

	sqliteStore, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName:      filepath.Join(t.TempDir(), "test.db"),
		SkipMigrationDBBackup: true,
	}, log)
	require.NoError(t, err)

	s := NewSQLStore(sqliteStore, log)
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// forEachStore runs test against every Storage implementation.
func forEachStore(t *testing.T, test func(t *testing.T, s Storage)) {
	t.Run("sql", func(t *testing.T) {
		t.Parallel()
		test(t, newTestSQLStore(t))
	})
	t.Run("mock", func(t *testing.T) {
		t.Parallel()
		test(t, NewMockStore())
	})
}

func createThread(t *testing.T, s Storage, id string) *thread.Thread {
	t.Helper()

	thr := thread.Thread{
		UniqueID:  id,
		Title:     "thread " + id,
		CreatedAt: time.UnixMilli(1_700_000_000_000),
	}
	require.NoError(t, s.CreateThread(context.Background(), thr))

	return &thr
}

func newInfo(t *testing.T, thr *thread.Thread,
	ts uint64) *interaction.InfoMessage {

	t.Helper()

	info, err := interaction.NewInfoMessage(
		thr, ts, interaction.InfoGeneric, "note",
	)
	require.NoError(t, err)

	return info
}

func mustFetch(t *testing.T, s Storage,
	uniqueID string) interaction.Variant {

	t.Helper()

	got, err := s.FetchInteraction(context.Background(), uniqueID)
	require.NoError(t, err)
	require.True(t, got.IsSome(), "interaction %s not stored", uniqueID)

	v, err := got.UnwrapOrErr(errors.New("missing"))
	require.NoError(t, err)

	return v
}

func TestThreadLifecycle(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		a := createThread(t, s, "a")
		b := createThread(t, s, "b")

		err := s.CreateThread(ctx, *a)
		require.ErrorIs(t, err, ErrThreadExists)

		got, err := s.ResolveThread(ctx, "a")
		require.NoError(t, err)
		thr := got.UnwrapOr(thread.Thread{})
		require.Equal(t, a.Title, thr.Title)
		require.True(t, thr.CreatedAt.Equal(a.CreatedAt))

		missing, err := s.ResolveThread(ctx, "nope")
		require.NoError(t, err)
		require.True(t, missing.IsNone())

		threads, err := s.ListThreads(ctx)
		require.NoError(t, err)
		require.Len(t, threads, 2)
		require.Equal(t, "a", threads[0].UniqueID)
		require.Equal(t, "b", threads[1].UniqueID)

		// Deleting a thread takes its interactions with it.
		info := newInfo(t, b, 10)
		_, err = s.InsertInteraction(ctx, info)
		require.NoError(t, err)

		require.NoError(t, s.DeleteThread(ctx, "b"))
		fetched, err := s.FetchInteraction(ctx, info.UniqueID())
		require.NoError(t, err)
		require.True(t, fetched.IsNone())

		err = s.DeleteThread(ctx, "b")
		require.ErrorIs(t, err, ErrThreadNotFound)
	})
}

// TestInsertAssignsIncreasingSortIDs checks that sort ids grow across
// threads in commit order and that the inserted instance is not mutated.
func TestInsertAssignsIncreasingSortIDs(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		threads := []*thread.Thread{
			createThread(t, s, "x"), createThread(t, s, "y"),
		}

		var last uint64
		for i := 0; i < 10; i++ {
			// Timestamps run backwards to show they play no part
			// in the order.
			info := newInfo(t, threads[i%2], uint64(1000-i))

			sortID, err := s.InsertInteraction(ctx, info)
			require.NoError(t, err)
			require.Greater(t, sortID, last)
			last = sortID

			require.Zero(t, info.SortID())
			require.False(t, info.IsPersisted())

			stored := mustFetch(t, s, info.UniqueID())
			require.Equal(t, sortID, stored.Base().SortID())
			require.Equal(t, info.Timestamp(), stored.Base().Timestamp())
		}

		maxID, err := s.MaxSortID(ctx)
		require.NoError(t, err)
		require.Equal(t, last, maxID)
	})
}

// TestInsertRejectsDynamic checks that dynamic interactions are refused
// before any sort id is allocated.
func TestInsertRejectsDynamic(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")

		header, err := interaction.NewDateHeader(thr, 5)
		require.NoError(t, err)

		_, err = s.InsertInteraction(ctx, header)
		require.ErrorIs(t, err, ErrDynamicInteraction)
		require.Zero(t, header.SortID())

		// The counter was never touched.
		next, err := s.NextSortID(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), next)
	})
}

func TestInsertRejections(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")

		info := newInfo(t, thr, 5)
		sortID, err := s.InsertInteraction(ctx, info)
		require.NoError(t, err)
		info.ReplaceSortID(sortID)

		_, err = s.InsertInteraction(ctx, info)
		require.ErrorIs(t, err, ErrAlreadyPersisted)

		// Same identity, fresh instance.
		dupBase, err := interaction.Restore(
			info.UniqueID(), interaction.TypeError, 5, 5, thr,
		)
		require.NoError(t, err)
		dup := &interaction.ErrorMessage{Interaction: dupBase}
		_, err = s.InsertInteraction(ctx, dup)
		require.ErrorIs(t, err, ErrInteractionExists)

		orphan := newInfo(t, &thread.Thread{UniqueID: "gone"}, 5)
		_, err = s.InsertInteraction(ctx, orphan)
		require.ErrorIs(t, err, ErrThreadNotFound)

		huge := newInfo(t, thr, math.MaxUint64)
		_, err = s.InsertInteraction(ctx, huge)
		require.ErrorIs(t, err, ErrValueOutOfRange)
	})
}

func TestListThreadInteractionsPaging(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		a := createThread(t, s, "a")
		b := createThread(t, s, "b")

		var ids []string
		for i := 0; i < 7; i++ {
			info := newInfo(t, a, uint64(i))
			_, err := s.InsertInteraction(ctx, info)
			require.NoError(t, err)
			ids = append(ids, info.UniqueID())

			// Interleave another thread's writes.
			_, err = s.InsertInteraction(ctx, newInfo(t, b, 0))
			require.NoError(t, err)
		}

		var (
			got   []string
			after uint64
		)
		for {
			page, err := s.ListThreadInteractions(ctx, "a", after, 3)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			require.LessOrEqual(t, len(page), 3)

			for _, v := range page {
				require.Greater(t, v.Base().SortID(), after)
				after = v.Base().SortID()
				got = append(got, v.Base().UniqueID())
			}
		}
		require.Equal(t, ids, got)

		all, err := s.ListThreadInteractions(ctx, "a", 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 7)
	})
}

// TestPlaceholderIndex walks a stored placeholder through expiry and the
// timestamp decrement.
func TestPlaceholderIndex(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")

		p, err := interaction.NewPlaceholder(
			thr, 5_000, 5_000, "alice", time.Second,
		)
		require.NoError(t, err)

		sortID, err := s.InsertInteraction(ctx, p)
		require.NoError(t, err)
		p.ReplaceSortID(sortID)

		// Another sender's message at the same time is not what the
		// placeholder stands in for.
		found, err := s.FindPlaceholder(ctx, "t", "bob", 5_000)
		require.NoError(t, err)
		require.True(t, found.IsNone())

		found, err = s.FindPlaceholder(ctx, "t", "alice", 5_000)
		require.NoError(t, err)
		require.True(t, found.IsSome())
		found.WhenSome(func(got *interaction.Placeholder) {
			require.Equal(t, p.UniqueID(), got.UniqueID())
			require.Equal(t, interaction.PlaceholderActive,
				got.State())
		})

		due, err := s.ListActivePlaceholders(ctx, 5_999)
		require.NoError(t, err)
		require.Empty(t, due)

		due, err = s.ListActivePlaceholders(ctx, 6_000)
		require.NoError(t, err)
		require.Len(t, due, 1)

		require.NoError(t, p.MarkExpired(interaction.MillisToTime(6_000)))
		require.NoError(t, p.DecrementTimestamp(
			interaction.DefaultPlaceholderDecrement,
		))
		require.NoError(t, s.UpdatePlaceholder(ctx, p))

		found, err = s.FindPlaceholder(ctx, "t", "alice", 5_000)
		require.NoError(t, err)
		require.True(t, found.IsNone())

		due, err = s.ListActivePlaceholders(ctx, math.MaxUint64)
		require.NoError(t, err)
		require.Empty(t, due)

		stored, ok := mustFetch(t, s, p.UniqueID()).(*interaction.Placeholder)
		require.True(t, ok)
		require.Equal(t, uint64(4_999), stored.Timestamp())
		require.Equal(t, interaction.PlaceholderDecremented,
			stored.State())
		require.Equal(t, sortID, stored.SortID())

		// Placeholders that were never committed cannot be updated.
		fresh, err := interaction.NewPlaceholder(
			thr, 1, 1, "bob", time.Second,
		)
		require.NoError(t, err)
		err = s.UpdatePlaceholder(ctx, fresh)
		require.ErrorIs(t, err, ErrNotPersisted)
	})
}

// TestWithTxRollback checks that a failed transaction leaves nothing
// behind, including its sort id allocation.
func TestWithTxRollback(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")
		info := newInfo(t, thr, 1)
		errAbort := errors.New("abort")

		err := s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
			_, err := tx.InsertInteraction(ctx, info)
			require.NoError(t, err)

			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		got, err := s.FetchInteraction(ctx, info.UniqueID())
		require.NoError(t, err)
		require.True(t, got.IsNone())

		maxID, err := s.MaxSortID(ctx)
		require.NoError(t, err)
		require.Zero(t, maxID)

		// The same interaction commits cleanly afterwards.
		err = s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
			_, err := tx.InsertInteraction(ctx, info)
			return err
		})
		require.NoError(t, err)
	})
}

// TestMockStoreConcurrentTxs checks that a rollback never wipes out a
// transaction that committed while it was running.
func TestMockStoreConcurrentTxs(t *testing.T) {
	t.Parallel()

	const workers = 32

	ctx := context.Background()
	s := NewMockStore()
	errAbort := errors.New("abort")
	unexpected := make(chan error, workers)

	var wg sync.WaitGroup

	for i := range workers {
		wg.Go(func() {
			id := fmt.Sprintf("t%d", i)
			err := s.WithTx(ctx, func(ctx context.Context,
				tx Storage) error {

				thr := thread.Thread{
					UniqueID:  id,
					CreatedAt: time.UnixMilli(1),
				}
				if err := tx.CreateThread(ctx, thr); err != nil {
					return err
				}

				info, err := interaction.NewInfoMessage(
					&thr, 1, interaction.InfoGeneric, id,
				)
				if err != nil {
					return err
				}
				_, err = tx.InsertInteraction(ctx, info)
				if err != nil {
					return err
				}

				// Nested transactions join the outer one.
				err = tx.WithReadTx(ctx, func(ctx context.Context,
					tx Storage) error {

					_, err := tx.MaxSortID(ctx)
					return err
				})
				if err != nil {
					return err
				}

				if i%2 == 1 {
					return errAbort
				}

				return nil
			})
			if err != nil && !errors.Is(err, errAbort) {
				unexpected <- err
			}
		})
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		require.NoError(t, err)
	}

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, workers/2)
	for _, thr := range threads {
		var i int
		_, err := fmt.Sscanf(thr.UniqueID, "t%d", &i)
		require.NoError(t, err)
		require.Zero(t, i%2, thr.UniqueID)
	}

	require.True(t, s.IsConsistent())
}

func TestCountInteractionsByType(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")

		for i := 0; i < 3; i++ {
			_, err := s.InsertInteraction(ctx, newInfo(t, thr, 1))
			require.NoError(t, err)
		}

		out, err := interaction.NewOutgoingMessage(thr, 2, "hi", nil)
		require.NoError(t, err)
		_, err = s.InsertInteraction(ctx, out)
		require.NoError(t, err)

		counts, err := s.CountInteractionsByType(ctx)
		require.NoError(t, err)
		require.Equal(t, map[interaction.Type]int64{
			interaction.TypeInfo:            3,
			interaction.TypeOutgoingMessage: 1,
		}, counts)
	})
}

func TestDeleteInteraction(t *testing.T) {
	t.Parallel()

	forEachStore(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		thr := createThread(t, s, "t")

		p, err := interaction.NewPlaceholder(thr, 9, 9, "a", time.Second)
		require.NoError(t, err)
		_, err = s.InsertInteraction(ctx, p)
		require.NoError(t, err)

		require.NoError(t, s.DeleteInteraction(ctx, p.UniqueID()))
		err = s.DeleteInteraction(ctx, p.UniqueID())
		require.ErrorIs(t, err, ErrInteractionNotFound)

		// The lifecycle index goes with the row.
		found, err := s.FindPlaceholder(ctx, "t", "a", 9)
		require.NoError(t, err)
		require.True(t, found.IsNone())
	})
}
