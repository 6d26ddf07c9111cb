package archive

import (
	"bytes"
	"cmp"
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/ledger"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, time.May, 4, 9, 30, 0, 0, time.UTC)

func newSQLStore(t *testing.T) store.Storage {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	sqliteStore, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName:      filepath.Join(t.TempDir(), "archive.db"),
		SkipMigrationDBBackup: true,
	}, log)
	require.NoError(t, err)

	s := store.NewSQLStore(sqliteStore, log)
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func newLedger(t *testing.T, s store.Storage) *ledger.Ledger {
	t.Helper()

	l, err := ledger.New(ledger.Config{
		Store: s,
		Clock: clock.NewTestClock(testEpoch),
	})
	require.NoError(t, err)

	return l
}

// populate fills s with two threads whose interactions interleave.
func populate(t *testing.T, l *ledger.Ledger) []thread.Thread {
	t.Helper()

	ctx := context.Background()
	clk := l.Clock()

	threads := []thread.Thread{
		thread.New("alpha", clk), thread.New("beta", clk),
	}
	for _, thr := range threads {
		require.NoError(t, l.Store().CreateThread(ctx, thr))
	}

	a, b := &threads[0], &threads[1]
	now := interaction.TimeToMillis(clk.Now())

	incoming, err := interaction.NewIncomingMessage(
		a, now-10, now, "carol", "*hi*",
	)
	require.NoError(t, err)
	outgoing, err := interaction.NewOutgoingMessage(
		b, now-5, "hello", []string{"dave"},
	)
	require.NoError(t, err)
	call, err := interaction.NewCallEvent(
		a, now-3, true, true, interaction.CallAnswered, time.Minute,
	)
	require.NoError(t, err)
	placeholder, err := l.NewPlaceholder(b, now-1, "dave")
	require.NoError(t, err)

	require.NoError(t, l.InsertBatch(ctx, []interaction.Variant{
		incoming, outgoing, call, placeholder,
	}))

	return threads
}

// snapshot returns every stored record, in sort id order, without the sort
// ids themselves.
func snapshot(t *testing.T, s store.Storage) []interaction.Record {
	t.Helper()

	ctx := context.Background()
	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)

	var all []interaction.Variant
	for _, thr := range threads {
		rows, err := s.ListThreadInteractions(ctx, thr.UniqueID, 0, 0)
		require.NoError(t, err)
		all = append(all, rows...)
	}

	byOrder := make([]interaction.Record, len(all))
	for i, v := range all {
		byOrder[i] = v.Base().Record()
	}

	// Sort by sort id so the cross-thread order is compared too.
	slices.SortFunc(byOrder, func(a, b interaction.Record) int {
		return cmp.Compare(a.SortID, b.SortID)
	})
	for i := range byOrder {
		byOrder[i].SortID = 0
	}

	return byOrder
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := newLedger(t, newSQLStore(t))
	populate(t, src)

	var buf bytes.Buffer
	exported, err := Export(ctx, src.Store(), &buf, src.Clock())
	require.NoError(t, err)
	require.Equal(t, 2, exported.Threads)
	require.Equal(t, 4, exported.Interactions)
	require.Empty(t, exported.Errors)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	require.Contains(t, lines[0], `"kind":"header"`)

	dst := newLedger(t, store.NewMockStore())
	imported, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.NoError(t, imported.Err())
	require.Equal(t, 2, imported.Threads)
	require.Equal(t, 4, imported.Interactions)

	if diff := gocmp.Diff(
		snapshot(t, src.Store()), snapshot(t, dst.Store()),
	); diff != "" {
		t.Fatalf("imported records differ (-want +got):\n%s", diff)
	}

	// Importing again only skips.
	again, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Zero(t, again.Threads)
	require.Zero(t, again.Interactions)
	require.Equal(t, 4, again.Skipped)
}

func TestExportSelectedThread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t, store.NewMockStore())
	threads := populate(t, l)

	var buf bytes.Buffer
	res, err := Export(ctx, l.Store(), &buf, l.Clock(), threads[1].UniqueID)
	require.NoError(t, err)
	require.Equal(t, 1, res.Threads)
	require.Equal(t, 2, res.Interactions)

	_, err = Export(ctx, l.Store(), &bytes.Buffer{}, l.Clock(), "missing")
	require.ErrorIs(t, err, store.ErrThreadNotFound)
}

func TestImportCollectsFrameErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t, store.NewMockStore())

	archive := strings.Join([]string{
		`{"kind":"header","header":{"version":1}}`,
		`{"kind":"thread","thread":{"unique_id":"t1","title":"one"}}`,
		`not json`,
		`{"kind":"thread"}`,
		`{"kind":"interaction","interaction":{"unique_id":"i1",` +
			`"thread_id":"t1","type":5,"variant":"info",` +
			`"timestamp":10,"received_at":10,` +
			`"payload":{"kind":0,"text":"kept"}}}`,
		`{"kind":"interaction","interaction":{"unique_id":"i2",` +
			`"thread_id":"nope","type":5,"variant":"info",` +
			`"timestamp":11,"received_at":11,"payload":{}}}`,
		`{"kind":"interaction","interaction":{"unique_id":"i3",` +
			`"thread_id":"t1","type":6,"variant":"typing",` +
			`"timestamp":12,"received_at":12,"payload":{}}}`,
		`{"kind":"interaction","interaction":{"unique_id":"i4",` +
			`"thread_id":"t1","type":1,"variant":"info",` +
			`"timestamp":13,"received_at":13,"payload":{}}}`,
		``,
		`{"kind":"header","header":{"version":1}}`,
	}, "\n")

	res, err := Import(ctx, l, strings.NewReader(archive))
	require.NoError(t, err)
	require.Equal(t, 1, res.Threads)
	require.Equal(t, 1, res.Interactions)

	lines := make([]int, len(res.Errors))
	for i, ferr := range res.Errors {
		lines[i] = ferr.Line
	}
	require.Equal(t, []int{3, 4, 6, 7, 8, 10}, lines)

	require.ErrorIs(t, res.Errors[0], ErrMalformedFrame)
	require.ErrorIs(t, res.Errors[2], ErrUnknownThread)
	require.ErrorIs(t, res.Errors[3], interaction.ErrUnknownVariant)
	require.ErrorIs(t, res.Errors[4], interaction.ErrInvalidArgument)
	require.ErrorIs(t, res.Err(), ErrUnknownThread)

	kept, err := l.Fetch(ctx, "i1")
	require.NoError(t, err)
	require.True(t, kept.IsSome())
}

func TestImportHeaderChecks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLedger(t, store.NewMockStore())

	_, err := Import(ctx, l, strings.NewReader(""))
	require.ErrorIs(t, err, ErrMissingHeader)

	_, err = Import(ctx, l, strings.NewReader(
		`{"kind":"thread","thread":{"unique_id":"t1"}}`,
	))
	require.ErrorIs(t, err, ErrMissingHeader)

	_, err = Import(ctx, l, strings.NewReader(
		`{"kind":"header","header":{"version":99}}`,
	))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}
