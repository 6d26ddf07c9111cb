package interaction

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestPlaceholder(t *testing.T, ts uint64,
	ttl time.Duration) *Placeholder {

	t.Helper()

	p, err := NewPlaceholder(testThread(), ts, ts, "alice", ttl)
	require.NoError(t, err)

	return p
}

func TestPlaceholderLifecycle(t *testing.T) {
	t.Parallel()

	const ts = 1_000_000
	p := newTestPlaceholder(t, ts, time.Minute)

	require.Equal(t, PlaceholderActive, p.State())
	require.Equal(t, TypeError, p.Type())
	require.Equal(t, uint64(ts+60_000), p.ExpiresAt())

	before := MillisToTime(ts + 59_999)
	after := MillisToTime(ts + 60_000)

	require.True(t, p.IsEligibleForReplacement(before))
	require.False(t, p.IsEligibleForReplacement(after))

	// Still inside the window: cannot expire, and cannot skip ahead to the
	// decrement.
	require.ErrorIs(t, p.MarkExpired(before), ErrInvalidTransition)
	require.ErrorIs(t, p.DecrementTimestamp(1), ErrInvalidTransition)
	require.Equal(t, uint64(ts), p.Timestamp())

	require.NoError(t, p.MarkExpired(after))
	require.Equal(t, PlaceholderExpired, p.State())
	require.False(t, p.IsEligibleForReplacement(before))
	require.Equal(t, uint64(ts), p.Timestamp())

	require.NoError(t, p.DecrementTimestamp(DefaultPlaceholderDecrement))
	require.Equal(t, PlaceholderDecremented, p.State())
	require.Equal(t, uint64(ts-1), p.Timestamp())

	// Exactly one decrement.
	require.ErrorIs(t, p.DecrementTimestamp(1), ErrInvalidTransition)
	require.ErrorIs(t, p.MarkExpired(after), ErrInvalidTransition)
	require.Equal(t, uint64(ts-1), p.Timestamp())

	// Receipt time is untouched by the decrement.
	require.Equal(t, uint64(ts), p.ReceivedAtTimestamp())
}

func TestPlaceholderDecrementValidation(t *testing.T) {
	t.Parallel()

	p := newTestPlaceholder(t, 3, time.Millisecond)
	require.NoError(t, p.MarkExpired(MillisToTime(4)))

	// Underflow is refused and leaves the state alone.
	require.ErrorIs(t, p.DecrementTimestamp(5), ErrInvalidArgument)
	require.Equal(t, PlaceholderExpired, p.State())
	require.Equal(t, uint64(3), p.Timestamp())

	require.ErrorIs(t, p.DecrementTimestamp(0), ErrInvalidArgument)
	require.Equal(t, PlaceholderExpired, p.State())
}

func TestNewPlaceholderValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPlaceholder(testThread(), 1, 1, "", time.Minute)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPlaceholder(testThread(), 1, 1, "bob", 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPlaceholder(nil, 1, 1, "bob", time.Minute)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// A window shorter than a millisecond would close on creation.
	_, err = NewPlaceholder(
		testThread(), 1, 1, "bob", 999*time.Microsecond,
	)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// The timestamp needs room for the step, or the placeholder could
	// never be moved back.
	_, err = NewPlaceholder(testThread(), 0, 1, "bob", time.Minute)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPlaceholderWithStep(
		testThread(), 4, 4, "bob", time.Minute, 5,
	)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPlaceholderWithStep(
		testThread(), 4, 4, "bob", time.Minute, 0,
	)
	require.ErrorIs(t, err, ErrInvalidArgument)

	p, err := NewPlaceholderWithStep(
		testThread(), 5, 5, "bob", time.Minute, 5,
	)
	require.NoError(t, err)
	require.NoError(t, p.MarkExpired(MillisToTime(60_005)))
	require.NoError(t, p.DecrementTimestamp(5))
	require.Zero(t, p.Timestamp())
}

// TestPlaceholderExpirySaturates checks that a window reaching past the
// storable range ends at its edge instead of wrapping around.
func TestPlaceholderExpirySaturates(t *testing.T) {
	t.Parallel()

	const maxExpiry = uint64(math.MaxInt64)

	for _, receivedAt := range []uint64{
		maxExpiry - 10, maxExpiry, maxExpiry + 1, math.MaxUint64,
	} {
		p, err := NewPlaceholder(
			testThread(), 1_000, receivedAt, "bob", time.Hour,
		)
		require.NoError(t, err)
		require.Equal(t, maxExpiry, p.ExpiresAt(), receivedAt)
		require.True(t, p.IsEligibleForReplacement(MillisToTime(1_000)))
	}

	p := newTestPlaceholder(t, 1_000, time.Hour)
	require.Equal(t, uint64(1_000+3_600_000), p.ExpiresAt())
}

// TestPlaceholderCoexistsWithReplacement checks that after the decrement a
// placeholder no longer shares a timestamp or identity with the real
// interaction inserted at the original timestamp.
func TestPlaceholderCoexistsWithReplacement(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := rapid.Uint64Range(1, 1<<52).Draw(t, "timestamp")
		ttl := time.Duration(
			rapid.Int64Range(
				int64(time.Millisecond), int64(time.Hour),
			).Draw(t, "ttl"),
		)

		p, err := NewPlaceholder(testThread(), ts, ts, "carol", ttl)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expiry := MillisToTime(p.ExpiresAt())
		if err := p.MarkExpired(expiry); err != nil {
			t.Fatalf("expire: %v", err)
		}
		err = p.DecrementTimestamp(DefaultPlaceholderDecrement)
		if err != nil {
			t.Fatalf("decrement: %v", err)
		}

		real, err := NewIncomingMessage(
			testThread(), ts, ts+1, "carol", "hello",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if p.Timestamp() != ts-DefaultPlaceholderDecrement {
			t.Fatalf("timestamp %d, want %d", p.Timestamp(),
				ts-DefaultPlaceholderDecrement)
		}
		if p.Timestamp() == real.Timestamp() {
			t.Fatal("placeholder still collides with replacement")
		}
		if p.UniqueID() == real.UniqueID() {
			t.Fatal("placeholder shares identity with replacement")
		}
	})
}

func TestPlaceholderPreview(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPlaceholder(t, 100, time.Second)

	text, err := p.PreviewText(ctx, mapRegistry{})
	require.NoError(t, err)
	require.Equal(t, "Waiting for this message", text)

	require.NoError(t, p.MarkExpired(MillisToTime(1100)))
	text, err = p.PreviewText(ctx, mapRegistry{})
	require.NoError(t, err)
	require.Contains(t, text, "alice")
}
