package interaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// storedBase rebuilds the shared core of v the way the store does after a
// commit.
func storedBase(t *testing.T, v Variant, sortID uint64) *Interaction {
	t.Helper()

	rec := v.Base().Record()
	rec.SortID = sortID

	base, err := FromStorage(rec)
	require.NoError(t, err)

	return base
}

func TestDecodeVariantRebuildsPayload(t *testing.T) {
	t.Parallel()

	thr := testThread()

	call, err := NewCallEvent(
		thr, 500, false, true, CallAnswered, 90*time.Second,
	)
	require.NoError(t, err)

	name, raw, err := EncodeVariant(call)
	require.NoError(t, err)
	require.Equal(t, "call", name)

	got, err := DecodeVariant(storedBase(t, call, 3), name, raw)
	require.NoError(t, err)

	decoded, ok := got.(*CallEvent)
	require.True(t, ok, "got %T", got)
	require.Equal(t, call.UniqueID(), decoded.UniqueID())
	require.Equal(t, uint64(3), decoded.SortID())
	require.Equal(t, 90*time.Second, decoded.Duration)
	require.True(t, decoded.Video)
	require.False(t, decoded.Incoming)
}

// TestDecodePlaceholderKeepsState makes sure the lifecycle state and the
// decremented timestamp survive storage.
func TestDecodePlaceholderKeepsState(t *testing.T) {
	t.Parallel()

	p, err := NewPlaceholder(testThread(), 100, 100, "dave", time.Second)
	require.NoError(t, err)
	require.NoError(t, p.MarkExpired(MillisToTime(1100)))
	require.NoError(t, p.DecrementTimestamp(DefaultPlaceholderDecrement))

	name, raw, err := EncodeVariant(p)
	require.NoError(t, err)

	got, err := DecodeVariant(storedBase(t, p, 8), name, raw)
	require.NoError(t, err)

	decoded, ok := got.(*Placeholder)
	require.True(t, ok, "got %T", got)
	require.Equal(t, PlaceholderDecremented, decoded.State())
	require.Equal(t, uint64(1100), decoded.ExpiresAt())
	require.Equal(t, uint64(99), decoded.Timestamp())
	require.Equal(t, "dave", decoded.SenderID)
}

func TestEncodeVariantRejectsDynamic(t *testing.T) {
	t.Parallel()

	header, err := NewDateHeader(testThread(), 1)
	require.NoError(t, err)

	_, _, err = EncodeVariant(header)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecodeVariantErrors(t *testing.T) {
	t.Parallel()

	msg, err := NewErrorMessage(testThread(), 1, "boom")
	require.NoError(t, err)
	base := storedBase(t, msg, 1)

	_, err = DecodeVariant(base, "carrier_pigeon", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownVariant)

	// An error row cannot be decoded as an incoming message.
	_, err = DecodeVariant(base, "incoming", []byte(`{}`))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = DecodeVariant(base, "error", []byte(`{not json`))
	require.Error(t, err)

	// Placeholders with an unknown state are refused.
	_, err = DecodeVariant(base, "placeholder", []byte(`{"state":9}`))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
