//go:build testable

package interaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceTimestampFixtures(t *testing.T) {
	t.Parallel()

	i, err := New(TypeInfo, 10, testThread())
	require.NoError(t, err)

	i.ReplaceTimestamp(42)
	i.ReplaceReceivedAtTimestamp(7)

	require.Equal(t, uint64(42), i.Timestamp())
	require.Equal(t, uint64(7), i.ReceivedAtTimestamp())
	require.Zero(t, i.SortID())
}
