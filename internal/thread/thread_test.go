package thread

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func TestNewThread(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	clk := clock.NewTestClock(now)

	a := New("design review", clk)
	b := New("design review", clk)

	require.NotEmpty(t, a.UniqueID)
	require.NotEqual(t, a.UniqueID, b.UniqueID)
	require.Equal(t, "design review", a.Title)
	require.True(t, a.CreatedAt.Equal(now))
}
