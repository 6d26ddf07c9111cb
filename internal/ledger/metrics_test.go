package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/stretchr/testify/require"
)

func TestStoreCollector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, store.NewMockStore())
	thr := h.thread(t, "a")

	info, err := interaction.NewInfoMessage(
		thr, 3, interaction.InfoGeneric, "note",
	)
	require.NoError(t, err)

	require.NoError(t, h.ledger.InsertBatch(ctx, []interaction.Variant{
		h.incoming(t, thr, 1, "one"),
		h.incoming(t, thr, 2, "two"),
		info,
	}))

	expected := `
# HELP convostore_interactions_stored Interactions currently stored, by type.
# TYPE convostore_interactions_stored gauge
convostore_interactions_stored{type="IncomingMessage"} 2
convostore_interactions_stored{type="Info"} 1
# HELP convostore_max_sort_id Highest committed sort id.
# TYPE convostore_max_sort_id gauge
convostore_max_sort_id 3
`
	err = testutil.CollectAndCompare(
		NewStoreCollector(h.store), strings.NewReader(expected),
	)
	require.NoError(t, err)
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.observeCommit("Info")
	m.observeReject("dynamic")
	m.observeDelivery(DeliveryReplaced)
	m.observeExpired(3)
	m.timeTx("insert")()
}
