package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <unique-id>",
	Short: "Show a committed interaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opt, err := a.ledger.Fetch(ctx, args[0])
	if err != nil {
		return err
	}
	v, err := opt.UnwrapOrErr(fmt.Errorf("%w: %s",
		store.ErrInteractionNotFound, args[0]))
	if err != nil {
		return err
	}

	preview, err := a.ledger.Preview(ctx, args[0])
	if err != nil {
		return err
	}
	view := newInteractionView(v, preview)

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), view)
	default:
		w := out(cmd)
		fmt.Fprintf(w, "Interaction %s\n", view.UniqueID)
		fmt.Fprintf(w, "  Thread:    %s\n", view.ThreadID)
		fmt.Fprintf(w, "  Type:      %s (%s)\n", view.Type,
			view.Variant)
		fmt.Fprintf(w, "  Sort id:   %d\n", view.SortID)
		fmt.Fprintf(w, "  Sent:      %s\n", formatMillis(view.Timestamp))
		fmt.Fprintf(w, "  Received:  %s\n",
			formatMillis(view.ReceivedAt))
		if p, ok := v.(*interaction.Placeholder); ok {
			fmt.Fprintf(w, "  State:     %s\n", p.State())
			fmt.Fprintf(w, "  Expires:   %s\n",
				formatMillis(p.ExpiresAt()))
		}
		fmt.Fprintf(w, "  Preview:   %s\n", view.Preview)
	}

	return nil
}

func formatMillis(ms uint64) string {
	return fmt.Sprintf("%s (%d)",
		interaction.MillisToTime(ms).UTC().Format(time.RFC3339Nano), ms)
}
