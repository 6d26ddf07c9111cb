package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/ledger"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/spf13/cobra"
)

var (
	listAfter    uint64
	listLimit    int
	listView     bool
	listLastRead uint64
	listTyping   []string
)

var listCmd = &cobra.Command{
	Use:   "list <thread-id>",
	Short: "List the interactions of a thread in sort id order",
	Long: `List the committed interactions of a thread in sort id order.

With --view the list is rendered the way a reader sees it, with date
headers, the unread marker and typing indicators mixed in. Those rows are
never committed and show no sort id.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().Uint64Var(&listAfter, "after", 0,
		"Only list interactions after this sort id")
	listCmd.Flags().IntVar(&listLimit, "limit", 0,
		"Maximum number of interactions (0 for all)")
	listCmd.Flags().BoolVar(&listView, "view", false,
		"Render the reader's view with dynamic rows")
	listCmd.Flags().Uint64Var(&listLastRead, "last-read", 0,
		"Sort id of the last read interaction, for --view")
	listCmd.Flags().StringSliceVar(&listTyping, "typing", nil,
		"Participants currently typing, for --view")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var rows []interaction.Variant
	if listView {
		rows, err = a.ledger.View(ctx, args[0], ledger.ViewOptions{
			LastReadSortID: listLastRead,
			Typing:         listTyping,
		})
	} else {
		rows, err = a.ledger.ThreadInteractions(
			ctx, args[0], listAfter, listLimit,
		)
	}
	if err != nil {
		return err
	}

	views := make([]interactionView, len(rows))
	for i, v := range rows {
		preview, err := describe(ctx, v, a.store)
		if err != nil {
			return err
		}
		views[i] = newInteractionView(v, preview)
	}

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), views)
	default:
		if len(views) == 0 {
			fmt.Fprintln(out(cmd), "No interactions.")
			return nil
		}

		for _, v := range views {
			fmt.Fprintln(out(cmd), formatInteraction(v))
		}
	}

	return nil
}

// describe returns the one-line text shown for any interaction, dynamic
// ones included.
func describe(ctx context.Context, v interaction.Variant,
	reg thread.Registry) (string, error) {

	switch row := v.(type) {
	case interaction.Previewable:
		return row.PreviewText(ctx, reg)

	case *interaction.DateHeader:
		return row.Day().Format(time.DateOnly), nil

	case *interaction.UnreadIndicator:
		return fmt.Sprintf("%d unread", row.UnreadCount), nil

	case *interaction.TypingIndicator:
		return row.AuthorID + " is typing", nil

	case *interaction.ThreadDetails:
		thr, err := row.ThreadWithTx(ctx, reg)
		if err != nil {
			return "", err
		}
		return thr.UnwrapOr(thread.Thread{}).Title, nil

	case *interaction.DefaultDisappearingTimer:
		return "Disappearing messages: " + row.Duration.String(), nil

	case *interaction.UnknownThreadWarning:
		return "Unknown sender", nil

	default:
		return "", nil
	}
}
