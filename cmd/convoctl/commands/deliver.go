package commands

import (
	"context"
	"fmt"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/spf13/cobra"
)

var (
	deliverFrom string
	deliverBody string
	deliverAt   string
)

var deliverCmd = &cobra.Command{
	Use:   "deliver <thread-id>",
	Short: "Deliver an incoming message that may have a placeholder",
	Long: `Commit an incoming message sent at --at. A placeholder waiting at the
same timestamp is replaced while its window is open. An expired one is moved
back by the decrement step and kept in front of the message.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeliver,
}

func init() {
	deliverCmd.Flags().StringVar(&deliverFrom, "from", "",
		"Author of the message (required)")
	deliverCmd.Flags().StringVar(&deliverBody, "body", "",
		"Message body in markdown")
	deliverCmd.Flags().StringVar(&deliverAt, "at", "",
		"Author timestamp (epoch ms or RFC3339, required)")

	_ = deliverCmd.MarkFlagRequired("from")
	_ = deliverCmd.MarkFlagRequired("at")
}

func runDeliver(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	thr, err := resolveThread(ctx, a, args[0])
	if err != nil {
		return err
	}

	clk := a.ledger.Clock()
	ts, err := parseTimestamp(deliverAt, clk)
	if err != nil {
		return err
	}

	msg, err := interaction.NewIncomingMessage(
		thr, ts, interaction.TimeToMillis(clk.Now()), deliverFrom,
		deliverBody,
	)
	if err != nil {
		return err
	}

	outcome, err := a.ledger.Deliver(ctx, msg)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), map[string]any{
			"outcome":     outcome.String(),
			"interaction": newInteractionView(msg, ""),
		})
	default:
		fmt.Fprintf(out(cmd), "Delivered %s (sort id %d): %s\n",
			msg.UniqueID(), msg.SortID(), outcome)
	}

	return nil
}
