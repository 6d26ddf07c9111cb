package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/spf13/cobra"
)

var (
	sendKind     string
	sendFrom     string
	sendTo       []string
	sendBody     string
	sendAt       string
	sendOutcome  string
	sendVideo    bool
	sendIncoming bool
	sendDuration time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <thread-id>",
	Short: "Commit an interaction to a thread",
	Long: `Commit a new interaction to a thread. The interaction gets the next
sort id, whatever its timestamp.

Kinds: incoming, outgoing, info, error, call.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendKind, "kind", "outgoing",
		"Interaction kind: incoming, outgoing, info, error, call")
	sendCmd.Flags().StringVar(&sendFrom, "from", "",
		"Author of an incoming message")
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil,
		"Recipients of an outgoing message")
	sendCmd.Flags().StringVar(&sendBody, "body", "",
		"Message body in markdown, or the info/error text")
	sendCmd.Flags().StringVar(&sendAt, "at", "",
		"Author timestamp (epoch ms or RFC3339, default: now)")
	sendCmd.Flags().StringVar(&sendOutcome, "outcome", "answered",
		"Call outcome: answered, missed, declined")
	sendCmd.Flags().BoolVar(&sendVideo, "video", false,
		"The call was a video call")
	sendCmd.Flags().BoolVar(&sendIncoming, "incoming", true,
		"The call was incoming")
	sendCmd.Flags().DurationVar(&sendDuration, "duration", 0,
		"Call duration")
}

func runSend(cmd *cobra.Command, args []string) error {
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

	ts, err := parseTimestamp(sendAt, a.ledger.Clock())
	if err != nil {
		return err
	}

	v, err := buildInteraction(thr, ts, a)
	if err != nil {
		return err
	}

	if err := a.ledger.Insert(ctx, v); err != nil {
		return err
	}

	return printCommitted(cmd, v)
}

// buildInteraction creates the unsaved interaction described by the send
// flags.
func buildInteraction(thr *thread.Thread, ts uint64,
	a *app) (interaction.Variant, error) {

	switch sendKind {
	case "incoming":
		if sendFrom == "" {
			return nil, fmt.Errorf("--from is required for " +
				"incoming messages")
		}
		now := interaction.TimeToMillis(a.ledger.Clock().Now())

		return interaction.NewIncomingMessage(
			thr, ts, now, sendFrom, sendBody,
		)

	case "outgoing":
		return interaction.NewOutgoingMessage(thr, ts, sendBody, sendTo)

	case "info":
		return interaction.NewInfoMessage(
			thr, ts, interaction.InfoGeneric, sendBody,
		)

	case "error":
		return interaction.NewErrorMessage(thr, ts, sendBody)

	case "call":
		var outcome interaction.CallOutcome
		switch sendOutcome {
		case "answered":
			outcome = interaction.CallAnswered
		case "missed":
			outcome = interaction.CallMissed
		case "declined":
			outcome = interaction.CallDeclined
		default:
			return nil, fmt.Errorf("invalid call outcome: %s",
				sendOutcome)
		}

		return interaction.NewCallEvent(
			thr, ts, sendIncoming, sendVideo, outcome,
			sendDuration,
		)

	default:
		return nil, fmt.Errorf("invalid kind: %s", sendKind)
	}
}

// printCommitted reports a freshly committed interaction.
func printCommitted(cmd *cobra.Command, v interaction.Variant) error {
	view := newInteractionView(v, "")

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), view)
	default:
		fmt.Fprintf(out(cmd), "Committed %s %s (sort id %d)\n",
			view.Type, view.UniqueID, view.SortID)
	}

	return nil
}
