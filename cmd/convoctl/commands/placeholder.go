package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	placeholderSender string
	placeholderAt     string
)

// placeholderCmd groups the placeholder subcommands.
var placeholderCmd = &cobra.Command{
	Use:   "placeholder",
	Short: "Manage placeholders for messages not readable yet",
}

var placeholderAddCmd = &cobra.Command{
	Use:   "add <thread-id>",
	Short: "Commit a placeholder for a message sent at --at",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaceholderAdd,
}

var placeholderExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire placeholders whose replacement window has closed",
	Args:  cobra.NoArgs,
	RunE:  runPlaceholderExpire,
}

func init() {
	placeholderAddCmd.Flags().StringVar(&placeholderSender, "sender", "",
		"Sender of the missing message (required)")
	placeholderAddCmd.Flags().StringVar(&placeholderAt, "at", "",
		"Timestamp of the missing message (epoch ms or RFC3339, "+
			"required)")

	_ = placeholderAddCmd.MarkFlagRequired("sender")
	_ = placeholderAddCmd.MarkFlagRequired("at")

	placeholderCmd.AddCommand(placeholderAddCmd)
	placeholderCmd.AddCommand(placeholderExpireCmd)
}

func runPlaceholderAdd(cmd *cobra.Command, args []string) error {
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

	ts, err := parseTimestamp(placeholderAt, a.ledger.Clock())
	if err != nil {
		return err
	}

	p, err := a.ledger.NewPlaceholder(thr, ts, placeholderSender)
	if err != nil {
		return err
	}
	if err := a.ledger.Insert(ctx, p); err != nil {
		return err
	}

	return printCommitted(cmd, p)
}

func runPlaceholderExpire(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.ledger.ExpirePlaceholders(context.Background())
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), map[string]int{"expired": n})
	default:
		fmt.Fprintf(out(cmd), "Expired %d placeholder(s).\n", n)
	}

	return nil
}
