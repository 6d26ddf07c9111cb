package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/spf13/cobra"
)

var threadNoMarker bool

// threadCmd groups the thread subcommands.
var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage threads",
}

var threadCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a thread",
	Long: `Create a thread with a fresh identifier. Unless --no-marker is
given, a "thread created" info marker is committed as its first interaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runThreadCreate,
}

var threadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads",
	Args:  cobra.NoArgs,
	RunE:  runThreadList,
}

var threadDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread and all of its interactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadDelete,
}

func init() {
	threadCreateCmd.Flags().BoolVar(&threadNoMarker, "no-marker", false,
		"Do not commit a thread created marker")

	threadCmd.AddCommand(threadCreateCmd)
	threadCmd.AddCommand(threadListCmd)
	threadCmd.AddCommand(threadDeleteCmd)
}

func runThreadCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	clk := a.ledger.Clock()
	thr := thread.New(args[0], clk)
	if err := a.store.CreateThread(ctx, thr); err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	if !threadNoMarker {
		marker, err := interaction.NewInfoMessage(
			&thr, interaction.TimeToMillis(clk.Now()),
			interaction.InfoThreadCreated, "",
		)
		if err != nil {
			return err
		}
		if err := a.ledger.Insert(ctx, marker); err != nil {
			return err
		}
	}

	switch outputFormat {
	case "json":
		return outputJSON(out(cmd), threadJSON(thr))
	default:
		fmt.Fprintf(out(cmd), "Thread created: %s\n", thr.UniqueID)
	}

	return nil
}

type threadView struct {
	UniqueID  string `json:"unique_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

func threadJSON(thr thread.Thread) threadView {
	return threadView{
		UniqueID:  thr.UniqueID,
		Title:     thr.Title,
		CreatedAt: thr.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func runThreadList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	threads, err := a.store.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list threads: %w", err)
	}

	switch outputFormat {
	case "json":
		views := make([]threadView, len(threads))
		for i, thr := range threads {
			views[i] = threadJSON(thr)
		}
		return outputJSON(out(cmd), views)

	default:
		if len(threads) == 0 {
			fmt.Fprintln(out(cmd), "No threads.")
			return nil
		}

		for _, thr := range threads {
			fmt.Fprintf(out(cmd), "%s  %s  %s\n", thr.UniqueID,
				thr.CreatedAt.UTC().Format(time.DateTime),
				thr.Title)
		}
	}

	return nil
}

func runThreadDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.store.DeleteThread(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	fmt.Fprintf(out(cmd), "Thread deleted: %s\n", args[0])

	return nil
}
