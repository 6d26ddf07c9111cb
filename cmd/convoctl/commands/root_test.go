package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags puts every flag of cmd and its children back to its default,
// since the flag variables outlive a single Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)

	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// cli runs convoctl commands against one database. The tests below share
// the package level flag variables and must not run in parallel.
type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("HOME", t.TempDir())

	return &cli{t: t, db: filepath.Join(t.TempDir(), "convo.db")}
}

func (c *cli) exec(args ...string) (string, error) {
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--db", c.db}, args...))

	err := rootCmd.Execute()

	return buf.String(), err
}

func (c *cli) run(args ...string) string {
	c.t.Helper()

	output, err := c.exec(args...)
	require.NoError(c.t, err, output)

	return output
}

func (c *cli) runJSON(target any, args ...string) {
	c.t.Helper()

	output := c.run(append(args, "--format", "json")...)
	require.NoError(c.t, json.Unmarshal([]byte(output), target), output)
}

func TestCLIConversation(t *testing.T) {
	c := newCLI(t)

	var thr threadView
	c.runJSON(&thr, "thread", "create", "ops")
	require.Equal(t, "ops", thr.Title)

	require.Contains(
		t, c.run("send", thr.UniqueID, "--body", "hi", "--at",
			"1700000000000"),
		"Committed OutgoingMessage",
	)

	// A placeholder for a message from bob, then bob's message arrives
	// while the placeholder is still fresh.
	c.run("placeholder", "add", thr.UniqueID, "--sender", "bob",
		"--at", "1700000001000")
	require.Contains(
		t, c.run("deliver", thr.UniqueID, "--from", "bob", "--at",
			"1700000001000", "--body", "late"),
		"replaced",
	)

	var rows []interactionView
	c.runJSON(&rows, "list", thr.UniqueID)
	require.Len(t, rows, 3)

	require.Equal(t, "Info", rows[0].Type)
	require.Equal(t, "OutgoingMessage", rows[1].Type)
	require.Equal(t, "IncomingMessage", rows[2].Type)
	require.Equal(t, "late", rows[2].Preview)
	for i := 1; i < len(rows); i++ {
		require.Greater(t, rows[i].SortID, rows[i-1].SortID)
	}

	var shown interactionView
	c.runJSON(&shown, "show", rows[2].UniqueID)
	require.Equal(t, rows[2], shown)

	// The reader's view adds dynamic rows without sort ids.
	var view []interactionView
	c.runJSON(&view, "list", thr.UniqueID, "--view", "--last-read",
		"0", "--typing", "carol")
	require.Greater(t, len(view), len(rows))
	require.Zero(t, view[0].SortID)
	require.Equal(t, "carol is typing", view[len(view)-1].Preview)
}

func TestCLIExportImport(t *testing.T) {
	src := newCLI(t)

	var thr threadView
	src.runJSON(&thr, "thread", "create", "archive me")
	src.run("send", thr.UniqueID, "--kind", "incoming", "--from", "ann",
		"--body", "one")
	src.run("send", thr.UniqueID, "--kind", "error", "--body", "boom")

	file := filepath.Join(t.TempDir(), "convo.jsonl")
	require.Contains(
		t, src.run("export", file), "Exported 1 threads, 3 interactions",
	)

	dst := &cli{t: t, db: filepath.Join(t.TempDir(), "copy.db")}
	require.Contains(
		t, dst.run("import", file), "Imported 1 threads, 3 interactions",
	)
	require.Contains(t, dst.run("import", file), "(3 skipped)")

	var rows []interactionView
	dst.runJSON(&rows, "list", thr.UniqueID)
	require.Len(t, rows, 3)
	require.Equal(t, "boom", rows[2].Preview)
}

func TestCLIErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec("send", "no-such-thread", "--body", "x")
	require.ErrorIs(t, err, store.ErrThreadNotFound)

	var thr threadView
	c.runJSON(&thr, "thread", "create", "t", "--no-marker")

	_, err = c.exec("send", thr.UniqueID, "--kind", "shout")
	require.ErrorContains(t, err, "invalid kind")

	_, err = c.exec("send", thr.UniqueID, "--kind", "incoming")
	require.ErrorContains(t, err, "--from is required")

	_, err = c.exec("show", "missing")
	require.ErrorIs(t, err, store.ErrInteractionNotFound)

	_, err = c.exec("--log-level", "loud", "thread", "list")
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	clk := clock.NewTestClock(interaction.MillisToTime(1_700_000_000_000))

	ms, err := parseTimestamp("", clk)
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000_000), ms)

	ms, err = parseTimestamp("42", clk)
	require.NoError(t, err)
	require.Equal(t, uint64(42), ms)

	ms, err = parseTimestamp("1970-01-01T00:00:01Z", clk)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), ms)

	_, err = parseTimestamp("yesterday", clk)
	require.Error(t, err)
}
