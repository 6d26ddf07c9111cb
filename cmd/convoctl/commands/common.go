package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roasbeef/convostore/internal/archive"
	"github.com/roasbeef/convostore/internal/build"
	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/ledger"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
	"github.com/spf13/cobra"
)

// Subsystem tags of the loggers handed to packages taking a *slog.Logger.
const (
	dbSubsystem    = "SQLD"
	storeSubsystem = "STOR"
)

// app bundles everything a command needs to talk to the database.
type app struct {
	logs     *build.LogManager
	store    *store.SQLStore
	ledger   *ledger.Ledger
	registry *prometheus.Registry
}

// openApp sets up logging, opens the database and builds the ledger.
func openApp() (*app, error) {
	logCfg := &build.LogConfig{
		Level: cfg.Log.Level,
		File:  cfg.LogRotator(),
	}
	if verbose {
		logCfg.Console = os.Stderr
	}

	logs, err := build.NewLogManager(logCfg)
	if err != nil {
		return nil, err
	}
	ledger.UseLogger(logs.Logger(ledger.Subsystem))
	archive.UseLogger(logs.Logger(archive.Subsystem))

	sqlite, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName: cfg.DBPath,
		BusyTimeout:      cfg.BusyTimeout,
	}, logs.SlogLogger(dbSubsystem))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	st := store.NewSQLStore(sqlite, logs.SlogLogger(storeSubsystem))

	registry := prometheus.NewRegistry()
	registry.MustRegister(ledger.NewStoreCollector(st))

	l, err := ledger.New(ledger.Config{
		Store:          st,
		Clock:          clock.NewDefaultClock(),
		PlaceholderTTL: cfg.Placeholder.TTL,
		DecrementStep:  cfg.Placeholder.Step,
		Metrics:        ledger.NewMetrics(registry),
	})
	if err != nil {
		_ = st.Close()
		_ = logs.Close()
		return nil, err
	}

	return &app{
		logs:     logs,
		store:    st,
		ledger:   l,
		registry: registry,
	}, nil
}

// Close closes the database and flushes the logs.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.logs.Close())
}

// parseTimestamp reads an epoch millisecond value or an RFC3339 time. An
// empty value means now.
func parseTimestamp(s string, clk clock.Clock) (uint64, error) {
	if s == "" {
		return interaction.TimeToMillis(clk.Now()), nil
	}

	if ms, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ms, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: use epoch "+
			"milliseconds or RFC3339", s)
	}

	return interaction.TimeToMillis(t), nil
}

// interactionView is the JSON shape of an interaction.
type interactionView struct {
	UniqueID   string `json:"unique_id"`
	ThreadID   string `json:"thread_id"`
	Type       string `json:"type"`
	Variant    string `json:"variant"`
	SortID     uint64 `json:"sort_id,omitempty"`
	Timestamp  uint64 `json:"timestamp"`
	ReceivedAt uint64 `json:"received_at"`
	Preview    string `json:"preview,omitempty"`
	State      string `json:"placeholder_state,omitempty"`
}

func newInteractionView(v interaction.Variant,
	preview string) interactionView {

	base := v.Base()
	view := interactionView{
		UniqueID:   base.UniqueID(),
		ThreadID:   base.ThreadID(),
		Type:       base.Type().String(),
		Variant:    interaction.VariantName(v),
		SortID:     base.SortID(),
		Timestamp:  base.Timestamp(),
		ReceivedAt: base.ReceivedAtTimestamp(),
		Preview:    preview,
	}
	if p, ok := v.(*interaction.Placeholder); ok {
		view.State = p.State().String()
	}

	return view
}

// formatInteraction renders an interaction as one line of text.
func formatInteraction(v interactionView) string {
	var sb strings.Builder

	if v.SortID == 0 {
		sb.WriteString("      -")
	} else {
		fmt.Fprintf(&sb, "%7d", v.SortID)
	}

	ts := interaction.MillisToTime(v.Timestamp).UTC()
	fmt.Fprintf(&sb, "  %s  %-16s", ts.Format(time.DateTime), v.Type)

	if v.State != "" {
		fmt.Fprintf(&sb, " [%s]", v.State)
	}
	if v.Preview != "" {
		sb.WriteString(" " + v.Preview)
	}

	return sb.String()
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// out returns where command output goes.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// resolveThread loads a thread, failing when it does not exist.
func resolveThread(ctx context.Context, a *app,
	threadID string) (*thread.Thread, error) {

	opt, err := a.store.ResolveThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	thr, err := opt.UnwrapOrErr(fmt.Errorf("%w: %s",
		store.ErrThreadNotFound, threadID))
	if err != nil {
		return nil, err
	}

	return &thr, nil
}
