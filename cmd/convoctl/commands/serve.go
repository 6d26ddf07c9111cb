package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roasbeef/convostore/internal/ledger"
	"github.com/spf13/cobra"
)

// serveSubsystem tags the log lines of the serve loop.
const serveSubsystem = "CTLD"

var (
	serveAddr          string
	serveSweepInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics and expire placeholders periodically",
	Long: `Run in the foreground, serving Prometheus metrics over HTTP and
retiring expired placeholders on a fixed interval. Stops on SIGINT or
SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Metrics listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval",
		time.Minute, "How often expired placeholders are retired")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveSweepInterval <= 0 {
		return fmt.Errorf("--sweep-interval must be positive")
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		a.registry, promhttp.HandlerOpts{},
	))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		srvErr <- err
	}()

	fmt.Fprintf(out(cmd), "Serving metrics on %s, sweeping every %v\n",
		addr, serveSweepInterval)

	logger := a.logs.Logger(serveSubsystem)
	err = sweepLoop(ctx, a.ledger, logger, serveSweepInterval, srvErr)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 5*time.Second,
	)
	defer cancel()

	return errors.Join(err, srv.Shutdown(shutdownCtx))
}

// sweepLoop retires expired placeholders every interval until ctx is done
// or the server fails. A failed sweep is retried on the next tick.
func sweepLoop(ctx context.Context, l *ledger.Ledger, logger btclogv2.Logger,
	interval time.Duration, srvErr <-chan error) error {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.ExpirePlaceholders(ctx); err != nil {
				logger.WarnS(ctx, "Placeholder sweep failed", err)
			}

		case err := <-srvErr:
			return err

		case <-ctx.Done():
			return nil
		}
	}
}
