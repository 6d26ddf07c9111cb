package commands

import (
	"github.com/roasbeef/convostore/internal/config"
	"github.com/spf13/cobra"
)

var (
	// configPath is the TOML config file.
	configPath string

	// dbPath overrides the configured database path.
	dbPath string

	// logLevel overrides the configured log level.
	logLevel string

	// verbose also sends logs to stderr.
	verbose bool

	// outputFormat controls output format (text, json).
	outputFormat string

	// cfg is the loaded configuration, set before any command runs.
	cfg *config.Config
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "convoctl",
	Short: "Inspect and edit a convostore interaction database",
	Long: `convoctl manages threads and the interactions committed to them.

Every committed interaction gets a sort id that is unique and increasing
across all threads. Placeholders stand in for messages that could not be
read yet and are replaced or kept when the real message is delivered.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Path to config file (default: ~/.convostore/convostore.toml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.convostore/convostore.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error, critical, off",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false,
		"Also write logs to stderr",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(deliverCmd)
	rootCmd.AddCommand(placeholderCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration and applies the flag overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if dbPath != "" {
		loaded.DBPath = dbPath
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded

	return nil
}
