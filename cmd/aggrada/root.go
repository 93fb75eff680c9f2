package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/aggrada/internal/config"
	"github.com/JonMunkholm/aggrada/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "aggrada",
		Short:         "Spatio-temporal ingestion engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPeriodCmd())
	cmd.AddCommand(newIntervalsCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig reads .env (overwriting existing variables), loads and
// validates the environment and points the default logger at logOut.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logOut, cfg.Logging.Level, cfg.Logging.Format)

	if envLoaded {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
