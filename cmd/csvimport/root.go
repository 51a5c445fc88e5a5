package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "csvimport",
		Short: "Validate and import CSV files into database tables",
		Long: `csvimport reads CSV files, validates every row against the table's rules
and writes them in a single transaction: either every row is imported or none.

Configuration comes from environment variables (or a .env file):
  DB_DRIVER      postgres, mysql, sqlite or memory
  DATABASE_URL   connection string for the driver
  LOG_LEVEL      debug, info, warn or error`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newImportCmd(), newTablesCmd())
	return root
}

// loadConfig loads configuration and sets up logging to w.
func loadConfig(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitFatal, fmt.Errorf("load configuration: %w", err))
	}
	logging.Setup(w, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// openService connects the configured backend and builds the service.
// The returned func closes the backend.
func openService(ctx context.Context, cfg *config.Config, opts ...core.ServiceOption) (*core.Service, func(), error) {
	backend, closeFn, err := core.OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, withCode(exitFatal, fmt.Errorf("open database: %w", err))
	}
	slog.Info("database connected", "driver", backend.Driver)

	opts = append([]core.ServiceOption{core.WithLogger(slog.Default())}, opts...)
	return core.NewService(backend, cfg.Import, opts...), closeFn, nil
}

// stderr is where CLI logs go; tests replace it.
var stderr io.Writer = os.Stderr
