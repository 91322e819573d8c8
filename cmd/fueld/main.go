/*
main.go - fueld entry point

PURPOSE:
  Initializes and runs the fuel allocation engine daemon and its
  operational subcommands. Handles configuration, dependency wiring,
  and process lifecycle.

COMMANDS:
  serve    Run the HTTP API server (graceful shutdown on SIGINT/SIGTERM)
  verify   Recompute every stored balance and report drift
  seed     Load demo fixtures into the database
  version  Print version information

CONFIGURATION:
  Environment variables (a .env file is honored when present):
    SERVER_HOST        Bind host (default: empty, all interfaces)
    SERVER_PORT        HTTP port (default: 8090)
    DB_PATH            SQLite database path (default: ./fuel.db)
    FLEET_CONFIG_PATH  Fleet configuration YAML (default: fleet.yaml)
    LOG_LEVEL          debug|info|warn|error (default: info)
    LOG_FORMAT         console|json (default: console)
    ENVIRONMENT        development|production
    AUDIT_INTERVAL     Background balance audit period (default: 1h)
    AUDIT_ENABLED      Run the background audit with serve (default: true)

  The --db flag overrides DB_PATH on any subcommand that touches the
  database.

EXAMPLES:
  # Run the API with a file database
  fueld serve --db=./data/fuel.db

  # Audit balances
  fueld verify

  # Load the demo fleet
  fueld seed --db=./data/fuel.db

SEE ALSO:
  - serve.go: HTTP server startup and shutdown
  - verify.go: Balance audit command
  - seed.go: Demo fixtures
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/config"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/engine"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/logging"
	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/store/sqlite"
)

const (
	version = "0.1.0"
	appName = "fueld"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Fuel allocation and auto-linking engine",
		Long: `fueld runs the fuel allocation back office: journey records per
truck trip, dispense events from the yards, automatic linking between
the two, checkpoint allocations along the corridor, and balance
reconciliation.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), verifyCmd(), seedCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	}
}

// app is the shared dependency stack behind every subcommand.
type app struct {
	cfg    config.App
	logger *zap.Logger
	store  *sqlite.Store
	engine *engine.Engine
}

// bootstrap wires the stack: process config from the environment,
// logger, fleet configuration, store, engine. overrideDB takes
// precedence over DB_PATH when non-empty.
func bootstrap(overrideDB string) (*app, error) {
	cfg, err := config.LoadApp()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if overrideDB != "" {
		cfg.DBPath = overrideDB
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	fleet, err := config.Load(cfg.FleetConfigPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet configuration: %w", err)
	}

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		engine: engine.New(st, fleet, logger),
	}, nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}
