/*
serve.go - HTTP server command

STARTUP SEQUENCE:
  1. Bootstrap the dependency stack (config, logger, store, engine)
  2. Configure the HTTP router
  3. Start the server
  4. Block until SIGINT/SIGTERM, then drain with a 30s grace period

GRACEFUL SHUTDOWN:
  On signal: stop accepting new connections, wait for active requests
  to complete (30s timeout), close the database, flush the logger.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/api"
)

func serveCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	return cmd
}

func runServe(dbPath string) error {
	a, err := bootstrap(dbPath)
	if err != nil {
		return err
	}
	defer a.close()

	handler := api.NewHandler(a.engine, a.logger)
	router := api.NewRouter(handler)

	auditor := api.NewBalanceAuditor(a.engine, a.logger)
	auditor.CheckInterval = a.cfg.AuditInterval
	auditor.Enabled = a.cfg.AuditEnabled
	auditor.Start()
	defer auditor.Stop()

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", a.cfg.DBPath),
			zap.String("environment", a.cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
