package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/shell/httpapi"
)

// =============================================================================
// Serve Command
// =============================================================================

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stack status and run history over HTTP",
		Long: `serve exposes a read-only HTTP API for the stack: GET /api/status for
live per-service state, GET /api/history for recorded runs, and
GET /healthz. Useful for dashboards and editor integrations watching
the local stack.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) runServe(ctx context.Context, addr string) error {
	def, err := a.loadStack()
	if err != nil {
		return err
	}

	o, cleanup, err := a.newOrchestrator(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}

	if addr == "" {
		addr = a.cfg.Serve.Addr
	}

	api := httpapi.NewServer(def.Name, o, history, a.logger)
	server := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving stack API", "addr", addr, "stack", def.Name)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Serve.ShutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down stack API")
	return server.Shutdown(shutdownCtx)
}
