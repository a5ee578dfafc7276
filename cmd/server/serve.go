package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/fisc-engine/api"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/store/sqlite"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API on the configured port.

On SIGINT/SIGTERM the server stops accepting connections, waits for active
requests up to the shutdown timeout, then closes the database.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, ref, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	var st *sqlite.Store
	if cfg.Database.Path != "" {
		st, err = sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer st.Close()
	} else {
		logger.Warn("no database configured, stored batch routes disabled")
	}

	runner := batch.NewRunner(logger)
	runner.Parallelism = cfg.Batch.Parallelism
	runner.Trace = cfg.Batch.Trace

	handler := api.NewHandler(ref, runner, st)
	router := api.NewRouter(handler, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestLogging: cfg.Server.RequestLogging,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("reference", ref.Name()),
			zap.String("db", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err, ok := <-errs:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
