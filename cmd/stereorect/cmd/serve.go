package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/config"
	"github.com/MeKo-Tech/stereorect/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(state *cliState) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the rectification API",
		Long: `Start an HTTP server that provides REST and WebSocket endpoints for
stereo rectification.

The server provides the following endpoints:
  GET  /health             - Health check endpoint
  POST /rectify/transforms - Rectifying homographies for a geometry document
  POST /rectify/images     - Rectify an uploaded image pair
  GET  /ws/stream          - Stream frame pairs over a WebSocket
  GET  /metrics            - Prometheus metrics

Examples:
  stereorect serve
  stereorect serve --port 8080
  stereorect serve --host 0.0.0.0 --port 3000`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverConfig, err := buildServerConfig(state.cfg)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), serverConfig, time.Duration(state.cfg.Server.ShutdownTimeout)*time.Second)
		},
	}

	c.Flags().StringP("host", "H", "localhost", "server host")
	c.Flags().IntP("port", "p", 8080, "server port")
	c.Flags().String("cors-origin", "*", "CORS allowed origins")
	c.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	c.Flags().Int("timeout", 30, "request timeout in seconds")
	c.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	c.Flags().Int("rate-limit", 0, "requests per minute per client (0 = unlimited)")
	c.Flags().Int("daily-upload-mb", 0, "upload quota per client and day in MB (0 = unlimited)")
	c.Flags().String("view", "full", "default view fitting: full or inside")
	c.Flags().Bool("left-handed", false, "coordinates use a y-up frame")

	bindKey(c.Flags(), "host", "server.host")
	bindKey(c.Flags(), "port", "server.port")
	bindKey(c.Flags(), "cors-origin", "server.cors_origin")
	bindKey(c.Flags(), "max-upload-size", "server.max_upload_mb")
	bindKey(c.Flags(), "timeout", "server.timeout_sec")
	bindKey(c.Flags(), "shutdown-timeout", "server.shutdown_timeout")
	bindKey(c.Flags(), "rate-limit", "server.rate_limit_per_minute")
	bindKey(c.Flags(), "daily-upload-mb", "server.daily_upload_mb")
	bindKey(c.Flags(), "view", "rectify.view")
	bindKey(c.Flags(), "left-handed", "rectify.left_handed")
	return c
}

// buildServerConfig converts the loaded configuration into server settings.
func buildServerConfig(cfg *config.Config) (server.Config, error) {
	rc, err := cfg.ToRectifyConfig()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		CORSOrigin:    cfg.Server.CORSOrigin,
		MaxUploadMB:   int64(cfg.Server.MaxUploadMB),
		TimeoutSec:    cfg.Server.TimeoutSec,
		RectifyConfig: rc,

		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		DailyUploadMB:      int64(cfg.Server.DailyUploadMB),
	}, nil
}

// runServer serves until ctx is cancelled, a signal arrives or the listener
// fails, then shuts down gracefully.
func runServer(ctx context.Context, cfg server.Config, shutdownTimeout time.Duration) error {
	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.TimeoutSec) * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting rectification server", "host", cfg.Host, "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	default:
	}
	slog.Info("Graceful shutdown completed")
	return nil
}
