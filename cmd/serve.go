package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dualforge/tagger/internal/config"
	"github.com/dualforge/tagger/internal/handlers"
	"github.com/dualforge/tagger/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tagging API server",
		Long: `Starts the Tagger HTTP API on the specified port.

Single images are tagged synchronously; ZIP archives become batch jobs whose
progress can be polled and whose result archive can be downloaded when done.`,
		Example: `  # Start server on default port 8888
  tagger serve

  # Start server on custom port
  tagger serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			svc, err := cfg.NewTaggingService()
			if err != nil {
				return err
			}
			orchestrator, err := cfg.NewOrchestrator(svc)
			if err != nil {
				return err
			}

			jobs := storage.New(0)
			handler := handlers.New(cmd.Context(), jobs, svc, orchestrator,
				handlers.WithUploadLimits(cfg.Server.MaxImageBytes, cfg.Server.MaxUploadBytes))

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/tag", handler.HandleTag)
			mux.HandleFunc("/api/upload", handler.HandleUpload)
			mux.HandleFunc("/api/batch", handler.HandleJobs)
			mux.HandleFunc("/api/batch/", handler.HandleJobDetail)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			go pruneJobs(cmd.Context(), jobs, cfg.Server.JobRetention)

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Tagger API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on (overrides TAGGER_PORT)")

	return cmd
}

// pruneJobs drops finished jobs and their archives once they outlive retention
func pruneJobs(ctx context.Context, jobs *storage.JobStore, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(max(retention/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jobs.Prune(retention); n > 0 {
				slog.Info("Pruned finished jobs", "count", n)
			}
		}
	}
}
