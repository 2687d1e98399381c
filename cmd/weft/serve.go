package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/aretw0/weft/pkg/adapters/http"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts weft in server mode, exposing runs, threads and checkpoint events over HTTP.
Committed supersteps are pushed to subscribers of /threads/{id}/events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		streams := httpadapter.NewStreamManager(nil)
		app, err := loadApp(cmd, streams.Hooks())
		if err != nil {
			return err
		}
		defer app.Close()

		opts := []httpadapter.Option{
			httpadapter.WithStreams(streams),
			httpadapter.WithMetrics(promhttp.Handler()),
			httpadapter.WithLogger(app.Logger),
		}
		if patterns, _ := cmd.Flags().GetStringSlice("redact"); len(patterns) > 0 {
			redactor, err := middleware.NewRedactor(patterns...)
			if err != nil {
				return err
			}
			opts = append(opts, httpadapter.WithRedactor(redactor))
		}

		srv := &http.Server{
			Addr:              app.Config.Server.Addr,
			Handler:           httpadapter.NewHandler(app.Engine, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("starting server", "addr", srv.Addr, "graph", app.Demo.Name, "store", app.Config.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			app.Logger.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			app.Logger.Info("server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringSlice("redact", nil, "Regular expressions of state keys masked in responses")
}
