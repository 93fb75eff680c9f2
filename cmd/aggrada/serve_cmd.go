package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/aggrada/internal/ingest"
	"github.com/JonMunkholm/aggrada/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}

			slog.Info("configuration loaded",
				"port", cfg.Server.Port,
				"driver", cfg.Database.Driver,
				"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
				"cache_size", cfg.Ingest.CacheSize,
			)

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				promcollectors.NewGoCollector(),
				promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}),
			)
			collectors := ingest.NewCollectors(reg)

			pipeline, cache := newPipeline(cfg, st, collectors)
			server := web.NewServer(web.Deps{
				Config:   cfg,
				Store:    st,
				Runner:   pipeline,
				Limiter:  ingest.NewRunLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
				Gatherer: reg,
			})

			// Background jobs stop with the server.
			jobCtx, cancelJobs := context.WithCancel(context.Background())
			defer cancelJobs()
			go web.StartCacheJanitor(jobCtx, cache, cfg.Ingest.CacheTTL)

			// Graceful shutdown
			shutdownDone := make(chan struct{})
			go func() {
				defer close(shutdownDone)
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh

				slog.Info("shutting down...")
				cancelJobs()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("shutdown error", "error", err)
				}
			}()

			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-shutdownDone
			slog.Info("server stopped")
			return nil
		},
	}
}
