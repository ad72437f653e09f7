package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/sekretar-core/internal/bootstrap"
	"github.com/kirillkom/sekretar-core/internal/config"
	"github.com/kirillkom/sekretar-core/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("sekretar-core", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := app.Engine.Resume(ctx); err != nil {
		log.Fatalf("resume jobs error: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.Engine.Run(ctx) })
	g.Go(func() error {
		app.Pendings.Run(ctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error { return app.Bus.SubscribeContent(ctx, app.Pipeline.Ingest) })
	g.Go(func() error { return app.Bus.SubscribeDecisions(ctx, app.Pipeline) })

	g.Go(func() error {
		ticker := time.NewTicker(cfg.TopicRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := app.Topics.Refresh(ctx); err != nil {
					logger.Warn("topic_refresh_failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case result := <-app.Engine.DeadLetters():
				logger.Error("job_dead_lettered", "job_id", result.JobID, "kind", result.Kind, "content_id", result.ContentID, "error", result.Err)
			}
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("worker_started",
		"content_subject", cfg.NATSContentSubject,
		"decision_subject", cfg.NATSDecisionSubject,
		"backends", cfg.BackendOrder,
	)

	if err := g.Wait(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
