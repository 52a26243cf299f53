package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/storage"
	"github.com/pixelgate/pixelgate/internal/store"
	"github.com/pixelgate/pixelgate/internal/telemetry"
	"github.com/pixelgate/pixelgate/internal/webhook"
	"github.com/pixelgate/pixelgate/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	if !cfg.CachingEnabled() {
		logger.Fatal("prewarm worker requires a derivative bucket or multi-region alias")
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "pixelgate-worker", cfg.Trace, logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("start transform runtime: %v", err)
	}
	defer pipeline.Shutdown()

	sourceStore, err := storage.NewClient(storage.Config{
		Endpoint:    cfg.Source.Endpoint,
		Access:      cfg.Source.AccessKey,
		Secret:      cfg.Source.SecretKey,
		Bucket:      cfg.Source.Bucket,
		GlobalAlias: cfg.Source.GlobalAlias,
		UseSSL:      cfg.Source.UseSSL,
		Region:      cfg.Transform.Region,
	})
	if err != nil {
		logger.Fatalf("create source store client: %v", err)
	}

	cacheStore, err := storage.NewClient(storage.Config{
		Endpoint:    cfg.Cache.Endpoint,
		Access:      cfg.Cache.AccessKey,
		Secret:      cfg.Cache.SecretKey,
		Bucket:      cfg.Cache.Bucket,
		GlobalAlias: cfg.Cache.GlobalAlias,
		UseSSL:      cfg.Cache.UseSSL,
		Region:      cfg.Transform.Region,
	})
	if err != nil {
		logger.Fatalf("create cache store client: %v", err)
	}

	processor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: sourceStore},
		pipeline.ObjectStorePublisher{
			Storage:         cacheStore,
			CacheTTLSeconds: cfg.Transform.CacheTTLSeconds,
			Region:          cfg.Transform.Region,
		},
		logger,
		cfg.Transform.DefaultQuality,
	)
	if err != nil {
		logger.Fatalf("build pipeline processor: %v", err)
	}

	var usageStore store.UsageStore
	if cfg.Database.DSN != "" {
		pgStore, err := store.NewPostgresUsageStore(context.Background(), cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("create postgres usage store: %v", err)
		}
		defer func() {
			if err := pgStore.Close(); err != nil {
				logger.Printf("usage store close error: %v", err)
			}
		}()
		usageStore = pgStore
	} else {
		logger.Printf("POSTGRES_DSN not set, using in-memory usage store")
		usageStore = store.NewMemoryUsageStore()
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
	})

	srv, err := worker.NewServer(
		logger,
		cfg.Queue,
		cfg.Worker,
		processor,
		webhookClient,
		usageStore,
		cfg.Transform.Region,
	)
	if err != nil {
		logger.Fatalf("build worker server: %v", err)
	}

	go func() {
		logger.Printf("worker metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, srv.MetricsHandler()); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
