package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelgate/pixelgate/internal/api"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/queue"
	"github.com/pixelgate/pixelgate/internal/ratelimit"
	"github.com/pixelgate/pixelgate/internal/storage"
	"github.com/pixelgate/pixelgate/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[origin] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "pixelgate-origin", cfg.Trace, logger)
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

	var publisher pipeline.Publisher
	if cfg.CachingEnabled() {
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
		publisher = pipeline.ObjectStorePublisher{
			Storage:         cacheStore,
			CacheTTLSeconds: cfg.Transform.CacheTTLSeconds,
			Region:          cfg.Transform.Region,
		}
	} else {
		logger.Printf("derivative bucket not configured, cache population disabled")
	}

	processor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: sourceStore},
		publisher,
		logger,
		cfg.Transform.DefaultQuality,
	)
	if err != nil {
		logger.Fatalf("build pipeline processor: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var limiter api.RateLimiter
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Printf("redis client close error: %v", err)
		}
	}()
	if bucket, err := ratelimit.NewRedisTokenBucket(rdb, cfg.RateLimit.PrewarmCapacity, cfg.RateLimit.PrewarmWindow, ""); err != nil {
		logger.Printf("rate limiter disabled: %v", err)
	} else {
		limiter = bucket
	}

	app := api.NewServer(logger, processor, queueClient, api.Options{
		Region:          cfg.Transform.Region,
		CacheTTLSeconds: cfg.Transform.CacheTTLSeconds,
		RateLimiter:     limiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.Origin.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s region=%s", cfg.Origin.Addr, cfg.Transform.Region)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
