package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/queue"
	"github.com/pixelgate/pixelgate/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"
)

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// Server consumes prewarm tasks and populates the derivative cache through
// the same pipeline the origin serves from. Unlike the origin path, a cache
// write failure here fails the task: populating the cache is the entire
// point of a prewarm.
type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     *pipeline.Processor
	webhookClient webhookSender
	usageStore    store.UsageStore
	region        string
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	processor *pipeline.Processor,
	webhookClient webhookSender,
	usageStore store.UsageStore,
	region string,
) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("pipeline processor is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:     processor,
		webhookClient: webhookClient,
		usageStore:    usageStore,
		region:        region,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("pixelgate/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePrewarmDerivative, s.handlePrewarmDerivative)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handlePrewarmDerivative(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := statusFailed

	payload, err := queue.ParsePrewarmPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.prewarm_derivative", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("prewarm.batch_id", payload.BatchID),
		attribute.String("prewarm.path", payload.Path),
	)
	defer span.End()
	defer func() {
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
	}()

	s.sem <- struct{}{}
	s.metrics.activeTasks.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}()

	s.logger.Printf("Prewarming... batch_id=%s path=%s", payload.BatchID, payload.Path)

	req := domain.ParseRequestPath(payload.Path)
	result, err := s.processor.Handle(ctx, req)
	if err == nil && result.PublishErr != nil {
		err = result.PublishErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prewarm failed")
		s.dispatchWebhook(ctx, payload, "prewarm.failed", map[string]any{
			"batch_id":     payload.BatchID,
			"path":         payload.Path,
			"cache_key":    req.CacheKey(),
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("prewarm derivative: %w", err)
	}

	s.logger.Printf("Prewarmed batch_id=%s cache_key=%s bytes=%d", payload.BatchID, req.CacheKey(), len(result.Body))
	s.metrics.derivativesTotal.Inc()
	s.recordUsage(ctx, req, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "prewarm.completed", map[string]any{
		"batch_id":     payload.BatchID,
		"path":         payload.Path,
		"cache_key":    req.CacheKey(),
		"content_type": result.ContentType,
		"bytes":        len(result.Body),
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = statusSucceeded
	span.SetStatus(codes.Ok, "prewarmed")
	return nil
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.PrewarmPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed batch_id=%s event=%s err=%v", payload.BatchID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, req domain.TransformRequest, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	var pixelsProcessed int64
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(result.Body)); err == nil {
		pixelsProcessed = int64(cfg.Width) * int64(cfg.Height)
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		Region:          s.region,
		SourceKey:       req.SourceKey,
		Operations:      req.RawOperations,
		OutputBytes:     int64(len(result.Body)),
		PixelsProcessed: pixelsProcessed,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed cache_key=%s err=%v", req.CacheKey(), err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.outputBytesTotal.Add(float64(len(result.Body)))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
