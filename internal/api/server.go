package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/id"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerTransformedIn = "X-Transformed-In"
	headerServerTiming  = "Server-Timing"
)

type Server struct {
	logger          *log.Logger
	processor       *pipeline.Processor
	queueClient     queueEnqueuer
	region          string
	cacheTTLSeconds int
	rateLimiter     RateLimiter
	clientIDHeader  string
	metrics         *metrics
	tracer          trace.Tracer
	mux             *http.ServeMux
}

type queueEnqueuer interface {
	EnqueuePrewarmDerivative(ctx context.Context, payload queue.PrewarmPayload) (*asynq.TaskInfo, error)
}

// Options carries the request-independent configuration the server needs to
// assemble responses. RateLimiter and the queue client are optional; without
// a queue client the prewarm endpoint reports the feature unavailable.
type Options struct {
	Region          string
	CacheTTLSeconds int
	RateLimiter     RateLimiter
	ClientIDHeader  string
}

func NewServer(logger *log.Logger, processor *pipeline.Processor, queueClient queueEnqueuer, opts Options) *Server {
	clientIDHeader := opts.ClientIDHeader
	if clientIDHeader == "" {
		clientIDHeader = "X-Client-ID"
	}

	s := &Server{
		logger:          logger,
		processor:       processor,
		queueClient:     queueClient,
		region:          opts.Region,
		cacheTTLSeconds: opts.CacheTTLSeconds,
		rateLimiter:     opts.RateLimiter,
		clientIDHeader:  clientIDHeader,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelgate/origin"),
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/prewarm", s.handlePrewarm)
	s.mux.HandleFunc("/", s.handleTransform)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTransform is the origin path: parse, fetch, transform, publish, and
// assemble the response with cache and timing headers.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusBadRequest, "Only GET method is supported", fmt.Errorf("method %s", r.Method))
		return
	}

	req := domain.ParseRequestPath(r.URL.Path)
	result, err := s.processor.Handle(r.Context(), req)
	if err != nil {
		status, message := classifyPipelineError(err)
		s.writeError(w, status, message, err)
		return
	}

	for _, timing := range result.Timings {
		s.metrics.stageDuration.WithLabelValues(timing.Stage).Observe(float64(timing.DurationMS) / 1000)
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", s.cacheTTLSeconds))
	w.Header().Set(headerTransformedIn, s.region)
	w.Header().Set(headerServerTiming, formatServerTiming(result.Timings))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

func classifyPipelineError(err error) (int, string) {
	var (
		fetchErr  *pipeline.FetchError
		decodeErr *pipeline.DecodeError
	)
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusInternalServerError, "Error downloading original image"
	case errors.As(err, &decodeErr):
		return http.StatusInternalServerError, "Error opening original image"
	default:
		return http.StatusInternalServerError, "Error transforming image"
	}
}

func formatServerTiming(timings []pipeline.StageTiming) string {
	parts := make([]string, 0, len(timings))
	for _, t := range timings {
		parts = append(parts, fmt.Sprintf("%s;dur=%d", t.Stage, t.DurationMS))
	}
	return strings.Join(parts, ",")
}

// writeError reports a terminal failure: short message, provenance header,
// nothing from the underlying error in the body.
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Printf("%s path_err=%v", message, err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(headerTransformedIn, s.region)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

type prewarmRequest struct {
	Paths      []string `json:"paths"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

// handlePrewarm enqueues derivative generation ahead of traffic. Each path
// has the same /{sourceKey}/{operations} shape the origin path serves.
func (s *Server) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	if s.queueClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prewarm queue is not configured"})
		return
	}

	var req prewarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paths must contain at least one entry"})
		return
	}

	batchID := id.New()
	enqueued := 0
	for _, path := range req.Paths {
		payload := queue.PrewarmPayload{
			BatchID:     batchID,
			Path:        path,
			WebhookURL:  req.WebhookURL,
			RequestedAt: time.Now().UTC(),
		}
		if _, err := s.queueClient.EnqueuePrewarmDerivative(r.Context(), payload); err != nil {
			s.logger.Printf("prewarm enqueue failed batch_id=%s path=%s err=%v", batchID, path, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue prewarm batch"})
			return
		}
		enqueued++
	}

	s.metrics.prewarmEnqueued.Add(float64(enqueued))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"enqueued": enqueued,
	})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
