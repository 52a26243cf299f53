package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"testing"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/queue"
	"go.opentelemetry.io/otel"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		region:     "eu-west-1",
		metrics:    newMetrics(),
	}

	body := encodeTestPNG(t, 20, 10)
	req := domain.ParseRequestPath("/images/rio/1.png/format=jpeg,width=20")

	s.recordUsage(context.Background(), req, pipeline.Result{
		Body:        body,
		ContentType: "image/png",
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.Region != "eu-west-1" {
		t.Fatalf("expected region=eu-west-1, got %s", usageStore.log.Region)
	}
	if usageStore.log.SourceKey != "images/rio/1.png" {
		t.Fatalf("expected source key images/rio/1.png, got %s", usageStore.log.SourceKey)
	}
	if usageStore.log.Operations != "format=jpeg,width=20" {
		t.Fatalf("expected operations format=jpeg,width=20, got %s", usageStore.log.Operations)
	}
	if usageStore.log.PixelsProcessed != 200 {
		t.Fatalf("expected pixels_processed=200, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.OutputBytes != int64(len(body)) {
		t.Fatalf("expected output_bytes=%d, got %d", len(body), usageStore.log.OutputBytes)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageClampsComputeTime(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), domain.ParseRequestPath("/a.png/width=5"), pipeline.Result{
		Body: encodeTestPNG(t, 5, 5),
	}, 0)

	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestDispatchWebhookSkipsWithoutEndpoint(t *testing.T) {
	sender := &captureWebhookSender{}
	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		webhookClient: sender,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("test"),
	}

	err := s.dispatchWebhook(context.Background(), queue.PrewarmPayload{BatchID: "batch-1"}, "prewarm.completed", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sender.called {
		t.Fatal("expected no webhook without an endpoint")
	}
}

func TestDispatchWebhookSendsEvent(t *testing.T) {
	sender := &captureWebhookSender{}
	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		webhookClient: sender,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("test"),
	}

	payload := queue.PrewarmPayload{BatchID: "batch-1", WebhookURL: "https://example.test/hook"}
	if err := s.dispatchWebhook(context.Background(), payload, "prewarm.completed", map[string]any{"batch_id": "batch-1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !sender.called {
		t.Fatal("expected webhook to be sent")
	}
	if sender.endpoint != "https://example.test/hook" {
		t.Fatalf("unexpected endpoint %s", sender.endpoint)
	}
	if sender.event != "prewarm.completed" {
		t.Fatalf("unexpected event %s", sender.event)
	}
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

type captureWebhookSender struct {
	called   bool
	endpoint string
	event    string
}

func (s *captureWebhookSender) Send(_ context.Context, endpoint, event string, _ any) error {
	s.called = true
	s.endpoint = endpoint
	s.event = event
	return nil
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 11), G: uint8(y * 17), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
