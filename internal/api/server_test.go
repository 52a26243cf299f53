package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/queue"
)

type fakeFetcher struct {
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
}

func (f fakeFetcher) Fetch(_ context.Context, key string) ([]byte, string, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, "", io.ErrUnexpectedEOF
	}
	return obj.data, obj.contentType, nil
}

type fakeEnqueuer struct {
	payloads []queue.PrewarmPayload
}

func (f *fakeEnqueuer) EnqueuePrewarmDerivative(_ context.Context, payload queue.PrewarmPayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{Queue: "default"}, nil
}

func newTestServer(t *testing.T, fetcher pipeline.Fetcher, enqueuer queueEnqueuer) *Server {
	t.Helper()

	processor, err := pipeline.NewProcessor(fetcher, nil, log.New(io.Discard, "", 0), 75)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	return NewServer(log.New(io.Discard, "", 0), processor, enqueuer, Options{
		Region:          "eu-west-1",
		CacheTTLSeconds: 3600,
	})
}

func TestTransformEndToEnd(t *testing.T) {
	src := buildTestPNG(t, 200, 100)
	server := newTestServer(t, fakeFetcher{objects: map[string]fakeObject{
		"images/rio/1.png": {data: src, contentType: "image/png"},
	}}, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/rio/1.png/format=jpeg,width=100", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "max-age=3600" {
		t.Fatalf("expected max-age=3600, got %s", got)
	}
	if got := rec.Header().Get(headerTransformedIn); got != "eu-west-1" {
		t.Fatalf("expected provenance eu-west-1, got %s", got)
	}

	timing := rec.Header().Get(headerServerTiming)
	if !strings.Contains(timing, "img-download;dur=") || !strings.Contains(timing, "img-transform;dur=") {
		t.Fatalf("unexpected Server-Timing header %q", timing)
	}

	img, format, err := image.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg body, got %s", format)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Fatalf("expected 100x50, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestTransformRejectsNonGet(t *testing.T) {
	server := newTestServer(t, fakeFetcher{}, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/images/rio/1.png/width=100", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "Only GET method is supported" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := rec.Header().Get(headerTransformedIn); got != "eu-west-1" {
		t.Fatalf("expected provenance header on error, got %q", got)
	}
}

func TestTransformFetchFailure(t *testing.T) {
	server := newTestServer(t, fakeFetcher{}, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing/key.png/width=100", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "Error downloading original image" {
		t.Fatalf("unexpected body %q", body)
	}
	if rec.Header().Get(headerServerTiming) != "" {
		t.Fatal("expected no timing header on failure")
	}
}

func TestTransformSVGPassthrough(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	server := newTestServer(t, fakeFetcher{objects: map[string]fakeObject{
		"icons/logo.svg": {data: svg, contentType: "image/svg+xml"},
	}}, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/icons/logo.svg/width=100", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), svg) {
		t.Fatal("expected svg body byte-for-byte")
	}
	if got := rec.Header().Get("Content-Type"); got != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %s", got)
	}
}

func TestPrewarmEnqueuesTasks(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	server := newTestServer(t, fakeFetcher{}, enqueuer)

	body := `{"paths":["/images/rio/1.png/format=jpeg,width=100","/images/rio/2.png/width=50"]}`
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prewarm", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(enqueuer.payloads) != 2 {
		t.Fatalf("expected 2 enqueued payloads, got %d", len(enqueuer.payloads))
	}
	if enqueuer.payloads[0].BatchID == "" || enqueuer.payloads[0].BatchID != enqueuer.payloads[1].BatchID {
		t.Fatal("expected all payloads to share one batch id")
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["enqueued"] != float64(2) {
		t.Fatalf("expected enqueued=2, got %v", resp["enqueued"])
	}
}

func TestPrewarmRejectsEmptyBatch(t *testing.T) {
	server := newTestServer(t, fakeFetcher{}, &fakeEnqueuer{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prewarm", strings.NewReader(`{"paths":[]}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * 255) / w), G: uint8((y * 255) / h), B: 140, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
