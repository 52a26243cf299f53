package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/pixelgate/pixelgate/internal/domain"
)

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
}

func (f fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	return f.data, f.contentType, f.err
}

type fakePublisher struct {
	published []Derivative
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, derivative Derivative) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, derivative)
	return nil
}

func newTestProcessor(t *testing.T, fetcher Fetcher, publisher Publisher) *Processor {
	t.Helper()
	processor, err := NewProcessor(fetcher, publisher, log.New(os.Stderr, "[test] ", 0), 75)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return processor
}

func TestHandlePublishesDerivative(t *testing.T) {
	src := buildTestPNG(t, 200, 100, false)
	publisher := &fakePublisher{}
	processor := newTestProcessor(t, fakeFetcher{data: src, contentType: "image/png"}, publisher)

	req := domain.ParseRequestPath("/images/rio/1.png/format=jpeg,width=100")
	result, err := processor.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if result.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", result.ContentType)
	}
	verifyDimensions(t, result.Body, 100, 50)

	if len(publisher.published) != 1 {
		t.Fatalf("expected one published derivative, got %d", len(publisher.published))
	}
	derivative := publisher.published[0]
	if derivative.CacheKey != "images/rio/1.png/format=jpeg,width=100" {
		t.Fatalf("unexpected cache key %q", derivative.CacheKey)
	}
	if derivative.Operations != "format=jpeg,width=100" {
		t.Fatalf("unexpected operations %q", derivative.Operations)
	}
	if !bytes.Equal(derivative.Bytes, result.Body) {
		t.Fatal("published bytes differ from response body")
	}

	stages := stageNames(result.Timings)
	want := []string{StageDownload, StageTransform, StageUpload}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("expected stages %v, got %v", want, stages)
		}
	}
}

func TestHandleSVGPassthrough(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	publisher := &fakePublisher{}
	processor := newTestProcessor(t, fakeFetcher{data: svg, contentType: "image/svg+xml"}, publisher)

	req := domain.ParseRequestPath("/icons/logo.svg/width=100")
	result, err := processor.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if !bytes.Equal(result.Body, svg) {
		t.Fatal("expected svg bytes to pass through unchanged")
	}
	if result.ContentType != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %s", result.ContentType)
	}
	if len(publisher.published) != 0 {
		t.Fatal("expected no publish for svg passthrough")
	}
}

func TestHandlePublishFailureStillSucceeds(t *testing.T) {
	src := buildTestPNG(t, 50, 50, false)
	publisher := &fakePublisher{err: errors.New("cache store unavailable")}
	processor := newTestProcessor(t, fakeFetcher{data: src, contentType: "image/png"}, publisher)

	req := domain.ParseRequestPath("/images/a.png/width=25")
	result, err := processor.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success despite publish failure, got %v", err)
	}

	var publishErr *PublishError
	if !errors.As(result.PublishErr, &publishErr) {
		t.Fatalf("expected PublishError on result, got %v", result.PublishErr)
	}
	verifyDimensions(t, result.Body, 25, 25)

	for _, timing := range result.Timings {
		if timing.Stage == StageUpload {
			t.Fatal("expected no upload timing after publish failure")
		}
	}
}

func TestHandleFetchError(t *testing.T) {
	processor := newTestProcessor(t, fakeFetcher{err: errors.New("no such key")}, nil)

	_, err := processor.Handle(context.Background(), domain.ParseRequestPath("/missing.png/width=10"))
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestHandleDecodeError(t *testing.T) {
	processor := newTestProcessor(t, fakeFetcher{data: []byte("junk"), contentType: "image/png"}, nil)

	_, err := processor.Handle(context.Background(), domain.ParseRequestPath("/broken.png/width=10"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestHandleWithoutPublisherSkipsUpload(t *testing.T) {
	src := buildTestPNG(t, 20, 20, false)
	processor := newTestProcessor(t, fakeFetcher{data: src, contentType: "image/png"}, nil)

	result, err := processor.Handle(context.Background(), domain.ParseRequestPath("/a.png/width=10"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	for _, timing := range result.Timings {
		if timing.Stage == StageUpload {
			t.Fatal("expected no upload stage without a publisher")
		}
	}
}

func stageNames(timings []StageTiming) []string {
	names := make([]string, 0, len(timings))
	for _, t := range timings {
		names = append(names, t.Stage)
	}
	return names
}
