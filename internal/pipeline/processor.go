package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pixelgate/pixelgate/internal/domain"
)

const (
	StageDownload  = "img-download"
	StageTransform = "img-transform"
	StageUpload    = "img-upload"
)

type Fetcher interface {
	Fetch(ctx context.Context, key string) (data []byte, contentType string, err error)
}

type Publisher interface {
	Publish(ctx context.Context, derivative Derivative) error
}

// Derivative is the transformed artifact handed to the publisher and, from
// there, the caller.
type Derivative struct {
	Bytes       []byte
	ContentType string
	CacheKey    string
	SourceKey   string
	Operations  string
}

type StageTiming struct {
	Stage      string
	DurationMS int64
}

// Result is the outcome of a successful pipeline run. PublishErr carries a
// cache-store write failure; the origin path logs and ignores it, the
// prewarm path treats it as fatal.
type Result struct {
	Body        []byte
	ContentType string
	Timings     []StageTiming
	PublishErr  error
}

type Processor struct {
	fetcher        Fetcher
	transformer    Transformer
	publisher      Publisher
	logger         *log.Logger
	defaultQuality int
	now            func() time.Time
}

// NewProcessor wires the request pipeline. A nil publisher disables cache
// population.
func NewProcessor(fetcher Fetcher, publisher Publisher, logger *log.Logger, defaultQuality int) (*Processor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	return &Processor{
		fetcher:        fetcher,
		transformer:    transformer,
		publisher:      publisher,
		logger:         logger,
		defaultQuality: defaultQuality,
		now:            time.Now,
	}, nil
}

// Handle runs fetch, transform, and publish in strict sequence for one
// request. Fetch and transform failures are terminal; a publish failure is
// recorded on the result but never fails the run.
func (p *Processor) Handle(ctx context.Context, req domain.TransformRequest) (Result, error) {
	start := p.now()
	source, contentType, err := p.fetcher.Fetch(ctx, req.SourceKey)
	if err != nil {
		return Result{}, &FetchError{Key: req.SourceKey, Err: err}
	}
	timings := []StageTiming{{Stage: StageDownload, DurationMS: p.sinceMS(start)}}

	// Vector sources pass through untouched; rasterizing them is not this
	// service's job.
	if strings.Contains(strings.ToLower(contentType), "svg") {
		return Result{
			Body:        source,
			ContentType: contentType,
			Timings:     timings,
		}, nil
	}

	start = p.now()
	plan := domain.BuildPlan(req.Operations, p.defaultQuality)
	transformed, outType, err := p.transformer.Transform(ctx, source, plan)
	if err != nil {
		return Result{}, err
	}
	timings = append(timings, StageTiming{Stage: StageTransform, DurationMS: p.sinceMS(start)})

	result := Result{
		Body:        transformed,
		ContentType: outType,
		Timings:     timings,
	}

	if p.publisher == nil {
		return result, nil
	}

	start = p.now()
	derivative := Derivative{
		Bytes:       transformed,
		ContentType: outType,
		CacheKey:    req.CacheKey(),
		SourceKey:   req.SourceKey,
		Operations:  req.RawOperations,
	}
	if err := p.publisher.Publish(ctx, derivative); err != nil {
		publishErr := &PublishError{Key: derivative.CacheKey, Err: err}
		if p.logger != nil {
			p.logger.Printf("derivative publish failed key=%s err=%v", derivative.CacheKey, err)
		}
		result.PublishErr = publishErr
		return result, nil
	}
	result.Timings = append(result.Timings, StageTiming{Stage: StageUpload, DurationMS: p.sinceMS(start)})

	return result, nil
}

func (p *Processor) sinceMS(start time.Time) int64 {
	return p.now().Sub(start).Milliseconds()
}
