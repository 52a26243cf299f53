package domain

import "time"

// UsageLog is one accounting row per derivative produced by the prewarm
// worker.
type UsageLog struct {
	Region          string
	SourceKey       string
	Operations      string
	OutputBytes     int64
	PixelsProcessed int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
