package pipeline

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain"
)

type Transformer interface {
	Transform(ctx context.Context, input []byte, plan domain.TransformPlan) (data []byte, contentType string, err error)
}

// formatSpec drives the encoding decision per output format. Adding a
// format is a table change, not new control flow.
type formatSpec struct {
	contentType    string
	keepsAlpha     bool
	acceptsQuality bool
	lossy          bool
}

var formats = map[string]formatSpec{
	"jpeg": {contentType: "image/jpeg", keepsAlpha: false, acceptsQuality: true, lossy: true},
	"png":  {contentType: "image/png", keepsAlpha: true, acceptsQuality: false, lossy: false},
	"gif":  {contentType: "image/gif", keepsAlpha: true, acceptsQuality: false, lossy: false},
	"webp": {contentType: "image/webp", keepsAlpha: false, acceptsQuality: true, lossy: true},
	"avif": {contentType: "image/avif", keepsAlpha: false, acceptsQuality: true, lossy: true},
}

// resolveFormat picks the output format: the requested value when given
// (unrecognized values fall back to jpeg), else the source's native format,
// else png.
func resolveFormat(requested, srcFormat string) (string, formatSpec) {
	if requested != "" {
		name := normalizeFormat(requested)
		if spec, ok := formats[name]; ok {
			return name, spec
		}
		return "jpeg", formats["jpeg"]
	}

	name := normalizeFormat(srcFormat)
	if spec, ok := formats[name]; ok {
		return name, spec
	}
	return "png", formats["png"]
}

func normalizeFormat(format string) string {
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// targetSize applies the resize policy: both dimensions given means exact
// target, one dimension scales the other linearly, neither means no resize.
func targetSize(plan domain.TransformPlan, srcW, srcH int) (int, int) {
	switch {
	case plan.Width > 0 && plan.Height > 0:
		return plan.Width, plan.Height
	case plan.Width > 0:
		return plan.Width, scaleDimension(srcH, plan.Width, srcW)
	case plan.Height > 0:
		return scaleDimension(srcW, plan.Height, srcH), plan.Height
	default:
		return srcW, srcH
	}
}

func scaleDimension(other, given, along int) int {
	scaled := int(float64(other)*float64(given)/float64(along) + 0.5)
	if scaled < 1 {
		return 1
	}
	return scaled
}
