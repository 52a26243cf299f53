package domain

import "strconv"

// TransformPlan is the typed view of a request's operations. Zero width or
// height means the dimension was not requested; an empty Format means the
// source's native format wins.
type TransformPlan struct {
	Width   int
	Height  int
	Format  string
	Quality int
}

// HasResize reports whether any resize was requested.
func (p TransformPlan) HasResize() bool {
	return p.Width > 0 || p.Height > 0
}

// BuildPlan resolves the raw operations map into a TransformPlan. Malformed
// or non-positive numeric values are treated as absent rather than failing
// the request; quality outside 0-100 falls back to the configured default.
func BuildPlan(ops map[string]string, defaultQuality int) TransformPlan {
	plan := TransformPlan{Quality: defaultQuality}

	if w, ok := positiveInt(ops["width"]); ok {
		plan.Width = w
	}
	if h, ok := positiveInt(ops["height"]); ok {
		plan.Height = h
	}
	if format, ok := ops["format"]; ok {
		plan.Format = format
	}
	if q, err := strconv.Atoi(ops["quality"]); err == nil && q >= 0 && q <= 100 {
		plan.Quality = q
	}

	return plan
}

func positiveInt(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
