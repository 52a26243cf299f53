package domain

import "strings"

// TransformRequest is the parsed form of an origin request path. The final
// path segment is the raw operations string; everything before it is the
// source object key.
type TransformRequest struct {
	SourceKey     string
	Operations    map[string]string
	RawOperations string
}

// CacheKey addresses the derivative in the cache store. It uses the raw
// operations string verbatim, so reordered operations map to distinct keys.
func (r TransformRequest) CacheKey() string {
	return r.SourceKey + "/" + r.RawOperations
}

// ParseRequestPath splits a path of the form
// /images/rio/1.png/format=jpeg,width=100 into the source key
// images/rio/1.png and the trailing operations segment. Parsing is purely
// structural; a key that names no object simply fails at fetch time.
func ParseRequestPath(path string) TransformRequest {
	segments := strings.Split(path, "/")

	rawOps := segments[len(segments)-1]
	segments = segments[:len(segments)-1]
	if len(segments) > 0 && segments[0] == "" {
		segments = segments[1:]
	}

	return TransformRequest{
		SourceKey:     strings.Join(segments, "/"),
		Operations:    ParseOperations(rawOps),
		RawOperations: rawOps,
	}
}

// ParseOperations turns a comma-separated key=value segment into a map.
// Entries without an equals sign are dropped; unknown keys are kept so the
// transform layer decides what it recognizes.
func ParseOperations(raw string) map[string]string {
	ops := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		ops[key] = value
	}
	return ops
}
