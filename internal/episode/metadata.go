package episode

import (
	"github.com/PaesslerAG/jsonpath"

	"github.com/nexusmem/memengine/internal/types"
)

// MetadataValue resolves a JSONPath expression against an episode's
// metadata blob, returning (nil, false) if the path does not resolve.
// Callers use this to read caller-supplied overrides (e.g. a
// domain-specific reward weighting) out of the otherwise opaque
// Metadata map without a fixed schema.
func MetadataValue(e *types.Episode, path string) (interface{}, bool) {
	if e == nil || e.Metadata == nil {
		return nil, false
	}
	v, err := jsonpath.Get(path, map[string]interface{}(e.Metadata))
	if err != nil {
		return nil, false
	}
	return v, true
}

func metadataFloat(e *types.Episode, path string) (float64, bool) {
	v, ok := MetadataValue(e, path)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
