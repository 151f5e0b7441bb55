package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response by endpoint path and query parameters.
type Key struct {
	// Path is the API endpoint path (e.g. "/v1/workflows").
	Path string

	// Params are the query parameters of the request.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: flowdeck:<path>:<param1>=<val1>:<param2>=<val2>
//
// Example:
//
//	flowdeck:v1/workflows:active=true:limit=50
func (k Key) String() string {
	parts := []string{"flowdeck"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Sort parameters for determinism.
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
