package memory

import (
	"fmt"
	"sort"
	"strings"
)

// attemptKey renders a (tool, params) pair into a stable string for
// equality comparison — sorted by param key so map iteration order never
// affects the result.
func attemptKey(toolName string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(toolName)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, params[k])
	}
	return b.String()
}
