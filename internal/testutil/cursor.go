package testutil

import (
	"fmt"
	"strconv"
	"strings"
)

// Cursors issued by the mock server are "page-<index>" tokens. Real
// Flowdeck cursors are opaque; tests must never rely on this format
// outside this package.

func formatCursor(index int) string {
	return fmt.Sprintf("page-%d", index)
}

func parseCursor(cursor string) (int, error) {
	raw, ok := strings.CutPrefix(cursor, "page-")
	if !ok {
		return 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	return strconv.Atoi(raw)
}
