package proposals

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// idTimeLayout is fixed-width so that lexical order matches creation order.
const idTimeLayout = "20060102T150405.000000000Z"

// NewID returns a sortable identifier: a nanosecond UTC timestamp followed
// by a random suffix, so two ids minted in the same instant still differ.
// Example: "20261014T093000.123456789Z-3f9a1c2e"
func NewID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return t.UTC().Format(idTimeLayout) + "-" + suffix
}

// validID rejects ids that could escape the store directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
