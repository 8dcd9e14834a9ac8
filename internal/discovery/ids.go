package discovery

import (
	"strconv"
	"strings"

	"dossier/internal/textutil"
)

// slug turns a display name into an ID: "Jensen Huang" -> "jensen-huang".
func slug(name string) string {
	key := textutil.NameKey(name)
	if key == "" {
		return "candidate"
	}
	return strings.ReplaceAll(key, " ", "-")
}

// uniqueID returns base, or base-N when base was already issued.
func uniqueID(issued map[string]int, base string) string {
	issued[base]++
	if n := issued[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}
