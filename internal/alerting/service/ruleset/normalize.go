package ruleset

import (
	"strconv"
	"strings"
)

// NormalizeKey trims and upper-cases a rule key so report entries match table keys
// regardless of incidental whitespace or case.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// formatNumber renders v the way a person would type it in the rule table: 5, 0.5, 36.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
