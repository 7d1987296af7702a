// Package strings holds small text helpers shared by the resolver and access checks.
package strings

import (
	"strings"
)

// Collapse trims s and folds every run of inner whitespace into one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName prepares a person's name for case-insensitive comparison.
//
//	NormalizeName("  Jane   DOE ") // "jane doe"
func NormalizeName(s string) string {
	return strings.ToLower(Collapse(s))
}

// DedupeLower lowercases and trims each value, dropping empties and repeats.
// Order of first appearance is preserved.
func DedupeLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
