// Package strings provides string and slice helpers shared by the import
// pipeline and the alias validators.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  graphs ", "nlp", "graphs", "", "  "})
//	// Returns: []string{"graphs", "nlp"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return DedupeFunc(values, func(v string) (string, bool) {
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	})
}

// DedupeFunc maps each element through key, dropping elements whose key was
// already seen or that key rejects. The mapped values are returned in order.
func DedupeFunc[T any, K comparable](values []T, key func(T) (K, bool)) []K {
	seen := make(map[K]struct{}, len(values))
	result := make([]K, 0, len(values))
	for _, v := range values {
		k, ok := key(v)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, k)
	}
	return result
}

// Dedupe drops repeated elements, keeping first occurrences in order.
func Dedupe[T comparable](values []T) []T {
	return DedupeFunc(values, func(v T) (T, bool) { return v, true })
}
