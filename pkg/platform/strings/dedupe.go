// Package strings provides string slice helpers shared by request parsing
// and domain normalization.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimUpper is like DedupeAndTrim but also upper-cases each element,
// so "vitals" and " VITALS" collapse to one tag.
//
//	DedupeAndTrimUpper([]string{" vitals", "VITALS", "", "allergies"})
//	// Returns: []string{"VITALS", "ALLERGIES"}
func DedupeAndTrimUpper(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
}

// SplitList splits a comma-separated list and applies DedupeAndTrim.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(s, ","))
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
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
