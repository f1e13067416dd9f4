// Package keywords canonicalizes free-text keyword lists for storage.
//
// The stored form is the sorted, deduplicated, trimmed keyword set joined
// with a comma. The separator is not permitted inside a keyword; request
// validation rejects it before normalization.
package keywords

import (
	"sort"
	"strings"
)

// Separator joins keywords in the stored canonical string.
const Separator = ","

// Normalize trims each keyword, drops empty results, deduplicates by exact
// match, sorts ascending, and joins with the separator.
func Normalize(raw []string) string {
	seen := make(map[string]struct{}, len(raw))
	keep := make([]string, 0, len(raw))
	for _, keyword := range raw {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		keep = append(keep, keyword)
	}
	sort.Strings(keep)
	return strings.Join(keep, Separator)
}

// Denormalize splits a stored canonical string back into a list, dropping
// empty segments. The empty string yields an empty list.
func Denormalize(stored string) []string {
	parts := strings.Split(stored, Separator)
	keep := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		keep = append(keep, part)
	}
	return keep
}
