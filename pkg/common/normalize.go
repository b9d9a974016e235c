package common

import (
	"strings"
	"unicode"
)

// NormalizeKey folds a display name into its deduplication key: lower case,
// every run of whitespace or punctuation collapsed to one space, trimmed.
// "Graph-Neural  Networks." and "graph neural networks" share a key.
func NormalizeKey(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSpace := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// KeyFor returns the uniqueness key for name under kind. Datasets match on
// their exact display name.
func KeyFor(kind EntityKind, name string) string {
	if kind == EntityDataset {
		return strings.TrimSpace(name)
	}
	return NormalizeKey(name)
}
