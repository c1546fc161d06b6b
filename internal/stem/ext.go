package stem

import (
	"path/filepath"
	"strings"
)

// NormalizeExtensions lowercases, trims and dot-prefixes extensions, dropping blanks
// and duplicates while keeping the first-seen order.
func NormalizeExtensions(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, ext := range in {
		e := strings.ToLower(strings.TrimSpace(ext))
		if e == "" || e == "." {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		normalized = append(normalized, e)
	}
	return normalized
}

// extensionSet is an allow-list lookup; an empty set accepts every extension.
type extensionSet map[string]struct{}

func newExtensionSet(exts []string) extensionSet {
	normalized := NormalizeExtensions(exts)
	set := make(extensionSet, len(normalized))
	for _, e := range normalized {
		set[e] = struct{}{}
	}
	return set
}

func (s extensionSet) allows(name string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[strings.ToLower(filepath.Ext(name))]
	return ok
}
