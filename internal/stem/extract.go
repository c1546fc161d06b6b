// Package stem derives stems from marker files and locates the data files that belong
// to each stem.
package stem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extract returns the sorted, de-duplicated stems of the files in dir whose extension is
// allow-listed. A stem is the filename with its last extension removed.
func Extract(dir string, exts []string) ([]string, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read marker dir: %w", err)
	}

	allowed := newExtensionSet(exts)
	seen := make(map[string]struct{}, len(entries))
	stems := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !allowed.allows(entry.Name()) {
			continue
		}
		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == "" {
			continue
		}
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	return stems, nil
}

// CheckDir verifies that dir exists and is a directory.
func CheckDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DirectoryNotFoundError{Path: dir, Err: err}
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return &DirectoryNotFoundError{Path: dir, Err: ErrNotDirectory}
	}
	return nil
}
