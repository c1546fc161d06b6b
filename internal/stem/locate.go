package stem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultDelimiters separate a stem from the rest of a data filename.
var DefaultDelimiters = []string{"_", "-", "."}

// LocateOptions controls which files belong to a stem.
type LocateOptions struct {
	Extensions []string
	Delimiters []string
	// Recursive also searches subdirectories of the data directory.
	Recursive bool
}

// Locate returns the full paths of files in dir that belong to stem, ordered by filename.
// A file belongs to stem when its name starts with stem immediately followed by the
// extension separator or a delimiter, so stem "a" never claims "a10_1.csv".
func Locate(stem, dir string, opts LocateOptions) ([]string, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	delimiters := opts.Delimiters
	if len(delimiters) == 0 {
		delimiters = DefaultDelimiters
	}
	allowed := newExtensionSet(opts.Extensions)
	keep := func(name string) bool {
		return MatchesStem(name, stem, delimiters) && allowed.allows(name)
	}

	var (
		matches []string
		err     error
	)
	if opts.Recursive {
		matches, err = walkMatches(dir, keep)
	} else {
		matches, err = listMatches(dir, keep)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		bi, bj := filepath.Base(matches[i]), filepath.Base(matches[j])
		if bi != bj {
			return bi < bj
		}
		return matches[i] < matches[j]
	})
	return matches, nil
}

// MatchesStem reports whether filename is claimed by stem under the delimiter rule.
func MatchesStem(filename, stem string, delimiters []string) bool {
	if stem == "" || !strings.HasPrefix(filename, stem) {
		return false
	}
	rest := filename[len(stem):]
	if rest == "" {
		return false
	}
	if rest[0] == '.' {
		return true
	}
	for _, d := range delimiters {
		if d != "" && strings.HasPrefix(rest, d) {
			return true
		}
	}
	return false
}

func listMatches(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	matches := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !keep(entry.Name()) {
			continue
		}
		matches = append(matches, filepath.Join(dir, entry.Name()))
	}
	return matches, nil
}

func walkMatches(dir string, keep func(string) bool) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !keep(d.Name()) {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir: %w", err)
	}
	return matches, nil
}
