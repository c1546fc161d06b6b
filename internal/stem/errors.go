package stem

import (
	"errors"
	"fmt"
)

var ErrNotDirectory = errors.New("not a directory")

// DirectoryNotFoundError reports a stem or data directory that does not exist
// or is not a directory.
type DirectoryNotFoundError struct {
	Path string
	Err  error
}

func (e *DirectoryNotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("directory not found: %s: %v", e.Path, e.Err)
}

func (e *DirectoryNotFoundError) Unwrap() error { return e.Err }
