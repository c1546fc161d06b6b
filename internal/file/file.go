package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned output dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// Exists reports whether filename exists. Errors other than "not exist" count as existing
// so callers never overwrite something they could not inspect.
func Exists(filename string) bool {
	_, err := os.Lstat(filename)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// WriteAtomic streams content produced by write into filename.
// The write goes to a temporary file in the same directory, is synced, and then renamed
// onto filename. On any failure the temporary file is removed and filename is untouched.
func WriteAtomic(filename string, write func(w io.Writer) error) error {
	if filename == "" {
		return errors.New("empty filename")
	}

	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	if err := write(tempFile); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return err
	}

	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
func WriteJSONAtomic(filename string, v any) error {
	return WriteAtomic(filename, func(w io.Writer) error {
		jsonEncoder := json.NewEncoder(w)
		jsonEncoder.SetEscapeHTML(true)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}
