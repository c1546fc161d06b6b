package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	fileutil "stempack/internal/file"
)

// DefaultExtension is the archive file extension used when none is configured.
const DefaultExtension = "zip"

const (
	ReasonNoFiles       = "no matching files"
	ReasonArchiveExists = "archive exists"
)

var ErrNoOutputDir = errors.New("empty output directory")

// Status is the outcome of packaging one stem.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Layout selects how archive member names are derived from file paths.
type Layout string

const (
	// LayoutFlat stores bare filenames.
	LayoutFlat Layout = "flat"
	// LayoutNested stores paths relative to the source directory.
	LayoutNested Layout = "nested"
)

// EmptyPolicy decides what happens to a stem with no matching files.
type EmptyPolicy string

const (
	// EmptySkip reports the stem as skipped and writes nothing.
	EmptySkip EmptyPolicy = "skip"
	// EmptyArchive writes a valid archive with zero members.
	EmptyArchive EmptyPolicy = "archive"
)

// Task is the unit of work for one stem.
type Task struct {
	Stem        string
	Files       []string
	SourceDir   string
	OutputDir   string
	ArchiveName string
	Layout      Layout
	EmptyPolicy EmptyPolicy
	Overwrite   bool
}

// Result describes the outcome of packaging a single stem. Failures are carried in Err,
// never returned as errors.
type Result struct {
	Stem        string        `json:"stem"`
	Status      Status        `json:"status"`
	ArchivePath string        `json:"archive_path,omitempty"`
	FileCount   int           `json:"file_count"`
	Members     []string      `json:"members,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Err         string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Failed builds a failed result for stem.
func Failed(stem string, err error) Result {
	return Result{Stem: stem, Status: StatusFailed, Err: err.Error()}
}

// ArchiveName returns the archive filename for a stem.
func ArchiveName(stem, extension string) string {
	ext := strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return stem + "." + ext
}

// Package writes the task's files into a single archive and reports the outcome.
// The archive appears under its final name only once it is completely written.
func Package(ctx context.Context, task Task) (result Result) {
	start := time.Now()
	result = Result{Stem: task.Stem}
	defer func() { result.Elapsed = time.Since(start) }()

	if task.OutputDir == "" {
		result.Status, result.Err = StatusFailed, ErrNoOutputDir.Error()
		return result
	}
	name := task.ArchiveName
	if name == "" {
		name = ArchiveName(task.Stem, DefaultExtension)
	}
	destinationPath := filepath.Join(task.OutputDir, name)

	if len(task.Files) == 0 && task.EmptyPolicy != EmptyArchive {
		result.Status, result.Reason = StatusSkipped, ReasonNoFiles
		return result
	}
	if !task.Overwrite && fileutil.Exists(destinationPath) {
		result.Status, result.Reason = StatusSkipped, ReasonArchiveExists
		result.ArchivePath = destinationPath
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Status, result.Err = StatusFailed, err.Error()
		return result
	}

	members := entryNames(task)
	err := fileutil.WriteAtomic(destinationPath, func(w io.Writer) error {
		zipWriter := zip.NewWriter(w)
		for i, sourcePath := range task.Files {
			if err := addFile(ctx, zipWriter, sourcePath, members[i]); err != nil {
				_ = zipWriter.Close()
				return err
			}
		}
		if err := zipWriter.Close(); err != nil {
			return fmt.Errorf("close zip writer: %w", err)
		}
		return nil
	})
	if err != nil {
		result.Status, result.Err = StatusFailed, err.Error()
		return result
	}

	result.Status = StatusSucceeded
	result.ArchivePath = destinationPath
	result.FileCount = len(members)
	result.Members = members
	return result
}

// addFile copies one source file into the archive under entryName.
func addFile(ctx context.Context, zipWriter *zip.Writer, sourcePath, entryName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sourceFile, err := os.Open(sourcePath) //nolint:gosec // path comes from the data directory listing
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(sourcePath), err)
	}
	defer func() { _ = sourceFile.Close() }()

	info, err := sourceFile.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(sourcePath), err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", entryName, err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	zipEntryWriter, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip entry create %s: %w", entryName, err)
	}
	if _, err := io.Copy(zipEntryWriter, ctxReader{ctx: ctx, r: sourceFile}); err != nil {
		return fmt.Errorf("copy %s into zip: %w", entryName, err)
	}
	return nil
}

// entryNames derives archive member names in file order. Names that collide get a
// numbered suffix (report.csv, report(1).csv) that is itself checked against every
// name already taken.
func entryNames(task Task) []string {
	names := make([]string, len(task.Files))
	usedNames := make(map[string]struct{}, len(task.Files))
	suffixes := make(map[string]int)
	for i, sourcePath := range task.Files {
		name := filepath.Base(sourcePath)
		if task.Layout == LayoutNested {
			name = nestedName(task.SourceDir, sourcePath)
		}
		if _, taken := usedNames[name]; taken {
			ext := filepath.Ext(name)
			base := strings.TrimSuffix(name, ext)
			var candidate string
			for {
				suffixes[name]++
				candidate = fmt.Sprintf("%s(%d)%s", base, suffixes[name], ext)
				if _, taken := usedNames[candidate]; !taken {
					break
				}
			}
			name = candidate
		}
		usedNames[name] = struct{}{}
		names[i] = name
	}
	return names
}

func nestedName(sourceDir, sourcePath string) string {
	if sourceDir == "" {
		return filepath.Base(sourcePath)
	}
	rel, err := filepath.Rel(sourceDir, sourcePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(sourcePath)
	}
	return filepath.ToSlash(rel)
}

// ctxReader stops a copy as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
