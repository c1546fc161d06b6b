package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fileutil "stempack/internal/file"
)

// RunStore abstracts persistence of run records and the location of their archives.
type RunStore interface {
	SaveRun(ctx context.Context, r *Run) error
	LoadRuns(ctx context.Context) ([]*Run, error)
	ArchiveDir(runID string) string
}

// fileStore implements RunStore on the local filesystem under stateDir.
type fileStore struct {
	stateDir string
}

func NewFileStore(stateDir string) RunStore { //nolint:ireturn
	if stateDir == "" {
		stateDir = "state"
	}
	return &fileStore{stateDir: stateDir}
}

func (s *fileStore) runDir(runID string) string {
	return filepath.Join(s.stateDir, "runs", runID)
}

func (s *fileStore) statusPath(runID string) string {
	return filepath.Join(s.runDir(runID), "status.json")
}

func (s *fileStore) ArchiveDir(runID string) string {
	return filepath.Join(s.runDir(runID), "archives")
}

func (s *fileStore) SaveRun(ctx context.Context, r *Run) error { //nolint:revive // context reserved for other stores
	if err := fileutil.EnsureDir(s.runDir(r.ID)); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	return fileutil.WriteJSONAtomic(s.statusPath(r.ID), r) //nolint:wrapcheck
}

func (s *fileStore) LoadRuns(ctx context.Context) ([]*Run, error) { //nolint:revive // context reserved for other stores
	root := filepath.Join(s.stateDir, "runs")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	runs := make([]*Run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(s.statusPath(e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var r Run
		if err := json.Unmarshal(b, &r); err != nil {
			continue
		}
		runs = append(runs, &r)
	}
	return runs, nil
}
