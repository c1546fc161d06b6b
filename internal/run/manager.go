// Package run tracks packaging runs started in the background by the HTTP service.
package run

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stempack/internal/archive"
	"stempack/internal/pack"
	"stempack/internal/stem"
)

// PackFunc executes one packaging run. pack.Run is the default.
type PackFunc func(ctx context.Context, opts pack.Options) (*pack.RunReport, error)

// Manager keeps runs in memory, persists them through a RunStore and bounds how many
// run at once.
type Manager struct {
	mu         sync.RWMutex
	runs       map[string]*Run
	base       pack.Options
	semaphore  chan struct{}
	runPack    PackFunc
	runTimeout time.Duration
	workersWG  sync.WaitGroup
	baseCtx    context.Context
	store      RunStore
}

// NewManager creates a manager with provided configuration
func NewManager(opts Options) *Manager {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = defaultMaxConcurrent
	}
	return &Manager{
		runs:       make(map[string]*Run),
		base:       opts.Base,
		semaphore:  make(chan struct{}, opts.MaxConcurrentRuns),
		runPack:    pack.Run,
		runTimeout: opts.RunTimeout,
		baseCtx:    context.Background(),
		store:      NewFileStore(opts.StateDir),
	}
}

// IsBusy reports whether the maximum number of runs is in flight.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Start validates the request, records a new run and packages it in the background.
// Configuration errors are returned before the run is recorded.
func (m *Manager) Start(req Request) (Run, error) {
	runID := uuid.NewString()
	opts, err := m.resolve(runID, req)
	if err != nil {
		return Run{}, err
	}

	select {
	case m.semaphore <- struct{}{}:
	default:
		return Run{}, ErrBusy
	}

	newRun := &Run{
		ID:        runID,
		Status:    StatusCreated,
		CreatedAt: time.Now(),
		OutputDir: opts.OutputDir,
	}
	m.mu.Lock()
	m.runs[runID] = newRun
	snapshot := *newRun
	m.mu.Unlock()

	if err := m.persistRun(newRun); err != nil { // best-effort
		log.Warn().Str("run_id", runID).Err(err).Msg("persist run failed")
	}

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.process(runID, opts)
	}()
	return snapshot, nil
}

func (m *Manager) resolve(runID string, req Request) (pack.Options, error) {
	opts := m.base
	opts.RunID = runID
	opts.OutputDir = m.store.ArchiveDir(runID)
	if len(req.Extensions) > 0 {
		opts.Extensions = stem.NormalizeExtensions(req.Extensions)
	}
	if req.Layout != "" {
		opts.Layout = archive.Layout(strings.ToLower(req.Layout))
	}
	if req.EmptyGroups != "" {
		opts.EmptyPolicy = archive.EmptyPolicy(strings.ToLower(req.EmptyGroups))
	}
	if req.Overwrite != nil {
		opts.Overwrite = *req.Overwrite
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("resolve run options: %w", err)
	}
	return opts, nil
}

// Get returns a snapshot of a run by ID
func (m *Manager) Get(runID string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.runs[runID]
	if !ok {
		return Run{}, false
	}
	return *found, true
}

// List returns snapshots of all runs, newest first.
func (m *Manager) List() []Run {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	m.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// ArchivePath resolves the archive a finished run produced for stem.
func (m *Manager) ArchivePath(runID, stemName string) (string, error) {
	found, ok := m.Get(runID)
	if !ok {
		return "", ErrRunNotFound
	}
	if found.Status != StatusDone || found.Report == nil {
		return "", ErrRunNotFinished
	}
	res, ok := found.Report.Result(stemName)
	if !ok || res.ArchivePath == "" || res.Status == archive.StatusFailed {
		return "", ErrArchiveNotFound
	}
	return res.ArchivePath, nil
}

// SetBaseContext sets the context that bounds background runs.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight runs finish or the context is done.
// Returns true if all runs finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UsePackFunc allows tests to inject a fake packaging run.
// Not safe for concurrent mutation with running runs; intended for test setup only.
func (m *Manager) UsePackFunc(fn PackFunc) {
	m.mu.Lock()
	m.runPack = fn
	m.mu.Unlock()
}

// persistRun writes run state through the store.
func (m *Manager) persistRun(r *Run) error {
	m.mu.RLock()
	snapshot := *r
	m.mu.RUnlock()
	return m.store.SaveRun(context.Background(), &snapshot) //nolint:wrapcheck
}
