package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stempack/internal/archive"
	"stempack/internal/pack"
)

type dirs struct {
	markers string
	data    string
	state   string
}

func newDirs(t *testing.T) dirs {
	t.Helper()
	root := t.TempDir()
	d := dirs{
		markers: filepath.Join(root, "markers"),
		data:    filepath.Join(root, "data"),
		state:   filepath.Join(root, "state"),
	}
	for _, dir := range []string{d.markers, d.data} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	files := map[string]string{
		filepath.Join(d.markers, "alpha.yml"):  "",
		filepath.Join(d.markers, "beta.yml"):   "",
		filepath.Join(d.data, "alpha_1.csv"):   "a1",
		filepath.Join(d.data, "alpha_2.csv"):   "a2",
		filepath.Join(d.data, "beta_1.csv"):    "b1",
		filepath.Join(d.data, "unrelated.csv"): "x",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return d
}

func newTestManager(t *testing.T, d dirs, maxRuns int) *Manager {
	t.Helper()
	return NewManager(Options{
		StateDir: d.state,
		Base: pack.Options{
			DataDir:    d.data,
			MarkerDir:  d.markers,
			Extensions: []string{".csv"},
			Overwrite:  true,
			Parallel:   pack.ParallelOptions{Enabled: true, MaxWorkers: 2},
		},
		MaxConcurrentRuns: maxRuns,
	})
}

func waitFinished(t *testing.T, m *Manager, runID string) Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := m.Get(runID); ok && (got.Status == StatusDone || got.Status == StatusFailed) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for run %s", runID)
	return Run{}
}

func TestStartRunsPackagingInBackground(t *testing.T) {
	d := newDirs(t)
	m := newTestManager(t, d, 1)

	started, err := m.Start(Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != StatusCreated || started.ID == "" {
		t.Fatalf("unexpected started run: %+v", started)
	}

	got := waitFinished(t, m, started.ID)
	if got.Status != StatusDone || got.Report == nil {
		t.Fatalf("expected done with report, got %+v", got)
	}
	if got.Report.Succeeded != 2 || got.Report.RunID != started.ID {
		t.Fatalf("unexpected report: %+v", got.Report)
	}

	archivePath, err := m.ArchivePath(started.ID, "alpha")
	if err != nil {
		t.Fatalf("archive path: %v", err)
	}
	if filepath.Dir(archivePath) != filepath.Join(d.state, "runs", started.ID, "archives") {
		t.Fatalf("archive written outside run dir: %s", archivePath)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if _, err := m.ArchivePath(started.ID, "gamma"); !errors.Is(err, ErrArchiveNotFound) {
		t.Fatalf("expected ErrArchiveNotFound, got %v", err)
	}
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	m := newTestManager(t, newDirs(t), 1)

	if _, err := m.Start(Request{Layout: "tree"}); !errors.Is(err, pack.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := m.Start(Request{Extensions: []string{" "}}); err == nil {
		t.Fatalf("expected error for blank extensions")
	}
	if len(m.List()) != 0 {
		t.Fatalf("rejected requests must not be recorded")
	}
}

func TestBusyWhileRunning(t *testing.T) {
	m := newTestManager(t, newDirs(t), 1)
	blocker := make(chan struct{})
	m.UsePackFunc(func(ctx context.Context, opts pack.Options) (*pack.RunReport, error) {
		<-blocker
		return &pack.RunReport{RunID: opts.RunID}, nil
	})

	first, err := m.Start(Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsBusy() {
		t.Fatalf("expected manager to be busy while processing")
	}
	if _, err := m.Start(Request{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := m.ArchivePath(first.ID, "alpha"); !errors.Is(err, ErrRunNotFinished) {
		t.Fatalf("expected ErrRunNotFinished, got %v", err)
	}
	close(blocker)

	if !m.WaitAll(context.Background()) {
		t.Fatalf("expected workers to finish")
	}
	if m.IsBusy() {
		t.Fatalf("slot not released")
	}
}

func TestRequestOverridesReachPack(t *testing.T) {
	m := newTestManager(t, newDirs(t), 1)
	seen := make(chan pack.Options, 1)
	m.UsePackFunc(func(ctx context.Context, opts pack.Options) (*pack.RunReport, error) {
		seen <- opts
		return &pack.RunReport{}, nil
	})

	overwrite := false
	if _, err := m.Start(Request{Extensions: []string{"JSON"}, Layout: "Nested", EmptyGroups: "archive", Overwrite: &overwrite}); err != nil {
		t.Fatalf("start: %v", err)
	}
	opts := <-seen
	if len(opts.Extensions) != 1 || opts.Extensions[0] != ".json" {
		t.Fatalf("extensions override lost: %v", opts.Extensions)
	}
	if opts.Layout != archive.LayoutNested || opts.EmptyPolicy != archive.EmptyArchive || opts.Overwrite {
		t.Fatalf("policy overrides lost: %+v", opts)
	}
	if opts.Hook == nil {
		t.Fatalf("expected progress hook to be wired")
	}
	m.WaitAll(context.Background())
}

func TestPackErrorMarksRunFailed(t *testing.T) {
	m := newTestManager(t, newDirs(t), 1)
	m.UsePackFunc(func(ctx context.Context, opts pack.Options) (*pack.RunReport, error) {
		return nil, errors.New("marker dir vanished")
	})
	started, err := m.Start(Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := waitFinished(t, m, started.ID)
	if got.Status != StatusFailed || got.Error != "marker dir vanished" || got.FinishedAt == nil {
		t.Fatalf("unexpected failed run: %+v", got)
	}
}

func TestPersistAndLoadFromDisk(t *testing.T) {
	d := newDirs(t)
	m := newTestManager(t, d, 1)

	r1 := &Run{ID: "r1", Status: StatusInProgress, CreatedAt: time.Now()}
	r2 := &Run{ID: "r2", Status: StatusDone, CreatedAt: time.Now(), Report: &pack.RunReport{Succeeded: 2}}
	if err := m.persistRun(r1); err != nil {
		t.Fatalf("persist r1: %v", err)
	}
	if err := m.persistRun(r2); err != nil {
		t.Fatalf("persist r2: %v", err)
	}

	m2 := newTestManager(t, d, 1)
	if err := m2.LoadFromDisk(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, ok := m2.Get("r1"); !ok || got.Status != StatusFailed {
		t.Fatalf("expected r1 failed after load, got: %+v, ok=%v", got, ok)
	}
	if got, ok := m2.Get("r2"); !ok || got.Status != StatusDone || got.Report.Succeeded != 2 {
		t.Fatalf("expected r2 done after load, got: %+v, ok=%v", got, ok)
	}
	if len(m2.List()) != 2 {
		t.Fatalf("expected two runs listed")
	}
}
