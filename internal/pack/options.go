package pack

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"stempack/internal/archive"
	"stempack/internal/stem"
)

// Packager packages one stem. archive.Package is the default; tests inject fakes.
type Packager func(ctx context.Context, task archive.Task) archive.Result

// ParallelOptions configures the worker pool.
type ParallelOptions struct {
	Enabled bool
	// MaxWorkers caps the pool size; 0 means one worker per CPU.
	MaxWorkers int
	// TaskTimeout bounds a single stem; 0 disables the per-task deadline.
	TaskTimeout time.Duration
	// AbandonGrace bounds how long a run waits for interrupted tasks to return before
	// reporting them abandoned; 0 means DefaultAbandonGrace.
	AbandonGrace time.Duration
}

// Options is the resolved configuration of one packaging run.
type Options struct {
	DataDir          string
	MarkerDir        string
	OutputDir        string
	Extensions       []string
	MarkerExtensions []string
	Delimiters       []string
	Recursive        bool
	Layout           archive.Layout
	EmptyPolicy      archive.EmptyPolicy
	Overwrite        bool
	ArchiveExtension string
	Parallel         ParallelOptions

	// RunID identifies the run in the report; a uuid is generated when empty.
	RunID string
	// Hook receives phase, result and degraded-mode events. It is never called concurrently.
	Hook Hook
	// Logger receives debug output; nil disables logging.
	Logger *zerolog.Logger

	Packager    Packager
	PoolFactory PoolFactory
	// CPUCount overrides runtime.NumCPU for the "auto" worker count.
	CPUCount int
}

// Validate reports configuration errors that must stop a run before any task starts.
func (o Options) Validate() error {
	if len(stem.NormalizeExtensions(o.Extensions)) == 0 {
		return configError(ErrNoExtensions)
	}
	if o.OutputDir == "" {
		return configErrorf("empty output directory")
	}
	if err := stem.CheckDir(o.MarkerDir); err != nil {
		return configError(err)
	}
	if err := stem.CheckDir(o.DataDir); err != nil {
		return configError(err)
	}
	switch o.Layout {
	case "", archive.LayoutFlat, archive.LayoutNested:
	default:
		return configErrorf("unknown layout %q", o.Layout)
	}
	switch o.EmptyPolicy {
	case "", archive.EmptySkip, archive.EmptyArchive:
	default:
		return configErrorf("unknown empty group policy %q", o.EmptyPolicy)
	}
	if o.Parallel.MaxWorkers < 0 {
		return configErrorf("invalid max workers: %d", o.Parallel.MaxWorkers)
	}
	if o.Parallel.TaskTimeout < 0 {
		return configErrorf("invalid task timeout: %s", o.Parallel.TaskTimeout)
	}
	if o.Parallel.AbandonGrace < 0 {
		return configErrorf("invalid abandon grace: %s", o.Parallel.AbandonGrace)
	}
	return nil
}

// DefaultAbandonGrace is how long a run waits for interrupted tasks by default.
const DefaultAbandonGrace = 2 * time.Second

func (o Options) abandonGrace() time.Duration {
	if o.Parallel.AbandonGrace > 0 {
		return o.Parallel.AbandonGrace
	}
	return DefaultAbandonGrace
}

func (o Options) cpuCount() int {
	if o.CPUCount > 0 {
		return o.CPUCount
	}
	return runtime.NumCPU()
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}
