// Package pack runs stem-based packaging: it extracts stems from marker files, picks a
// sequential or pooled execution strategy, packages each stem in isolation and returns an
// aggregated RunReport. Per-stem failures are reported as data; only configuration
// errors are returned as errors.
package pack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stempack/internal/archive"
	"stempack/internal/stem"
)

// DefaultMarkerExtensions is used when Options.MarkerExtensions is empty.
var DefaultMarkerExtensions = []string{".yml", ".yaml"}

// Run executes one packaging run.
func Run(ctx context.Context, opts Options) (*RunReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := newRunner(opts)
	return r.run(ctx)
}

type runner struct {
	opts        Options
	log         zerolog.Logger
	packager    Packager
	poolFactory PoolFactory
	locate      stem.LocateOptions

	mu sync.Mutex
	// interrupted holds packaging calls still running after their task was reported.
	interrupted []interruptedTask
}

type interruptedTask struct {
	stem     string
	timedOut bool
	done     <-chan archive.Result
}

func newRunner(opts Options) *runner {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if len(opts.MarkerExtensions) == 0 {
		opts.MarkerExtensions = DefaultMarkerExtensions
	}
	if opts.Layout == "" {
		opts.Layout = archive.LayoutFlat
	}
	if opts.EmptyPolicy == "" {
		opts.EmptyPolicy = archive.EmptySkip
	}
	r := &runner{
		opts:        opts,
		log:         opts.logger().With().Str("run_id", opts.RunID).Logger(),
		packager:    opts.Packager,
		poolFactory: opts.PoolFactory,
		locate: stem.LocateOptions{
			Extensions: opts.Extensions,
			Delimiters: opts.Delimiters,
			Recursive:  opts.Recursive,
		},
	}
	if r.packager == nil {
		r.packager = archive.Package
	}
	if r.poolFactory == nil {
		r.poolFactory = NewWorkerPool
	}
	return r
}

func (r *runner) run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: r.opts.RunID, StartedAt: time.Now()}
	r.emit(Event{Kind: EventPhase, Phase: PhaseInit})

	stems, err := stem.Extract(r.opts.MarkerDir, r.opts.MarkerExtensions)
	if err != nil {
		return nil, configError(err)
	}

	strategy := SelectStrategy(len(stems), r.opts.Parallel, r.opts.cpuCount())
	r.log.Debug().Int("stems", len(stems)).Str("mode", string(strategy.Mode)).
		Int("workers", strategy.Workers).Str("reason", strategy.Reason).Msg("strategy selected")
	r.emit(Event{Kind: EventPhase, Phase: PhaseStrategySelected, Strategy: strategy})

	var results []archive.Result
	if strategy.Mode == ModeParallel {
		r.emit(Event{Kind: EventPhase, Phase: PhaseParallel, Strategy: strategy})
		results, err = r.runParallel(ctx, stems, strategy.Workers)
		if err != nil {
			r.log.Debug().Err(err).Msg("worker pool unavailable, falling back to sequential")
			r.emit(Event{Kind: EventDegraded, Strategy: strategy, Err: err})
			report.Degraded = true
			strategy = Strategy{Mode: ModeSequential, Workers: 1, Reason: "worker pool unavailable"}
		}
	}
	if strategy.Mode == ModeSequential {
		r.emit(Event{Kind: EventPhase, Phase: PhaseSequential, Strategy: strategy})
		results = r.runSequential(ctx, stems)
	}

	r.emit(Event{Kind: EventPhase, Phase: PhaseAggregating, Strategy: strategy})
	report.Abandoned = r.settle(results)
	if len(report.Abandoned) > 0 {
		r.log.Warn().Strs("stems", report.Abandoned).Msg("packaging calls still running after grace period")
	}
	report.Strategy = strategy.Mode
	report.Workers = strategy.Workers
	report.aggregate(results)
	report.FinishedAt = time.Now()
	report.Elapsed = report.FinishedAt.Sub(report.StartedAt)

	r.log.Debug().Int("succeeded", report.Succeeded).Int("skipped", report.Skipped).
		Int("failed", report.Failed).Dur("elapsed", report.Elapsed).Msg("run finished")
	r.emit(Event{Kind: EventPhase, Phase: PhaseDone, Strategy: strategy})
	return report, nil
}

// execute packages one stem, enforcing the per-task timeout. It always returns a result.
func (r *runner) execute(ctx context.Context, stemName string) archive.Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		res := archive.Failed(stemName, err)
		res.Elapsed = time.Since(start)
		return res
	}

	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.Parallel.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, r.opts.Parallel.TaskTimeout)
	}
	defer cancel()

	done := make(chan archive.Result, 1)
	go func() {
		done <- r.packageStem(taskCtx, stemName)
	}()

	var res archive.Result
	select {
	case res = <-done:
	case <-taskCtx.Done():
		cause := r.interruption(ctx, taskCtx)
		select {
		case res = <-done:
		default:
			r.mu.Lock()
			r.interrupted = append(r.interrupted, interruptedTask{
				stem:     stemName,
				timedOut: errors.Is(cause, ErrTaskTimeout),
				done:     done,
			})
			r.mu.Unlock()
		}
		if res.Status != archive.StatusSucceeded && res.Status != archive.StatusSkipped {
			res = archive.Failed(stemName, cause)
		}
	}
	if res.Elapsed == 0 {
		res.Elapsed = time.Since(start)
	}
	r.log.Debug().Str("stem", stemName).Str("status", string(res.Status)).
		Int("files", res.FileCount).Str("error", res.Err).Msg("stem packaged")
	return res
}

// settle waits, up to the abandon grace, for packaging calls that were still running
// when their task was interrupted. A call interrupted by run cancellation that still
// produced its archive replaces the failed result, so the report matches the output
// directory; a timed-out task stays failed. Calls that never return are listed as
// abandoned.
func (r *runner) settle(results []archive.Result) []string {
	r.mu.Lock()
	pending := r.interrupted
	r.interrupted = nil
	r.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	grace := time.NewTimer(r.opts.abandonGrace())
	defer grace.Stop()
	expired := false

	var abandoned []string
	for _, task := range pending {
		var late archive.Result
		returned := false
		if expired {
			select {
			case late = <-task.done:
				returned = true
			default:
			}
		} else {
			select {
			case late = <-task.done:
				returned = true
			case <-grace.C:
				expired = true
			}
		}
		if !returned {
			abandoned = append(abandoned, task.stem)
			continue
		}
		if task.timedOut || (late.Status != archive.StatusSucceeded && late.Status != archive.StatusSkipped) {
			continue
		}
		for i := range results {
			if results[i].Stem == task.stem {
				results[i] = late
			}
		}
	}
	sort.Strings(abandoned)
	return abandoned
}

// packageStem locates the stem's files and runs the packager, turning panics into
// failed results.
func (r *runner) packageStem(ctx context.Context, stemName string) (res archive.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = archive.Failed(stemName, fmt.Errorf("%w: %v", ErrTaskPanic, p))
		}
	}()

	files, err := stem.Locate(stemName, r.opts.DataDir, r.locate)
	if err != nil {
		return archive.Failed(stemName, fmt.Errorf("locate files: %w", err))
	}
	return r.packager(ctx, archive.Task{
		Stem:        stemName,
		Files:       files,
		SourceDir:   r.opts.DataDir,
		OutputDir:   r.opts.OutputDir,
		ArchiveName: archive.ArchiveName(stemName, r.opts.ArchiveExtension),
		Layout:      r.opts.Layout,
		EmptyPolicy: r.opts.EmptyPolicy,
		Overwrite:   r.opts.Overwrite,
	})
}

// interruption explains why taskCtx ended: the per-task deadline or the run's own context.
func (r *runner) interruption(ctx, taskCtx context.Context) error {
	err := taskCtx.Err()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrTaskTimeout, r.opts.Parallel.TaskTimeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (r *runner) emit(evt Event) {
	if r.opts.Hook != nil {
		r.opts.Hook(evt)
	}
}

func (r *runner) emitResult(res archive.Result) {
	r.emit(Event{Kind: EventResult, Result: &res})
}
