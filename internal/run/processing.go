package run

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"stempack/internal/pack"
	"stempack/internal/render"
)

// process executes a run that already holds a semaphore slot and releases it on return.
func (m *Manager) process(runID string, opts pack.Options) {
	defer func() { <-m.semaphore }()

	m.mu.Lock()
	current, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return
	}
	current.Status = StatusInProgress
	runPack := m.runPack
	ctx := m.baseCtx
	m.mu.Unlock()
	if err := m.persistRun(current); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist in_progress failed")
	}

	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}
	runLogger := log.Logger.With().Str("run_id", runID).Logger()
	opts.Hook = render.LogProgress(runLogger)

	report, err := runPack(ctx, opts)

	finishedAt := time.Now()
	m.mu.Lock()
	current.FinishedAt = &finishedAt
	if err != nil {
		current.Status = StatusFailed
		current.Error = err.Error()
	} else {
		current.Status = StatusDone
		current.Report = report
	}
	m.mu.Unlock()

	if err != nil {
		runLogger.Warn().Err(err).Msg("run failed")
	} else {
		runLogger.Info().Int("succeeded", report.Succeeded).Int("skipped", report.Skipped).
			Int("failed", report.Failed).Msg("run finished")
	}
	if err := m.persistRun(current); err != nil {
		runLogger.Warn().Err(err).Msg("persist final state failed")
	}
}
