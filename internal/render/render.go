// Package render turns run reports and progress events into terminal output and logs.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"stempack/internal/archive"
	"stempack/internal/pack"
)

var (
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")
	failureColor = lipgloss.Color("#e53935")
	mutedColor   = lipgloss.Color("#6b7280")

	headerStyle = lipgloss.NewStyle().Bold(true)
	stemStyle   = lipgloss.NewStyle().Width(24)
	statusStyle = lipgloss.NewStyle().Width(11)
	countStyle  = lipgloss.NewStyle().Width(7).Align(lipgloss.Right).PaddingRight(2)
	detailStyle = lipgloss.NewStyle().Foreground(mutedColor)
	totalsStyle = lipgloss.NewStyle().MarginTop(1).Bold(true)
)

func statusColor(status archive.Status) lipgloss.Color {
	switch status {
	case archive.StatusSucceeded:
		return successColor
	case archive.StatusSkipped:
		return warningColor
	default:
		return failureColor
	}
}

// Summary renders a per-stem table followed by the run totals.
func Summary(report *pack.RunReport) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(
		stemStyle.Render("STEM") + statusStyle.Render("STATUS") + countStyle.Render("FILES") + "DETAIL"))
	b.WriteString("\n")

	for _, res := range report.Results {
		detail := res.ArchivePath
		switch {
		case res.Err != "":
			detail = res.Err
		case res.Reason != "":
			detail = res.Reason
		}
		b.WriteString(stemStyle.Render(res.Stem))
		b.WriteString(statusStyle.Foreground(statusColor(res.Status)).Render(string(res.Status)))
		b.WriteString(countStyle.Render(fmt.Sprintf("%d", res.FileCount)))
		b.WriteString(detailStyle.Render(detail))
		b.WriteString("\n")
	}

	mode := string(report.Strategy)
	if report.Strategy == pack.ModeParallel {
		mode = fmt.Sprintf("%s x%d", mode, report.Workers)
	}
	if report.Degraded {
		mode += " (degraded)"
	}
	if n := len(report.Abandoned); n > 0 {
		mode += fmt.Sprintf(" (%d abandoned)", n)
	}
	b.WriteString(totalsStyle.Render(fmt.Sprintf(
		"%d stems: %d succeeded, %d skipped, %d failed in %s [%s]",
		report.Total, report.Succeeded, report.Skipped, report.Failed,
		report.Elapsed.Round(time.Millisecond), mode)))
	b.WriteString("\n")
	return b.String()
}

// LogProgress returns a hook that logs run progress.
func LogProgress(logger zerolog.Logger) pack.Hook {
	return func(evt pack.Event) {
		switch evt.Kind {
		case pack.EventPhase:
			if evt.Phase != pack.PhaseStrategySelected {
				logger.Debug().Str("phase", string(evt.Phase)).Msg("run phase")
				return
			}
			e := logger.Info().Str("phase", string(evt.Phase)).
				Str("mode", string(evt.Strategy.Mode)).Int("workers", evt.Strategy.Workers)
			if evt.Strategy.Reason != "" {
				e = e.Str("reason", evt.Strategy.Reason)
			}
			e.Msg("run phase")
		case pack.EventDegraded:
			logger.Warn().Err(evt.Err).Msg("worker pool unavailable, running sequentially")
		case pack.EventResult:
			res := evt.Result
			var e *zerolog.Event
			switch res.Status {
			case archive.StatusSucceeded:
				e = logger.Info()
			case archive.StatusSkipped:
				e = logger.Info().Str("reason", res.Reason)
			default:
				e = logger.Warn().Str("error", res.Err)
			}
			e.Str("stem", res.Stem).
				Str("status", string(res.Status)).
				Int("files", res.FileCount).
				Str("archive", res.ArchivePath).
				Dur("elapsed", res.Elapsed).
				Msg("stem processed")
		}
	}
}
