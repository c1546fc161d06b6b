package pack

import (
	"sort"
	"time"

	"stempack/internal/archive"
)

// RunReport aggregates every stem's outcome for one run. Results are sorted by stem.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Strategy   Mode             `json:"strategy"`
	Workers    int              `json:"workers"`
	Degraded   bool             `json:"degraded,omitempty"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Results    []archive.Result `json:"results"`
	// Abandoned lists interrupted stems whose packaging call had not returned when the
	// run finished.
	Abandoned  []string         `json:"abandoned,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// Result returns the outcome for stem.
func (r *RunReport) Result(stem string) (archive.Result, bool) {
	i := sort.Search(len(r.Results), func(i int) bool { return r.Results[i].Stem >= stem })
	if i < len(r.Results) && r.Results[i].Stem == stem {
		return r.Results[i], true
	}
	return archive.Result{}, false
}

// Stems lists the stems present in the report.
func (r *RunReport) Stems() []string {
	stems := make([]string, len(r.Results))
	for i, res := range r.Results {
		stems[i] = res.Stem
	}
	return stems
}

func (r *RunReport) aggregate(results []archive.Result) {
	sorted := make([]archive.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Stem < sorted[j].Stem })

	r.Results = sorted
	r.Total = len(sorted)
	r.Succeeded, r.Skipped, r.Failed = 0, 0, 0
	for _, res := range sorted {
		switch res.Status {
		case archive.StatusSucceeded:
			r.Succeeded++
		case archive.StatusSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}
