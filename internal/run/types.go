package run

import (
	"time"

	"stempack/internal/pack"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Run is a packaging run started through the service.
type Run struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	OutputDir  string          `json:"output_dir"`
	Error      string          `json:"error,omitempty"`
	Report     *pack.RunReport `json:"report,omitempty"`
}

// Request overrides parts of the base configuration for one run.
type Request struct {
	Extensions  []string `json:"extensions"`
	Layout      string   `json:"layout"`
	EmptyGroups string   `json:"empty_groups"`
	Overwrite   *bool    `json:"overwrite"`
}

type Options struct {
	StateDir          string
	Base              pack.Options
	MaxConcurrentRuns int
	RunTimeout        time.Duration
}

const defaultMaxConcurrent = 2
