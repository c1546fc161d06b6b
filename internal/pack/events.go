package pack

import "stempack/internal/archive"

// Phase is a step of the run state machine:
// init -> strategy_selected -> sequential_running|parallel_running -> aggregating -> done.
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseStrategySelected Phase = "strategy_selected"
	PhaseSequential       Phase = "sequential_running"
	PhaseParallel         Phase = "parallel_running"
	PhaseAggregating      Phase = "aggregating"
	PhaseDone             Phase = "done"
)

type EventKind string

const (
	EventPhase    EventKind = "phase"
	EventResult   EventKind = "result"
	EventDegraded EventKind = "degraded"
)

// Event is delivered to a Hook. Result is set for EventResult, Err for EventDegraded,
// Strategy from PhaseStrategySelected on.
type Event struct {
	Kind     EventKind
	Phase    Phase
	Strategy Strategy
	Result   *archive.Result
	Err      error
}

// Hook subscribes to run progress.
type Hook func(Event)
