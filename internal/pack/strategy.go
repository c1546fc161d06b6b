package pack

// Mode is the execution strategy of a run.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Strategy is the outcome of SelectStrategy.
type Strategy struct {
	Mode    Mode
	Workers int
	Reason  string
}

// SelectStrategy picks sequential execution for trivial workloads and otherwise a pool
// of min(configured or cpus, stemCount) workers.
func SelectStrategy(stemCount int, p ParallelOptions, cpus int) Strategy {
	workers := p.MaxWorkers
	if workers <= 0 {
		workers = cpus
	}
	switch {
	case !p.Enabled:
		return Strategy{Mode: ModeSequential, Workers: 1, Reason: "parallelism disabled"}
	case stemCount <= 1:
		return Strategy{Mode: ModeSequential, Workers: 1, Reason: "single stem"}
	case workers <= 1:
		return Strategy{Mode: ModeSequential, Workers: 1, Reason: "single worker"}
	}
	if workers > stemCount {
		workers = stemCount
	}
	return Strategy{Mode: ModeParallel, Workers: workers}
}
