package executor

import "math"

var posInf = math.Inf(1)

// Reason classifies why a run ended.
type Reason string

const (
	NotTerminated   Reason = ""
	MaxItersReached Reason = "max_iters_reached"
	MaxTimeReached  Reason = "max_time_reached"
	NoImprovement   Reason = "no_improvement"
	Interrupted     Reason = "interrupted"
	Aborted         Reason = "aborted"
	// SolverConverged, SolverExhausted and SolverFailed are reported by
	// solvers through Terminate.
	SolverConverged Reason = "solver_converged"
	SolverExhausted Reason = "solver_exhausted"
	SolverFailed    Reason = "solver_failed"
)

// Termination describes the end of a run.
type Termination struct {
	Reason Reason
	// Message is a solver-specific detail, e.g. the status name.
	Message string
	// Err is non-nil for runs that ended in failure; Run returns it.
	Err error
}

// Terminated reports whether the termination carries a reason.
func (t Termination) Terminated() bool {
	return t.Reason != NotTerminated
}

// Failed reports whether the run ended in failure.
func (t Termination) Failed() bool {
	return t.Err != nil
}

func (t Termination) String() string {
	switch {
	case t.Reason == NotTerminated:
		return "running"
	case t.Message != "":
		return string(t.Reason) + "(" + t.Message + ")"
	}
	return string(t.Reason)
}
