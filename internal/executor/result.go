package executor

import (
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of Executor.Run.
type Result[S State] struct {
	// State is the solver state after the last iteration.
	State S
	// Solver is the solver name.
	Solver      string
	Termination Termination
	// Elapsed is the wall-clock duration of the run; zero unless the timer
	// was enabled.
	Elapsed time.Duration
}

func (r *Result[S]) finish(start time.Time, timer bool) {
	if timer {
		r.Elapsed = time.Since(start)
	}
}

// String renders a multi-line summary of the run.
func (r *Result[S]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "OptimizationResult:\n")
	fmt.Fprintf(&sb, "    Solver:        %s\n", r.Solver)
	fmt.Fprintf(&sb, "    Termination:   %s\n", r.Termination)
	fmt.Fprintf(&sb, "    Iterations:    %d\n", r.State.Iter())
	fmt.Fprintf(&sb, "    Cost evals:    %d\n", r.State.CostEvals())
	if param, err := r.State.BestParam(); err == nil {
		fmt.Fprintf(&sb, "    Best param:    %v\n", param)
	} else {
		fmt.Fprintf(&sb, "    Best param:    none\n")
	}
	if cost, err := r.State.BestCost(); err == nil {
		fmt.Fprintf(&sb, "    Best cost:     %g\n", cost)
	} else {
		fmt.Fprintf(&sb, "    Best cost:     none\n")
	}
	if r.Elapsed > 0 {
		fmt.Fprintf(&sb, "    Time:          %s\n", r.Elapsed)
	}
	return sb.String()
}
