// Package executor drives iterative optimization solvers through a common
// protocol: a solver initializes a state, advances it one iteration at a
// time, and decides when it is done, while the executor enforces the
// iteration and time budgets and dispatches observers.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Problem evaluates the cost vector at x: element 0 is the objective, the
// remaining elements are constraint values (feasible when >= 0).
// Implementations must not modify x.
type Problem interface {
	Cost(x []float64) ([]float64, error)
}

// ProblemFunc adapts a plain function to Problem.
type ProblemFunc func(x []float64) ([]float64, error)

// Cost calls f(x).
func (f ProblemFunc) Cost(x []float64) ([]float64, error) {
	return f(x)
}

// State is the read-only view of a solver state the executor and observers
// rely on.
type State interface {
	// Iter is the number of completed iterations.
	Iter() int
	// Param is the most recent parameter vector.
	Param() []float64
	// BestParam is the best parameter vector found so far.
	BestParam() ([]float64, error)
	// BestCost is the objective value at BestParam.
	BestCost() (float64, error)
	// CostEvals is the number of problem evaluations so far.
	CostEvals() int
}

// KV carries solver-specific key/value pairs for observers, in log/slog
// argument order.
type KV []any

// Solver is implemented by every optimization algorithm the executor can run.
type Solver[S State] interface {
	// Name identifies the algorithm in logs and results.
	Name() string
	// NewState returns a fresh state for a run.
	NewState() S
	// Init prepares the state before the first iteration. A returned error
	// aborts the run.
	Init(p Problem, state S, cfg Config) (KV, error)
	// NextIter advances the state by one iteration.
	NextIter(p Problem, state S, cfg Config) (KV, error)
	// Terminate reports whether the solver considers the run finished.
	Terminate(state S) Termination
}

// Config holds the run-wide settings set through Executor.Configure.
type Config struct {
	// MaxIters bounds the number of iterations; 0 means unlimited. Solvers
	// that iterate internally may also read it as their own budget.
	MaxIters int
	// MaxTime bounds the wall-clock time of the run; 0 means unlimited.
	MaxTime time.Duration
	// IPrint is the solver verbosity level (0 silent).
	IPrint int
	// Convergence enables the no-improvement stop.
	Convergence ConvergenceConfig
}

// Executor runs a Solver on a Problem.
type Executor[S State] struct {
	problem   Problem
	solver    Solver[S]
	cfg       Config
	timer     bool
	observers []observerEntry
	logger    *slog.Logger
}

// New creates an executor with an empty configuration.
func New[S State](problem Problem, solver Solver[S]) *Executor[S] {
	return &Executor[S]{
		problem: problem,
		solver:  solver,
		logger:  slog.Default(),
	}
}

// Configure applies fn to the run configuration.
func (e *Executor[S]) Configure(fn func(cfg *Config)) *Executor[S] {
	fn(&e.cfg)
	return e
}

// Timer enables measuring the run's wall-clock time in the result.
func (e *Executor[S]) Timer(enabled bool) *Executor[S] {
	e.timer = enabled
	return e
}

// WithLogger replaces the executor's logger (slog.Default by default).
func (e *Executor[S]) WithLogger(logger *slog.Logger) *Executor[S] {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// AddObserver registers an observer notified according to mode.
func (e *Executor[S]) AddObserver(obs Observer, mode ObserverMode) *Executor[S] {
	e.observers = append(e.observers, observerEntry{obs: obs, mode: mode})
	return e
}

// Run executes the solver until it, the budget, or ctx stops it.
//
// The returned Result is never nil, even when an error is returned, so
// callers can inspect the state of a failed run. The error is either an
// error from Init or NextIter, an observer error, the context error, or the
// error carried by the solver's Termination.
func (e *Executor[S]) Run(ctx context.Context) (*Result[S], error) {
	start := time.Now()
	state := e.solver.NewState()
	res := &Result[S]{State: state, Solver: e.solver.Name()}

	kv, err := e.solver.Init(e.problem, state, e.cfg)
	if err != nil {
		err = fmt.Errorf("%s: init: %w", e.solver.Name(), err)
		res.Termination = Termination{Reason: Aborted, Message: err.Error(), Err: err}
		res.finish(start, e.timer)
		return res, err
	}
	if err := e.notifyInit(state, kv); err != nil {
		return res, err
	}

	var tracker *ConvergenceTracker
	if e.cfg.Convergence.Enabled {
		tracker = NewConvergenceTracker(e.cfg.Convergence)
	}
	lastBest := bestOrInf(state)

	for {
		if term := e.solver.Terminate(state); term.Terminated() {
			res.Termination = term
			break
		}
		if err := ctx.Err(); err != nil {
			res.Termination = Termination{Reason: Interrupted, Message: err.Error(), Err: err}
			break
		}
		if e.cfg.MaxIters > 0 && state.Iter() >= e.cfg.MaxIters {
			res.Termination = Termination{Reason: MaxItersReached}
			break
		}
		if e.cfg.MaxTime > 0 && time.Since(start) >= e.cfg.MaxTime {
			res.Termination = Termination{Reason: MaxTimeReached}
			break
		}

		kv, err := e.solver.NextIter(e.problem, state, e.cfg)
		if err != nil {
			res.Termination = Termination{Reason: Aborted, Message: err.Error(), Err: err}
			res.finish(start, e.timer)
			return res, err
		}

		best := bestOrInf(state)
		improved := best < lastBest
		if improved {
			lastBest = best
		}
		if err := e.notifyIter(state, kv, improved); err != nil {
			res.finish(start, e.timer)
			return res, err
		}
		if tracker != nil && tracker.Update(best) {
			res.Termination = Termination{Reason: NoImprovement}
			break
		}
	}

	res.finish(start, e.timer)
	e.logger.Debug("Run finished",
		"solver", res.Solver,
		"termination", res.Termination.String(),
		"iterations", state.Iter(),
		"cost_evals", state.CostEvals(),
	)
	return res, res.Termination.Err
}

func bestOrInf(s State) float64 {
	best, err := s.BestCost()
	if err != nil {
		return posInf
	}
	return best
}
