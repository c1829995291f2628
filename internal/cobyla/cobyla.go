// Package cobyla implements Powell's COBYLA method (Constrained Optimization
// BY Linear Approximations) for derivative-free minimization subject to
// inequality constraints c_k(x) >= 0.
//
// The iteration keeps a simplex of n+1 points, builds linear models of the
// objective and every constraint from it, and solves a trust-region
// subproblem whose radius rho shrinks from 1 (in variables scaled by the
// initial step) down to a final radius derived from the x tolerances.
package cobyla

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Code is the raw termination code reported by Minimize. The numeric values
// follow the NLopt result convention so callers can translate them with a
// plain table.
type Code int

const (
	Failure         Code = -1
	InvalidArgs     Code = -2
	OutOfMemory     Code = -3
	RoundoffLimited Code = -4
	ForcedStop      Code = -5

	Success        Code = 1
	StopValReached Code = 2
	FtolReached    Code = 3
	XtolReached    Code = 4
	MaxEvalReached Code = 5
	MaxTimeReached Code = 6
)

// running is the internal "keep iterating" marker; never returned.
const running Code = 0

var codeNames = map[Code]string{
	Failure:         "failure",
	InvalidArgs:     "invalid_args",
	OutOfMemory:     "out_of_memory",
	RoundoffLimited: "roundoff_limited",
	ForcedStop:      "forced_stop",
	Success:         "success",
	StopValReached:  "stopval_reached",
	FtolReached:     "ftol_reached",
	XtolReached:     "xtol_reached",
	MaxEvalReached:  "maxeval_reached",
	MaxTimeReached:  "maxtime_reached",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// ErrForcedStop may be returned (or wrapped) by a Func to abort the run.
// Minimize then reports ForcedStop instead of an error.
var ErrForcedStop = errors.New("cobyla: forced stop")

// Func evaluates the problem at x and returns [f(x), c_1(x), ..., c_m(x)].
// The slice x belongs to the caller of Func only for the duration of the call.
type Func func(x []float64) ([]float64, error)

// Options controls a single Minimize call.
type Options struct {
	// RhoBeg is the initial step per variable. Variables are scaled by it
	// internally, so the trust region starts at radius 1.
	RhoBeg []float64

	// RhoEnd is the final trust-region radius in scaled variables. Zero means
	// the radius keeps shrinking until another criterion stops the run.
	RhoEnd float64

	FtolRel float64
	FtolAbs float64
	XtolRel float64
	XtolAbs []float64

	// StopVal stops the run as soon as a feasible point with f <= StopVal is
	// evaluated. Only honoured when UseStopVal is set.
	StopVal    float64
	UseStopVal bool

	// MaxEval bounds the number of evaluations; <= 0 means unlimited.
	MaxEval int
	// MaxTime bounds the wall-clock time; <= 0 means unlimited.
	MaxTime time.Duration

	// IPrint selects the verbosity of Logger: 0 silent, 1 final summary,
	// 2 each radius reduction, 3 every evaluation.
	IPrint int
	Logger *slog.Logger
}

// Result is the outcome of Minimize.
type Result struct {
	// X is the returned point: the best simplex vertex, or the point that
	// reached StopVal.
	X []float64
	// Cost is [f, c_1..c_m] at X; nil if nothing was evaluated.
	Cost []float64
	Code Code
	// Evals is the number of calls made to the Func.
	Evals int
	// Rho is the trust-region radius (scaled) at exit.
	Rho float64
}

// Feasible reports whether every constraint of the result is >= -slack.
func (r Result) Feasible(slack float64) bool {
	if len(r.Cost) == 0 {
		return false
	}
	for _, c := range r.Cost[1:] {
		if c < -slack {
			return false
		}
	}
	return true
}

// RhoEndFromXtol derives the final trust-region radius NLopt-style: the
// larger of xtolRel and every xtolAbs[i]/rhobeg[i].
func RhoEndFromXtol(xtolRel float64, xtolAbs, rhobeg []float64) float64 {
	rhoend := math.Max(xtolRel, 0)
	for i, a := range xtolAbs {
		if a <= 0 || i >= len(rhobeg) || rhobeg[i] == 0 {
			continue
		}
		if v := a / math.Abs(rhobeg[i]); v > rhoend {
			rhoend = v
		}
	}
	return rhoend
}

// Minimize runs COBYLA from x0 on a problem with m constraints.
//
// Invalid arguments are reported as a Result with Code InvalidArgs and a
// non-nil error, before any evaluation. An error returned by fn that does not
// wrap ErrForcedStop ends the run with Code Failure and is returned as is.
func Minimize(fn Func, x0 []float64, m int, opts Options) (Result, error) {
	n := len(x0)
	if err := validate(fn, x0, m, opts); err != nil {
		return Result{X: append([]float64(nil), x0...), Code: InvalidArgs}, err
	}

	s := newSolver(fn, x0, m, opts)
	code, err := s.cobylb()
	res := s.result(code)
	if opts.IPrint >= 1 && s.logger != nil {
		s.logger.Info("cobyla finished",
			"code", code.String(),
			"nfvals", s.nfvals,
			"rho", s.rho,
			"n", n,
			"m", m,
		)
	}
	return res, err
}

func validate(fn Func, x0 []float64, m int, opts Options) error {
	n := len(x0)
	switch {
	case fn == nil:
		return errors.New("cobyla: nil objective")
	case n == 0:
		return errors.New("cobyla: empty starting point")
	case m < 0:
		return fmt.Errorf("cobyla: negative constraint count %d", m)
	case len(opts.RhoBeg) != n:
		return fmt.Errorf("cobyla: rhobeg has %d entries, want %d", len(opts.RhoBeg), n)
	case len(opts.XtolAbs) != 0 && len(opts.XtolAbs) != n:
		return fmt.Errorf("cobyla: xtol_abs has %d entries, want %d", len(opts.XtolAbs), n)
	case opts.RhoEnd < 0 || math.IsNaN(opts.RhoEnd):
		return fmt.Errorf("cobyla: invalid rhoend %v", opts.RhoEnd)
	}
	for i, v := range x0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("cobyla: x0[%d] is not finite", i)
		}
	}
	for i, r := range opts.RhoBeg {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("cobyla: rhobeg[%d] = %v must be positive and finite", i, r)
		}
	}
	return nil
}

// relStop is NLopt's relative/absolute closeness test. A tolerance <= 0 never
// triggers.
func relStop(a, b, rel, abs float64) bool {
	d := math.Abs(a - b)
	if d < abs {
		return true
	}
	if rel > 0 && (d < rel*(math.Abs(a)+math.Abs(b))/2 || a == b) {
		return true
	}
	return false
}
