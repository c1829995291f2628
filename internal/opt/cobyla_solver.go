package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/cobylafit/internal/cobyla"
	"github.com/cwbudde/cobylafit/internal/executor"
)

// ErrEmptyCost is returned when a problem evaluates to an empty cost vector.
var ErrEmptyCost = errors.New("cobyla: problem returned an empty cost vector")

// CobylaSolver adapts the COBYLA engine to the executor protocol. A single
// NextIter runs one complete engine solve, so a run takes exactly one
// iteration unless the configuration is invalid.
type CobylaSolver struct {
	x0     []float64
	rhobeg RhoBeg
	tols   StopTols
	target *float64
	m      int
	engine Engine
	logger *slog.Logger
}

// Option configures a CobylaSolver.
type Option func(*CobylaSolver)

// WithRhoBeg sets the initial step. Default RhoBegAll(1).
func WithRhoBeg(r RhoBeg) Option {
	return func(s *CobylaSolver) { s.rhobeg = r }
}

// WithStopTols sets the tolerance criteria. Default: all disabled.
func WithStopTols(t StopTols) Option {
	return func(s *CobylaSolver) {
		t.XtolAbs = clone(t.XtolAbs)
		s.tols = t
	}
}

// WithTargetCost stops the run with StopValReached once a feasible point
// with objective <= v has been evaluated.
func WithTargetCost(v float64) Option {
	return func(s *CobylaSolver) { s.target = &v }
}

// WithConstraintCount declares the number of constraints up front, which
// saves the probe evaluation Init otherwise makes at x0.
func WithConstraintCount(m int) Option {
	return func(s *CobylaSolver) { s.m = m }
}

// WithEngine replaces the COBYLA engine. Default DefaultEngine.
func WithEngine(e Engine) Option {
	return func(s *CobylaSolver) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLogger sets the logger used by the solver and handed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(s *CobylaSolver) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCobylaSolver creates a solver starting from x0.
func NewCobylaSolver(x0 []float64, opts ...Option) *CobylaSolver {
	s := &CobylaSolver{
		x0:     clone(x0),
		rhobeg: DefaultRhoBeg(),
		m:      -1,
		engine: DefaultEngine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements executor.Solver.
func (s *CobylaSolver) Name() string { return "COBYLA" }

// NewState implements executor.Solver.
func (s *CobylaSolver) NewState() *CobylaState {
	return NewCobylaState(s.x0)
}

// Dim returns the parameter dimension.
func (s *CobylaSolver) Dim() int { return len(s.x0) }

// Validate checks the configuration without evaluating anything.
func (s *CobylaSolver) Validate() error {
	n := len(s.x0)
	if n == 0 {
		return &ConfigError{Field: "x0", Message: "must not be empty"}
	}
	for i, v := range s.x0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigError{Field: fmt.Sprintf("x0[%d]", i), Message: "must be finite"}
		}
	}
	if _, err := s.rhobeg.Expand(n); err != nil {
		return err
	}
	if err := s.tols.Validate(n); err != nil {
		return err
	}
	if s.m < -1 {
		return &ConfigError{Field: "constraints", Message: fmt.Sprintf("negative count %d", s.m)}
	}
	if s.target != nil && math.IsNaN(*s.target) {
		return &ConfigError{Field: "target_cost", Message: "must be a number"}
	}
	return nil
}

// Cost evaluates p at x and counts the evaluation on state. Errors from the
// problem are returned unchanged.
func (s *CobylaSolver) Cost(p executor.Problem, state *CobylaState, x []float64) ([]float64, error) {
	state.countEval()
	cost, err := p.Cost(clone(x))
	if err != nil {
		return nil, err
	}
	if len(cost) == 0 {
		return nil, ErrEmptyCost
	}
	if s.m >= 0 && len(cost) != s.m+1 {
		return nil, fmt.Errorf("cobyla: cost vector has %d entries, want %d (objective + %d constraints)",
			len(cost), s.m+1, s.m)
	}
	return cost, nil
}

// Init implements executor.Solver. An invalid configuration finishes the
// state with InvalidArgs without evaluating the problem. Otherwise, unless
// the constraint count was declared, x0 is evaluated once to discover it; a
// failing probe finishes the state with Failure (ForcedStop when requested)
// and its error is returned.
func (s *CobylaSolver) Init(p executor.Problem, state *CobylaState, cfg executor.Config) (executor.KV, error) {
	if err := s.Validate(); err != nil {
		s.logger.Warn("Invalid COBYLA configuration", "error", err)
		state.detail = err
		if ferr := state.Finish(InvalidArgs); ferr != nil {
			return nil, ferr
		}
		return executor.KV{"status", InvalidArgs.String()}, nil
	}

	if s.m < 0 {
		cost, err := s.Cost(p, state, s.x0)
		if err != nil {
			status := Failure
			if errors.Is(err, cobyla.ErrForcedStop) {
				status = ForcedStop
			}
			state.detail = err
			if ferr := state.Finish(status); ferr != nil {
				return nil, ferr
			}
			return nil, err
		}
		s.m = len(cost) - 1
		state.setCurrent(s.x0, cost)
	}

	return executor.KV{
		"dim", len(s.x0),
		"constraints", s.m,
		"rhobeg", s.rhobeg.String(),
	}, nil
}

// engineOptions builds the engine options for a solve under cfg.
func (s *CobylaSolver) engineOptions(cfg executor.Config) (cobyla.Options, error) {
	rhobeg, err := s.rhobeg.Expand(len(s.x0))
	if err != nil {
		return cobyla.Options{}, err
	}
	opts := cobyla.Options{
		RhoBeg:  rhobeg,
		RhoEnd:  cobyla.RhoEndFromXtol(s.tols.XtolRel, s.tols.XtolAbs, rhobeg),
		FtolRel: s.tols.FtolRel,
		FtolAbs: s.tols.FtolAbs,
		XtolRel: s.tols.XtolRel,
		XtolAbs: clone(s.tols.XtolAbs),
		MaxEval: cfg.MaxIters,
		MaxTime: cfg.MaxTime,
		IPrint:  cfg.IPrint,
		Logger:  s.logger,
	}
	if s.target != nil {
		opts.StopVal = *s.target
		opts.UseStopVal = true
	}
	return opts, nil
}

// NextIter implements executor.Solver: it runs the engine once from the
// current best point, records the engine's final point (partial results
// included) and finishes the state with the translated status.
func (s *CobylaSolver) NextIter(p executor.Problem, state *CobylaState, cfg executor.Config) (executor.KV, error) {
	if err := state.start(); err != nil {
		return nil, err
	}
	opts, err := s.engineOptions(cfg)
	if err != nil {
		state.detail = err
		return executor.KV{"status", InvalidArgs.String()}, state.Finish(InvalidArgs)
	}

	var evalErr error
	fn := func(x []float64) ([]float64, error) {
		cost, err := s.Cost(p, state, x)
		if err != nil && !errors.Is(err, cobyla.ErrForcedStop) {
			evalErr = err
		}
		return cost, err
	}

	res, engineErr := s.engine.Minimize(fn, state.startPoint(), s.m, opts)
	if res.Cost != nil {
		if err := state.Update(res.X, res.Cost); err != nil {
			return nil, err
		}
	} else if probe := state.Cost(); probe != nil {
		// The engine stopped before its first successful evaluation; the
		// probe made by Init is the best candidate there is.
		state.seedBest(state.Param(), probe)
	}

	status := TranslateCode(res.Code)
	switch {
	case evalErr != nil:
		status = Failure
		state.detail = evalErr
	case engineErr != nil:
		state.detail = engineErr
	}
	if err := state.Finish(status); err != nil {
		return nil, err
	}

	kv := executor.KV{
		"status", status.String(),
		"phase", state.Phase().String(),
		"nfvals", res.Evals,
		"rho", res.Rho,
	}
	if evalErr != nil {
		return kv, evalErr
	}
	return kv, nil
}

// Terminate implements executor.Solver.
func (s *CobylaSolver) Terminate(state *CobylaState) executor.Termination {
	status := state.Status()
	switch state.Phase() {
	case Converged:
		return executor.Termination{Reason: executor.SolverConverged, Message: status.String()}
	case Exhausted:
		return executor.Termination{Reason: executor.SolverExhausted, Message: status.String()}
	case Failed:
		fail, _ := status.(FailStatus)
		return executor.Termination{
			Reason:  executor.SolverFailed,
			Message: status.String(),
			Err:     &StatusError{Status: fail, Err: state.Detail()},
		}
	}
	return executor.Termination{}
}

var _ executor.Solver[*CobylaState] = (*CobylaSolver)(nil)
