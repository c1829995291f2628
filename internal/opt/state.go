package opt

import (
	"errors"
	"fmt"
)

// FeasibilitySlack is the tolerance below zero a constraint value may reach
// and still count as satisfied when selecting the best candidate.
const FeasibilitySlack = 1e-8

var (
	// ErrNoEvaluation is returned by the best-candidate accessors before the
	// first Update.
	ErrNoEvaluation = errors.New("cobyla state: no evaluation yet")
	// ErrAlreadyFinished is returned by a second Finish.
	ErrAlreadyFinished = errors.New("cobyla state: already finished")
	// ErrStateFinished is returned when updating or advancing a finished
	// state.
	ErrStateFinished = errors.New("cobyla state: finished")
)

// CobylaState is the iteration record of one COBYLA run. It owns its
// parameter and cost vectors: values are copied in and out.
type CobylaState struct {
	iter      int
	param     []float64
	cost      []float64
	bestParam []float64
	bestCost  []float64
	hasBest   bool
	costEvals int
	status    Status
	phase     Phase
	detail    error
}

// NewCobylaState creates a state at iteration 0 with current = best = x0
// and no cost.
func NewCobylaState(x0 []float64) *CobylaState {
	return &CobylaState{
		param:     clone(x0),
		bestParam: clone(x0),
		phase:     Uninitialized,
	}
}

// Update records a candidate and advances the iteration counter. The best
// candidate is replaced by the first candidate ever recorded, and afterwards
// only by a feasible candidate whose objective is <= the best one, so the
// best cost never increases and ties go to the newer candidate. An
// infeasible first best whose objective is below every feasible candidate
// is therefore kept: non-increasing best cost takes precedence over
// preferring feasible points.
func (s *CobylaState) Update(param, cost []float64) error {
	if s.status != nil {
		return ErrStateFinished
	}
	if len(cost) == 0 {
		return fmt.Errorf("cobyla state: empty cost vector")
	}
	s.iter++
	s.param = clone(param)
	s.cost = clone(cost)
	if !s.hasBest || (Feasible(cost, FeasibilitySlack) && cost[0] <= s.bestCost[0]) {
		s.bestParam = clone(param)
		s.bestCost = clone(cost)
		s.hasBest = true
	}
	return nil
}

// Finish attaches the terminal status and moves the state to the matching
// phase. The status is write-once.
func (s *CobylaState) Finish(status Status) error {
	if status == nil {
		return fmt.Errorf("cobyla state: nil status")
	}
	if s.status != nil {
		return fmt.Errorf("%w: status %s, refusing %s", ErrAlreadyFinished, s.status, status)
	}
	s.status = status
	s.phase = status.Phase()
	return nil
}

// start moves an uninitialized state to Running.
func (s *CobylaState) start() error {
	if s.status != nil {
		return ErrStateFinished
	}
	s.phase = Running
	return nil
}

// setCurrent records an evaluation that is not an iteration (the probe at x0
// made by Init). It does not touch the best candidate or the counter.
func (s *CobylaState) setCurrent(param, cost []float64) {
	s.param = clone(param)
	s.cost = clone(cost)
}

// seedBest makes an evaluation that is not an iteration the best candidate
// when there is none yet.
func (s *CobylaState) seedBest(param, cost []float64) {
	if s.hasBest || len(cost) == 0 {
		return
	}
	s.bestParam = clone(param)
	s.bestCost = clone(cost)
	s.hasBest = true
}

func (s *CobylaState) countEval() {
	s.costEvals++
}

// Iter returns the number of Update calls.
func (s *CobylaState) Iter() int { return s.iter }

// Param returns a copy of the current parameter vector.
func (s *CobylaState) Param() []float64 { return clone(s.param) }

// Cost returns a copy of the current cost vector, or nil before any
// evaluation.
func (s *CobylaState) Cost() []float64 { return clone(s.cost) }

// CostEvals returns the number of problem evaluations.
func (s *CobylaState) CostEvals() int { return s.costEvals }

// BestParam returns a copy of the best parameter vector.
func (s *CobylaState) BestParam() ([]float64, error) {
	if !s.hasBest {
		return nil, ErrNoEvaluation
	}
	return clone(s.bestParam), nil
}

// BestCost returns the objective value of the best candidate.
func (s *CobylaState) BestCost() (float64, error) {
	if !s.hasBest {
		return 0, ErrNoEvaluation
	}
	return s.bestCost[0], nil
}

// BestCostVector returns a copy of the full cost vector of the best
// candidate.
func (s *CobylaState) BestCostVector() ([]float64, error) {
	if !s.hasBest {
		return nil, ErrNoEvaluation
	}
	return clone(s.bestCost), nil
}

// Status returns the terminal status, or nil while the run is in progress.
func (s *CobylaState) Status() Status { return s.status }

// Phase returns the lifecycle phase.
func (s *CobylaState) Phase() Phase { return s.phase }

// Terminated reports whether a status has been attached.
func (s *CobylaState) Terminated() bool { return s.status != nil }

// Detail returns the error recorded alongside a failure status, if any.
func (s *CobylaState) Detail() error { return s.detail }

// startPoint is where the next solve begins: the best candidate when there
// is one, the current parameters otherwise.
func (s *CobylaState) startPoint() []float64 {
	if s.hasBest {
		return clone(s.bestParam)
	}
	return clone(s.param)
}

// Feasible reports whether every constraint in cost[1:] is >= -slack.
func Feasible(cost []float64, slack float64) bool {
	if len(cost) == 0 {
		return false
	}
	for _, c := range cost[1:] {
		if c < -slack {
			return false
		}
	}
	return true
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
