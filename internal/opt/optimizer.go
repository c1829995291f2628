package opt

import (
	"fmt"
	"math"

	"github.com/cwbudde/cobylafit/internal/executor"
)

// Optimizer is a bounded, derivative-free global search used to pick a
// starting point for COBYLA.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] and returns the best
	// point and its value.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}

// DefaultPenalty weights the squared constraint violations added to the
// objective during a warm start.
const DefaultPenalty = 1e3

// Penalized folds the constraints of a cost vector into a single value:
// cost[0] + weight * sum(min(0, c)^2). NaN maps to +Inf.
func Penalized(cost []float64, weight float64) float64 {
	if len(cost) == 0 {
		return math.Inf(1)
	}
	v := cost[0]
	for _, c := range cost[1:] {
		if c < 0 {
			v += weight * c * c
		}
	}
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// BoundsAround returns the box x0[i] ± span*rhobeg[i].
func BoundsAround(x0, rhobeg []float64, span float64) (lower, upper []float64, err error) {
	if len(x0) != len(rhobeg) {
		return nil, nil, fmt.Errorf("bounds: x0 has %d entries, rhobeg %d", len(x0), len(rhobeg))
	}
	lower = make([]float64, len(x0))
	upper = make([]float64, len(x0))
	for i := range x0 {
		lower[i] = x0[i] - span*rhobeg[i]
		upper[i] = x0[i] + span*rhobeg[i]
	}
	return lower, upper, nil
}

// WarmStart runs o on the penalized problem inside [lower, upper] and returns
// the point it found. The first evaluation error stops using the problem and
// is returned.
func WarmStart(p executor.Problem, o Optimizer, lower, upper []float64, penalty float64) ([]float64, float64, error) {
	var evalErr error
	eval := func(x []float64) float64 {
		if evalErr != nil {
			return math.Inf(1)
		}
		cost, err := p.Cost(clone(x))
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return Penalized(cost, penalty)
	}
	best, cost, err := o.Run(eval, lower, upper)
	if evalErr != nil {
		return nil, 0, fmt.Errorf("warm start: %w", evalErr)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("warm start: %w", err)
	}
	return best, cost, nil
}
