package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinMayflyPop is the smallest population mayfly accepts.
const MinMayflyPop = 20

// MayflyAdapter runs the mayfly algorithm as an Optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. Populations below MinMayflyPop are
// raised to it.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinMayflyPop {
		popSize = MinMayflyPop
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run implements Optimizer. mayfly searches a single scalar box, so the
// search runs on the unit cube and positions are mapped onto [lower, upper]
// per dimension.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("mayfly: bounds have %d and %d entries", len(lower), len(upper))
	}
	for i := range lower {
		if !(upper[i] > lower[i]) {
			return nil, 0, fmt.Errorf("mayfly: empty range [%v, %v] in dimension %d", lower[i], upper[i], i)
		}
	}

	toBox := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(toBox(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	return toBox(result.GlobalBest.Position), result.GlobalBest.Cost, nil
}

var _ Optimizer = (*MayflyAdapter)(nil)
