package opt

import (
	"context"

	"github.com/cwbudde/cobylafit/internal/cobyla"
	"github.com/cwbudde/cobylafit/internal/executor"
)

// Interruptible wraps p so that evaluations fail with cobyla.ErrForcedStop
// once ctx is done. A solve interrupted this way ends with ForcedStop and
// keeps its best point.
func Interruptible(ctx context.Context, p executor.Problem) executor.Problem {
	return executor.ProblemFunc(func(x []float64) ([]float64, error) {
		if ctx.Err() != nil {
			return nil, cobyla.ErrForcedStop
		}
		return p.Cost(x)
	})
}
