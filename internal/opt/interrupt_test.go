package opt

import (
	"context"
	"errors"
	"testing"

	"github.com/cwbudde/cobylafit/internal/executor"
)

func TestInterruptibleForcedStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	p := executor.ProblemFunc(func(x []float64) ([]float64, error) {
		calls++
		if calls == 8 {
			cancel()
		}
		return []float64{x[0]*x[0] + x[1]*x[1]}, nil
	})

	res, err := runSolver(t, Interruptible(ctx, p), NewCobylaSolver([]float64{1, 1}), 100)
	if !errors.Is(err, &StatusError{Status: ForcedStop}) {
		t.Fatalf("Expected ForcedStop, got %v", err)
	}
	if calls != 8 {
		t.Errorf("Problem evaluated %d times after cancel, want 8", calls)
	}
	if _, err := res.State.BestParam(); err != nil {
		t.Errorf("Expected a best candidate: %v", err)
	}
}
