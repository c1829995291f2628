package opt

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCobylaState(t *testing.T) {
	x0 := []float64{1, 2}
	s := NewCobylaState(x0)
	x0[0] = 99

	if s.Iter() != 0 {
		t.Errorf("Iter = %d, want 0", s.Iter())
	}
	if s.Phase() != Uninitialized {
		t.Errorf("Phase = %v, want uninitialized", s.Phase())
	}
	if diff := cmp.Diff([]float64{1, 2}, s.Param()); diff != "" {
		t.Errorf("Param aliases x0 (-want +got):\n%s", diff)
	}
	if s.Cost() != nil {
		t.Errorf("Cost = %v, want nil", s.Cost())
	}
	if _, err := s.BestParam(); !errors.Is(err, ErrNoEvaluation) {
		t.Errorf("BestParam err = %v, want ErrNoEvaluation", err)
	}
	if _, err := s.BestCost(); !errors.Is(err, ErrNoEvaluation) {
		t.Errorf("BestCost err = %v, want ErrNoEvaluation", err)
	}
	if s.Status() != nil || s.Terminated() {
		t.Errorf("Fresh state already has status %v", s.Status())
	}
}

func TestUpdateBestSelection(t *testing.T) {
	tests := []struct {
		name     string
		updates  [][]float64
		wantBest []float64
		wantIter int
	}{
		{
			name:     "first candidate always accepted",
			updates:  [][]float64{{5, -1}},
			wantBest: []float64{5, -1},
			wantIter: 1,
		},
		{
			name:     "lower feasible replaces",
			updates:  [][]float64{{5, 1}, {3, 0.5}},
			wantBest: []float64{3, 0.5},
			wantIter: 2,
		},
		{
			name:     "lower infeasible rejected",
			updates:  [][]float64{{5, 1}, {3, -0.5}},
			wantBest: []float64{5, 1},
			wantIter: 2,
		},
		{
			name:     "higher feasible rejected",
			updates:  [][]float64{{5, 1}, {6, 1}},
			wantBest: []float64{5, 1},
			wantIter: 2,
		},
		{
			name:     "tie goes to newer",
			updates:  [][]float64{{5, 1}, {5, 2}},
			wantBest: []float64{5, 2},
			wantIter: 2,
		},
		{
			name:     "violation within slack is feasible",
			updates:  [][]float64{{5, 1}, {4, -1e-9}},
			wantBest: []float64{4, -1e-9},
			wantIter: 2,
		},
		{
			name:     "unconstrained",
			updates:  [][]float64{{5}, {7}, {2}},
			wantBest: []float64{2},
			wantIter: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCobylaState([]float64{0})
			for i, c := range tt.updates {
				if err := s.Update([]float64{float64(i)}, c); err != nil {
					t.Fatalf("Update %d failed: %v", i, err)
				}
			}
			got, err := s.BestCostVector()
			if err != nil {
				t.Fatalf("BestCostVector failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantBest, got); diff != "" {
				t.Errorf("Best cost mismatch (-want +got):\n%s", diff)
			}
			if s.Iter() != tt.wantIter {
				t.Errorf("Iter = %d, want %d", s.Iter(), tt.wantIter)
			}
			last := tt.updates[len(tt.updates)-1]
			if diff := cmp.Diff(last, s.Cost()); diff != "" {
				t.Errorf("Current cost is not the last update (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBestCostNonIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 20; run++ {
		s := NewCobylaState([]float64{0, 0})
		var prev float64
		for i := 0; i < 200; i++ {
			cost := []float64{rng.NormFloat64() * 10, rng.NormFloat64(), rng.NormFloat64()}
			param := []float64{rng.Float64(), rng.Float64()}
			if err := s.Update(param, cost); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			best, err := s.BestCost()
			if err != nil {
				t.Fatalf("BestCost failed: %v", err)
			}
			if i > 0 && best > prev {
				t.Fatalf("run %d update %d: best cost increased from %f to %f", run, i, prev, best)
			}
			prev = best
		}
	}
}

func TestUpdateCopiesInputs(t *testing.T) {
	s := NewCobylaState([]float64{0})
	param := []float64{1}
	cost := []float64{2}
	if err := s.Update(param, cost); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	param[0], cost[0] = 10, 20

	best, _ := s.BestParam()
	if best[0] != 1 {
		t.Errorf("Best param aliased caller slice: %v", best)
	}
	bc, _ := s.BestCost()
	if bc != 2 {
		t.Errorf("Best cost aliased caller slice: %v", bc)
	}

	best[0] = 42
	again, _ := s.BestParam()
	if again[0] != 1 {
		t.Errorf("BestParam returned internal slice")
	}
}

func TestUpdateRejectsEmptyCost(t *testing.T) {
	s := NewCobylaState([]float64{0})
	if err := s.Update([]float64{1}, nil); err == nil {
		t.Fatal("Expected error for empty cost")
	}
	if s.Iter() != 0 {
		t.Errorf("Iter = %d after rejected update, want 0", s.Iter())
	}
}

func TestFinishTwice(t *testing.T) {
	s := NewCobylaState([]float64{0})
	if err := s.Finish(XtolReached); err != nil {
		t.Fatalf("First Finish failed: %v", err)
	}
	err := s.Finish(Failure)
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("Second Finish err = %v, want ErrAlreadyFinished", err)
	}
	if s.Status() != XtolReached {
		t.Errorf("Status = %v, want XtolReached", s.Status())
	}
	if s.Phase() != Converged {
		t.Errorf("Phase = %v, want converged", s.Phase())
	}
}

func TestFinishNil(t *testing.T) {
	s := NewCobylaState([]float64{0})
	if err := s.Finish(nil); err == nil {
		t.Fatal("Expected error for nil status")
	}
	if s.Terminated() {
		t.Error("State terminated by nil status")
	}
}

func TestUpdateAfterFinish(t *testing.T) {
	s := NewCobylaState([]float64{0})
	if err := s.Finish(MaxEvalReached); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := s.Update([]float64{1}, []float64{1}); !errors.Is(err, ErrStateFinished) {
		t.Errorf("Update after finish err = %v, want ErrStateFinished", err)
	}
}

func TestFeasible(t *testing.T) {
	tests := []struct {
		cost []float64
		want bool
	}{
		{nil, false},
		{[]float64{1}, true},
		{[]float64{1, 0, 3}, true},
		{[]float64{1, -1e-9}, true},
		{[]float64{1, -1e-7}, false},
		{[]float64{-100, 2, -3}, false},
	}
	for _, tt := range tests {
		if got := Feasible(tt.cost, FeasibilitySlack); got != tt.want {
			t.Errorf("Feasible(%v) = %v, want %v", tt.cost, got, tt.want)
		}
	}
}

func TestSeedBest(t *testing.T) {
	s := NewCobylaState([]float64{1})
	s.seedBest([]float64{1}, []float64{3, -1})
	if s.Iter() != 0 {
		t.Errorf("Iter = %d, want 0", s.Iter())
	}
	if got, err := s.BestCost(); err != nil || got != 3 {
		t.Fatalf("BestCost = %v, %v; want 3", got, err)
	}

	// A seeded best never overrides an existing one.
	s.seedBest([]float64{0}, []float64{1, 0})
	if got, _ := s.BestCost(); got != 3 {
		t.Errorf("BestCost = %v after second seed, want 3", got)
	}

	if err := s.Update([]float64{2}, []float64{2, 0}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got, _ := s.BestCost(); got != 2 {
		t.Errorf("BestCost = %v after feasible update, want 2", got)
	}
}
