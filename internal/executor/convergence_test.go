package executor

import (
	"math"
	"testing"
)

func TestConvergenceTrackerDisabled(t *testing.T) {
	tracker := NewConvergenceTracker(DisabledConvergenceConfig())
	for i := 0; i < 10; i++ {
		if tracker.Update(100) {
			t.Fatal("Disabled tracker reported convergence")
		}
	}
	if len(tracker.History()) != 0 {
		t.Errorf("Disabled tracker recorded %d costs", len(tracker.History()))
	}
}

func TestConvergenceTrackerStops(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.01})

	costs := []float64{100, 90, 89.5, 89.4, 89.3}
	want := []bool{false, false, false, false, true}
	for i, c := range costs {
		if got := tracker.Update(c); got != want[i] {
			t.Fatalf("Update(%v) at step %d = %v, want %v", c, i, got, want[i])
		}
	}
	if tracker.BestCost() != 89.3 {
		t.Errorf("BestCost = %f, want 89.3", tracker.BestCost())
	}
	if tracker.StaleCount() != 3 {
		t.Errorf("StaleCount = %d, want 3", tracker.StaleCount())
	}
}

func TestConvergenceTrackerImprovementResets(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01})

	tracker.Update(100)
	tracker.Update(100)
	if tracker.StaleCount() != 1 {
		t.Fatalf("StaleCount = %d, want 1", tracker.StaleCount())
	}
	tracker.Update(50)
	if tracker.StaleCount() != 0 {
		t.Errorf("StaleCount = %d after improvement, want 0", tracker.StaleCount())
	}
}

func TestConvergenceTrackerZeroCost(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0.5})

	tracker.Update(0)
	// absolute improvement of 1 from zero counts as progress
	if tracker.Update(-1) {
		t.Error("Absolute improvement from zero treated as stale")
	}
	if !tracker.Update(-1.1) {
		t.Error("Relative improvement below threshold not treated as stale")
	}
}

func TestConvergenceTrackerReset(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	tracker.Update(10)
	tracker.Update(10)
	tracker.Reset()

	if !math.IsInf(tracker.BestCost(), 1) {
		t.Errorf("BestCost after reset = %f, want +Inf", tracker.BestCost())
	}
	if tracker.StaleCount() != 0 || len(tracker.History()) != 0 {
		t.Error("Reset left state behind")
	}
}

func TestConvergenceTrackerHistoryIsCopy(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	tracker.Update(5)
	h := tracker.History()
	h[0] = 42
	if tracker.History()[0] != 5 {
		t.Error("History returned internal slice")
	}
}
