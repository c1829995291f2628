package executor

import (
	"fmt"
	"log/slog"
)

// Observer is notified as a run progresses. The state is only valid for the
// duration of the call.
type Observer interface {
	ObserveInit(solver string, state State, kv KV) error
	ObserveIter(state State, kv KV) error
}

type modeKind int

const (
	modeAlways modeKind = iota
	modeNever
	modeEvery
	modeNewBest
)

// ObserverMode selects the iterations an observer is called for. ObserveInit
// is always called unless the mode is Never.
type ObserverMode struct {
	kind  modeKind
	every int
}

var (
	// Always calls the observer after every iteration.
	Always = ObserverMode{kind: modeAlways}
	// Never disables the observer.
	Never = ObserverMode{kind: modeNever}
	// NewBest calls the observer after iterations that improved the best cost.
	NewBest = ObserverMode{kind: modeNewBest}
)

// Every calls the observer after every n-th iteration.
func Every(n int) ObserverMode {
	if n < 1 {
		n = 1
	}
	return ObserverMode{kind: modeEvery, every: n}
}

func (m ObserverMode) String() string {
	switch m.kind {
	case modeAlways:
		return "always"
	case modeNever:
		return "never"
	case modeEvery:
		return fmt.Sprintf("every(%d)", m.every)
	case modeNewBest:
		return "new_best"
	}
	return "unknown"
}

func (m ObserverMode) wants(iter int, improved bool) bool {
	switch m.kind {
	case modeAlways:
		return true
	case modeEvery:
		return iter%m.every == 0
	case modeNewBest:
		return improved
	}
	return false
}

type observerEntry struct {
	obs  Observer
	mode ObserverMode
}

func (e *Executor[S]) notifyInit(state S, kv KV) error {
	for _, entry := range e.observers {
		if entry.mode.kind == modeNever {
			continue
		}
		if err := entry.obs.ObserveInit(e.solver.Name(), state, kv); err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
	}
	return nil
}

func (e *Executor[S]) notifyIter(state S, kv KV, improved bool) error {
	for _, entry := range e.observers {
		if !entry.mode.wants(state.Iter(), improved) {
			continue
		}
		if err := entry.obs.ObserveIter(state, kv); err != nil {
			return fmt.Errorf("observer iteration %d: %w", state.Iter(), err)
		}
	}
	return nil
}

// LoggerObserver reports progress through a slog.Logger.
type LoggerObserver struct {
	logger *slog.Logger
}

// NewLoggerObserver returns an observer logging to logger, or to
// slog.Default when logger is nil.
func NewLoggerObserver(logger *slog.Logger) *LoggerObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerObserver{logger: logger}
}

func (o *LoggerObserver) ObserveInit(solver string, state State, kv KV) error {
	args := append([]any{"solver", solver}, kv...)
	o.logger.Info("Optimization started", args...)
	return nil
}

func (o *LoggerObserver) ObserveIter(state State, kv KV) error {
	args := []any{
		"iter", state.Iter(),
		"cost_evals", state.CostEvals(),
	}
	if best, err := state.BestCost(); err == nil {
		args = append(args, "best_cost", best)
	}
	if param, err := state.BestParam(); err == nil {
		args = append(args, "best_param", param)
	}
	args = append(args, kv...)
	o.logger.Info("Iteration complete", args...)
	return nil
}
