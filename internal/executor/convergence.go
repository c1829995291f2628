package executor

import (
	"log/slog"
	"math"
)

// ConvergenceConfig controls the executor's no-improvement stop.
type ConvergenceConfig struct {
	// Enabled turns the check on. Disabled by default.
	Enabled bool

	// Patience is the number of consecutive iterations without a
	// significant best-cost improvement before the run stops.
	Patience int

	// Threshold is the minimum relative improvement that counts as progress,
	// measured against the last significant best cost:
	// (last - cost) / |last|. When last is zero the improvement is absolute.
	Threshold float64
}

// DefaultConvergenceConfig returns an enabled config with patience 3 and a
// 0.1% threshold.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with the check turned off.
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker follows the best cost per iteration and reports when it
// stopped improving.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		costHistory:     []float64{},
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the best cost after an iteration and returns true once
// Patience iterations in a row failed to improve it by Threshold.
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	improvement := c.lastSignificant - cost
	if c.lastSignificant != 0 {
		improvement /= math.Abs(c.lastSignificant)
	}

	if improvement >= c.config.Threshold {
		c.lastSignificant = cost
		c.staleCount = 0
		slog.Debug("Best cost improved",
			"cost", cost,
			"relative_improvement", improvement,
		)
		return false
	}

	c.staleCount++
	slog.Debug("No significant best cost improvement",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the lowest cost seen so far.
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns a copy of every recorded cost.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the number of consecutive iterations without progress.
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker.
func (c *ConvergenceTracker) Reset() {
	c.costHistory = []float64{}
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
