package store

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunConfig is the solver configuration a run used.
type RunConfig struct {
	RhoBeg    []float64 `json:"rhobeg"`
	MaxIters  int       `json:"maxIters"`
	MaxTimeMs int64     `json:"maxTimeMs,omitempty"`
	FtolRel   float64   `json:"ftolRel,omitempty"`
	FtolAbs   float64   `json:"ftolAbs,omitempty"`
	XtolRel   float64   `json:"xtolRel,omitempty"`
	XtolAbs   []float64 `json:"xtolAbs,omitempty"`
	Target    *float64  `json:"target,omitempty"`
	WarmStart bool      `json:"warmStart,omitempty"`
	Seed      int64     `json:"seed,omitempty"`
}

// RunRecord is the persisted outcome of one run.
type RunRecord struct {
	RunID string `json:"runId"`

	// Problem names the problem: a built-in name or the file it came from.
	Problem string `json:"problem"`
	Solver  string `json:"solver"`

	X0 []float64 `json:"x0"`

	// BestParams and BestCost are nil when the run never evaluated a
	// candidate, e.g. on invalid arguments.
	BestParams []float64 `json:"bestParams,omitempty"`
	BestCost   *float64  `json:"bestCost,omitempty"`
	// Constraints holds the constraint values at BestParams.
	Constraints []float64 `json:"constraints,omitempty"`

	Status      string `json:"status"`
	Phase       string `json:"phase"`
	Termination string `json:"termination"`
	Error       string `json:"error,omitempty"`

	Iterations int `json:"iterations"`
	CostEvals  int `json:"costEvals"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Config RunConfig `json:"config"`
}

// RunInfo is the metadata shown when listing runs.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Problem    string    `json:"problem"`
	Status     string    `json:"status"`
	BestCost   *float64  `json:"bestCost,omitempty"`
	CostEvals  int       `json:"costEvals"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// SetBest records the best candidate. JSON has no representation for
// NaN or Inf, so non-finite values are replaced by the largest float64 of
// the same sign (NaN by +MaxFloat64).
func (r *RunRecord) SetBest(params, cost []float64) {
	r.BestParams = finite(params)
	if len(cost) == 0 {
		r.BestCost = nil
		r.Constraints = nil
		return
	}
	c := finite(cost)
	r.BestCost = &c[0]
	r.Constraints = c[1:]
}

// Duration is the wall-clock duration of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ToInfo converts a full RunRecord to RunInfo.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		Problem:    r.Problem,
		Status:     r.Status,
		BestCost:   r.BestCost,
		CostEvals:  r.CostEvals,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Validate checks that the record has the fields every stored run needs.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Problem == "" {
		return &ValidationError{Field: "Problem", Reason: "cannot be empty"}
	}
	if len(r.X0) == 0 {
		return &ValidationError{Field: "X0", Reason: "cannot be empty"}
	}
	if r.BestParams != nil && len(r.BestParams) != len(r.X0) {
		return &ValidationError{Field: "BestParams", Reason: "length must match X0"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "Status", Reason: "cannot be empty"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.CostEvals < 0 {
		return &ValidationError{Field: "CostEvals", Reason: "cannot be negative"}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "StartedAt", Reason: "cannot be zero"}
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return &ValidationError{Field: "FinishedAt", Reason: "cannot be before StartedAt"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func finite(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		switch {
		case math.IsNaN(x), math.IsInf(x, 1):
			out[i] = math.MaxFloat64
		case math.IsInf(x, -1):
			out[i] = -math.MaxFloat64
		default:
			out[i] = x
		}
	}
	return out
}
