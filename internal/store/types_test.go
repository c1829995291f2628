package store

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Errorf("NewRunID returned duplicate %s", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("NewRunID returned %q, not a UUID: %v", a, err)
	}
}

func TestRunRecord_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		modify func(*RunRecord)
		field  string
	}{
		{"valid", func(r *RunRecord) {}, ""},
		{"no best", func(r *RunRecord) { r.SetBest(nil, nil) }, ""},
		{"empty id", func(r *RunRecord) { r.RunID = "" }, "RunID"},
		{"empty problem", func(r *RunRecord) { r.Problem = "" }, "Problem"},
		{"empty x0", func(r *RunRecord) { r.X0 = nil }, "X0"},
		{"best length", func(r *RunRecord) { r.BestParams = []float64{1} }, "BestParams"},
		{"empty status", func(r *RunRecord) { r.Status = "" }, "Status"},
		{"negative iterations", func(r *RunRecord) { r.Iterations = -1 }, "Iterations"},
		{"negative evals", func(r *RunRecord) { r.CostEvals = -1 }, "CostEvals"},
		{"zero start", func(r *RunRecord) { r.StartedAt = time.Time{} }, "StartedAt"},
		{"finish before start", func(r *RunRecord) { r.FinishedAt = r.StartedAt.Add(-time.Second) }, "FinishedAt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestRecord("run", now)
			tt.modify(r)
			err := r.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestRunRecord_SetBest(t *testing.T) {
	r := &RunRecord{}
	r.SetBest([]float64{1, 2}, []float64{3, 4, -5})

	if r.BestCost == nil || *r.BestCost != 3 {
		t.Fatalf("BestCost = %v, want 3", r.BestCost)
	}
	if len(r.Constraints) != 2 || r.Constraints[1] != -5 {
		t.Errorf("Constraints = %v, want [4 -5]", r.Constraints)
	}

	r.SetBest(nil, nil)
	if r.BestCost != nil || r.Constraints != nil || r.BestParams != nil {
		t.Errorf("SetBest(nil, nil) left %+v", r)
	}
}

func TestRunRecord_NonFiniteSerializes(t *testing.T) {
	r := createTestRecord("run-inf", time.Now())
	r.SetBest([]float64{math.NaN(), 1}, []float64{math.Inf(1), math.Inf(-1)})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back RunRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if *back.BestCost != math.MaxFloat64 {
		t.Errorf("BestCost = %v, want MaxFloat64", *back.BestCost)
	}
	if back.Constraints[0] != -math.MaxFloat64 {
		t.Errorf("Constraint = %v, want -MaxFloat64", back.Constraints[0])
	}
}

func TestRunRecord_JSONFields(t *testing.T) {
	r := createTestRecord("run-json", time.Now())
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	for _, key := range []string{`"runId"`, `"bestParams"`, `"bestCost"`, `"costEvals"`, `"startedAt"`, `"config"`} {
		if !strings.Contains(s, key) {
			t.Errorf("JSON missing %s: %s", key, s)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("Empty error should be omitted: %s", s)
	}
}

func TestRunRecord_ToInfo(t *testing.T) {
	r := createTestRecord("run-info", time.Now())
	info := r.ToInfo()

	if info.RunID != r.RunID || info.Problem != r.Problem || info.Status != r.Status {
		t.Errorf("Info identity mismatch: %+v", info)
	}
	if info.BestCost == nil || *info.BestCost != *r.BestCost {
		t.Errorf("Info BestCost = %v", info.BestCost)
	}
	if info.CostEvals != r.CostEvals {
		t.Errorf("Info CostEvals = %d, want %d", info.CostEvals, r.CostEvals)
	}
}
