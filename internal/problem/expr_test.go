package problem

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestExprProblemCost(t *testing.T) {
	tests := []struct {
		name        string
		dim         int
		objective   string
		constraints []string
		x           []float64
		want        []float64
	}{
		{
			name:        "paraboloid",
			dim:         2,
			objective:   "10*(x0+1)**2 + x1**2",
			constraints: []string{"x0"},
			x:           []float64{1, 1},
			want:        []float64{41, 1},
		},
		{
			name:      "functions",
			dim:       1,
			objective: "sqrt(x0) + abs(-2) + pow(2, 3) + max(x0, 1)",
			x:         []float64{4},
			want:      []float64{2 + 2 + 8 + 4},
		},
		{
			name:      "constants",
			dim:       1,
			objective: "cos(pi * x0)",
			x:         []float64{1},
			want:      []float64{-1},
		},
		{
			name:        "disk",
			dim:         2,
			objective:   "x0 + x1",
			constraints: []string{"1 - x0**2 - x1**2", "x0 + 5"},
			x:           []float64{0.6, 0.8},
			want:        []float64{1.4, 0, 5.6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewExprProblem(tt.dim, tt.objective, tt.constraints)
			if err != nil {
				t.Fatalf("NewExprProblem failed: %v", err)
			}
			if p.Constraints() != len(tt.constraints) {
				t.Errorf("Constraints = %d, want %d", p.Constraints(), len(tt.constraints))
			}
			got, err := p.Cost(tt.x)
			if err != nil {
				t.Fatalf("Cost failed: %v", err)
			}
			if !floats.EqualApprox(got, tt.want, 1e-12) {
				t.Errorf("Cost(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestExprProblemRejects(t *testing.T) {
	tests := []struct {
		name        string
		dim         int
		objective   string
		constraints []string
		wantErr     string
	}{
		{"zero dim", 0, "1", nil, "dimension"},
		{"syntax", 1, "x0 +", nil, "objective"},
		{"unknown variable", 2, "x0 + x2", nil, "unknown variable"},
		{"bad constraint", 1, "x0", []string{"y"}, "constraint 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExprProblem(tt.dim, tt.objective, tt.constraints)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestExprProblemWrongDimension(t *testing.T) {
	p, err := NewExprProblem(2, "x0 + x1", nil)
	if err != nil {
		t.Fatalf("NewExprProblem failed: %v", err)
	}
	if _, err := p.Cost([]float64{1}); err == nil {
		t.Error("Expected error for wrong dimension")
	}
}

func TestExprProblemNonNumeric(t *testing.T) {
	p, err := NewExprProblem(1, "'text'", nil)
	if err != nil {
		t.Fatalf("NewExprProblem failed: %v", err)
	}
	if _, err := p.Cost([]float64{1}); err == nil {
		t.Error("Expected error for string result")
	}
}

func TestExprProblemDivisionByZero(t *testing.T) {
	p, err := NewExprProblem(1, "1 / x0", nil)
	if err != nil {
		t.Fatalf("NewExprProblem failed: %v", err)
	}
	got, err := p.Cost([]float64{0})
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	if !math.IsInf(got[0], 1) {
		t.Errorf("1/0 = %v, want +Inf", got[0])
	}
}
