package problem

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Knetic/govaluate"
)

// ExprProblem evaluates an objective and constraint expressions over the
// variables x0..x{n-1}. Constraints are satisfied when they evaluate >= 0.
// Exponentiation is written "**".
type ExprProblem struct {
	dim         int
	objective   *govaluate.EvaluableExpression
	constraints []*govaluate.EvaluableExpression
}

// NewExprProblem compiles the expressions for a problem of dimension dim.
// Unknown variables are rejected here rather than on first evaluation.
func NewExprProblem(dim int, objective string, constraints []string) (*ExprProblem, error) {
	if dim < 1 {
		return nil, fmt.Errorf("expression problem: dimension must be >= 1, got %d", dim)
	}
	p := &ExprProblem{dim: dim}

	var err error
	if p.objective, err = compile(objective, dim); err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	for i, c := range constraints {
		expr, err := compile(c, dim)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		p.constraints = append(p.constraints, expr)
	}
	return p, nil
}

// Dim returns the number of variables.
func (p *ExprProblem) Dim() int { return p.dim }

// Constraints returns the number of constraints.
func (p *ExprProblem) Constraints() int { return len(p.constraints) }

// Cost implements executor.Problem.
func (p *ExprProblem) Cost(x []float64) ([]float64, error) {
	if len(x) != p.dim {
		return nil, fmt.Errorf("expression problem: got %d variables, want %d", len(x), p.dim)
	}
	params := parameters(x)

	cost := make([]float64, 0, 1+len(p.constraints))
	f, err := evaluate(p.objective, params)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	cost = append(cost, f)
	for i, c := range p.constraints {
		v, err := evaluate(c, params)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		cost = append(cost, v)
	}
	return cost, nil
}

func compile(src string, dim int) (*govaluate.EvaluableExpression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(src, functions)
	if err != nil {
		return nil, err
	}
	known := parameters(make([]float64, dim))
	for _, v := range expr.Vars() {
		if _, ok := known[v]; !ok {
			return nil, fmt.Errorf("unknown variable %q in %q (have x0..x%d)", v, src, dim-1)
		}
	}
	return expr, nil
}

func parameters(x []float64) map[string]interface{} {
	params := map[string]interface{}{
		"pi": math.Pi,
		"e":  math.E,
	}
	for i, v := range x {
		params["x"+strconv.Itoa(i)] = v
	}
	return params
}

func evaluate(expr *govaluate.EvaluableExpression, params map[string]interface{}) (float64, error) {
	v, err := expr.Evaluate(params)
	if err != nil {
		return math.NaN(), err
	}
	f, ok := number(v)
	if !ok {
		return math.NaN(), fmt.Errorf("expression %q did not return a number: %T", expr.String(), v)
	}
	return f, nil
}

func number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return math.NaN(), false
}

func unary(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes 1 argument, got %d", name, len(args))
		}
		x, ok := number(args[0])
		if !ok {
			return nil, fmt.Errorf("%s: argument is not a number: %T", name, args[0])
		}
		return fn(x), nil
	}
}

func binary(name string, fn func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s takes 2 arguments, got %d", name, len(args))
		}
		a, ok1 := number(args[0])
		b, ok2 := number(args[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: arguments must be numbers", name)
		}
		return fn(a, b), nil
	}
}

var functions = map[string]govaluate.ExpressionFunction{
	"sin":  unary("sin", math.Sin),
	"cos":  unary("cos", math.Cos),
	"tan":  unary("tan", math.Tan),
	"exp":  unary("exp", math.Exp),
	"log":  unary("log", math.Log),
	"sqrt": unary("sqrt", math.Sqrt),
	"abs":  unary("abs", math.Abs),
	"pow":  binary("pow", math.Pow),
	"min":  binary("min", math.Min),
	"max":  binary("max", math.Max),
}
