// Package problem provides the problems the CLI can solve: built-in test
// functions and expression problems loaded from YAML files.
package problem

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/cobylafit/internal/executor"
)

// Definition is the YAML form of a problem.
//
//	name: disk
//	dim: 2
//	objective: "x0 + x1"
//	constraints:
//	  - "1 - x0**2 - x1**2"
//	x0: [0.5, 0.5]
type Definition struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Dim         int       `yaml:"dim"`
	Objective   string    `yaml:"objective"`
	Constraints []string  `yaml:"constraints,omitempty"`
	X0          []float64 `yaml:"x0"`
	RhoBeg      []float64 `yaml:"rhobeg,omitempty"`
	Target      *float64  `yaml:"target,omitempty"`
}

// Validate checks the definition's shape. Expressions are checked when
// compiled.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("problem: name is required")
	}
	if d.Objective == "" {
		return fmt.Errorf("problem %s: objective is required", d.Name)
	}
	if d.Dim == 0 {
		d.Dim = len(d.X0)
	}
	if d.Dim < 1 {
		return fmt.Errorf("problem %s: dim or x0 is required", d.Name)
	}
	if len(d.X0) != d.Dim {
		return fmt.Errorf("problem %s: x0 has %d entries, dim is %d", d.Name, len(d.X0), d.Dim)
	}
	if len(d.RhoBeg) != 0 && len(d.RhoBeg) != d.Dim {
		return fmt.Errorf("problem %s: rhobeg has %d entries, dim is %d", d.Name, len(d.RhoBeg), d.Dim)
	}
	return nil
}

// Instance is a problem ready to run.
type Instance struct {
	Name        string
	Description string
	Problem     executor.Problem
	X0          []float64
	// Constraints is the number of constraint entries in the cost vector.
	Constraints int
	// RhoBeg is the suggested per-dimension initial step, or nil.
	RhoBeg []float64
	// Target is the suggested target objective, or nil.
	Target *float64
}

// Compile turns a definition into an Instance.
func (d Definition) Compile() (*Instance, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p, err := NewExprProblem(d.Dim, d.Objective, d.Constraints)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", d.Name, err)
	}
	return &Instance{
		Name:        d.Name,
		Description: d.Description,
		Problem:     p,
		X0:          append([]float64(nil), d.X0...),
		Constraints: p.Constraints(),
		RhoBeg:      append([]float64(nil), d.RhoBeg...),
		Target:      d.Target,
	}, nil
}

// Parse decodes and compiles a YAML definition.
func Parse(data []byte) (*Instance, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	return d.Compile()
}

// LoadFile reads a YAML problem definition.
func LoadFile(path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}
	inst, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

// Paraboloid is 10*(x0+1)^2 + x1^2 subject to x0 >= 0. The constrained
// minimum is x = [0, 0] with f = 10.
func Paraboloid(x []float64) ([]float64, error) {
	if len(x) != 2 {
		return nil, fmt.Errorf("paraboloid: got %d variables, want 2", len(x))
	}
	return []float64{10*(x[0]+1)*(x[0]+1) + x[1]*x[1], x[0]}, nil
}

// Rosenbrock is the unconstrained 2-D Rosenbrock function, minimum at [1, 1].
func Rosenbrock(x []float64) ([]float64, error) {
	if len(x) != 2 {
		return nil, fmt.Errorf("rosenbrock: got %d variables, want 2", len(x))
	}
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return []float64{a*a + 100*b*b}, nil
}

// Disk minimizes x0 + x1 on the unit disk, minimum at -[1, 1]/sqrt(2).
func Disk(x []float64) ([]float64, error) {
	if len(x) != 2 {
		return nil, fmt.Errorf("disk: got %d variables, want 2", len(x))
	}
	return []float64{x[0] + x[1], 1 - x[0]*x[0] - x[1]*x[1]}, nil
}

var builtins = map[string]func() *Instance{
	"paraboloid": func() *Instance {
		return &Instance{
			Name:        "paraboloid",
			Description: "10*(x0+1)^2 + x1^2 s.t. x0 >= 0",
			Problem:     executor.ProblemFunc(Paraboloid),
			X0:          []float64{1, 1},
			Constraints: 1,
		}
	},
	"rosenbrock": func() *Instance {
		return &Instance{
			Name:        "rosenbrock",
			Description: "(1-x0)^2 + 100*(x1-x0^2)^2",
			Problem:     executor.ProblemFunc(Rosenbrock),
			X0:          []float64{-1.2, 1},
			Constraints: 0,
		}
	},
	"disk": func() *Instance {
		return &Instance{
			Name:        "disk",
			Description: "x0 + x1 s.t. x0^2 + x1^2 <= 1",
			Problem:     executor.ProblemFunc(Disk),
			X0:          []float64{0.5, 0.5},
			Constraints: 1,
		}
	},
}

// Builtin returns a fresh instance of a named built-in problem.
func Builtin(name string) (*Instance, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem %q (available: %v)", name, BuiltinNames())
	}
	return mk(), nil
}

// BuiltinNames lists the built-in problems in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Optimum is the known solution of a built-in problem, used by tests and the
// CLI summary.
func Optimum(name string) ([]float64, bool) {
	switch name {
	case "paraboloid":
		return []float64{0, 0}, true
	case "rosenbrock":
		return []float64{1, 1}, true
	case "disk":
		return []float64{-math.Sqrt2 / 2, -math.Sqrt2 / 2}, true
	}
	return nil, false
}
