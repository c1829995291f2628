package opt

import "github.com/cwbudde/cobylafit/internal/cobyla"

// Engine runs one complete COBYLA solve. The solver treats it as a black box
// so it can be replaced, e.g. by a stub in tests.
type Engine interface {
	Minimize(fn cobyla.Func, x0 []float64, m int, opts cobyla.Options) (cobyla.Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(fn cobyla.Func, x0 []float64, m int, opts cobyla.Options) (cobyla.Result, error)

// Minimize calls f.
func (f EngineFunc) Minimize(fn cobyla.Func, x0 []float64, m int, opts cobyla.Options) (cobyla.Result, error) {
	return f(fn, x0, m, opts)
}

// DefaultEngine is the built-in implementation from package cobyla.
var DefaultEngine Engine = EngineFunc(cobyla.Minimize)
