package opt

import (
	"fmt"
	"math"
)

// StopTols are the tolerance-based stopping criteria. A tolerance <= 0 is
// disabled; the zero value disables every check.
type StopTols struct {
	// FtolRel stops when f changes by less than FtolRel*|f|.
	FtolRel float64
	// FtolAbs stops when f changes by less than FtolAbs.
	FtolAbs float64
	// XtolRel stops when every x[i] changes by less than XtolRel*|x[i]|.
	XtolRel float64
	// XtolAbs stops when every x[i] changes by less than XtolAbs[i]. When
	// set it must have one entry per parameter.
	XtolAbs []float64
}

// Validate checks the tolerances against a problem of dimension n.
func (t StopTols) Validate(n int) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"ftol_rel", t.FtolRel},
		{"ftol_abs", t.FtolAbs},
		{"xtol_rel", t.XtolRel},
	} {
		if math.IsNaN(f.v) {
			return &ConfigError{Field: f.name, Message: "must be a number"}
		}
	}
	if len(t.XtolAbs) == 0 {
		return nil
	}
	if len(t.XtolAbs) != n {
		return &ConfigError{
			Field:   "xtol_abs",
			Message: fmt.Sprintf("has %d entries, want %d", len(t.XtolAbs), n),
		}
	}
	for i, v := range t.XtolAbs {
		if math.IsNaN(v) {
			return &ConfigError{Field: fmt.Sprintf("xtol_abs[%d]", i), Message: "must be a number"}
		}
	}
	return nil
}

// RhoBeg is the initial step per parameter: one value for every dimension
// (RhoBegAll) or one value each (RhoBegSet).
type RhoBeg struct {
	all    float64
	values []float64
	perDim bool
}

// RhoBegAll uses v for every dimension.
func RhoBegAll(v float64) RhoBeg {
	return RhoBeg{all: v}
}

// RhoBegSet uses values[i] for dimension i.
func RhoBegSet(values []float64) RhoBeg {
	return RhoBeg{values: append([]float64(nil), values...), perDim: true}
}

// DefaultRhoBeg is RhoBegAll(1).
func DefaultRhoBeg() RhoBeg {
	return RhoBegAll(1)
}

// Expand returns the per-dimension steps for a problem of dimension n. A
// per-dimension RhoBeg of the wrong length is an error, never padded or
// truncated.
func (r RhoBeg) Expand(n int) ([]float64, error) {
	var out []float64
	if r.perDim {
		if len(r.values) != n {
			return nil, &ConfigError{
				Field:   "rhobeg",
				Message: fmt.Sprintf("has %d entries, want %d", len(r.values), n),
			}
		}
		out = append([]float64(nil), r.values...)
	} else {
		out = make([]float64, n)
		for i := range out {
			out[i] = r.all
		}
	}
	for i, v := range out {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, &ConfigError{
				Field:   fmt.Sprintf("rhobeg[%d]", i),
				Message: fmt.Sprintf("must be positive and finite, got %v", v),
			}
		}
	}
	return out, nil
}

func (r RhoBeg) String() string {
	if r.perDim {
		return fmt.Sprintf("Set(%v)", r.values)
	}
	return fmt.Sprintf("All(%v)", r.all)
}

// ConfigError describes an invalid solver configuration. Runs that hit one
// finish with InvalidArgs before any evaluation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
