package config

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cwbudde/cobylafit/internal/opt"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // config key, e.g. "solver.max_iters"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config and returns every problem found. Tolerances are
// only checked for NaN; a tolerance <= 0 disables the criterion.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateSolver()...)
	errs = append(errs, c.validateWarmStart()...)
	if c.Store.DataDir == "" {
		errs = append(errs, ValidationError{"store.data_dir", c.Store.DataDir, "must not be empty"})
	}
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}
	return errs
}

func (c *Config) validateSolver() []ValidationError {
	var errs []ValidationError
	s := c.Solver

	if !(s.RhoBeg > 0) || math.IsInf(s.RhoBeg, 0) {
		errs = append(errs, ValidationError{"solver.rhobeg", s.RhoBeg, "must be positive and finite"})
	}
	if s.MaxIters < 0 {
		errs = append(errs, ValidationError{"solver.max_iters", s.MaxIters, "must be >= 0 (0 = unlimited)"})
	}
	if s.MaxTime < 0 {
		errs = append(errs, ValidationError{"solver.max_time", s.MaxTime, "must be >= 0 (0 = unlimited)"})
	}
	if s.IPrint < 0 || s.IPrint > 3 {
		errs = append(errs, ValidationError{"solver.iprint", s.IPrint, "must be between 0 and 3"})
	}
	for _, tol := range []struct {
		key string
		v   float64
	}{
		{"solver.ftol_rel", s.FtolRel},
		{"solver.ftol_abs", s.FtolAbs},
		{"solver.xtol_rel", s.XtolRel},
	} {
		if math.IsNaN(tol.v) {
			errs = append(errs, ValidationError{tol.key, tol.v, "must be a number"})
		}
	}
	for i, v := range s.XtolAbs {
		if math.IsNaN(v) {
			errs = append(errs, ValidationError{fmt.Sprintf("solver.xtol_abs[%d]", i), v, "must be a number"})
		}
	}
	return errs
}

func (c *Config) validateWarmStart() []ValidationError {
	w := c.WarmStart
	if !w.Enabled {
		return nil
	}
	var errs []ValidationError
	if w.Iters < 1 {
		errs = append(errs, ValidationError{"warm_start.iters", w.Iters, "must be >= 1"})
	}
	if w.PopSize < opt.MinMayflyPop {
		errs = append(errs, ValidationError{
			Field:   "warm_start.pop_size",
			Value:   w.PopSize,
			Message: fmt.Sprintf("must be >= %d", opt.MinMayflyPop),
		})
	}
	if !(w.Span > 0) || math.IsInf(w.Span, 0) {
		errs = append(errs, ValidationError{"warm_start.span", w.Span, "must be positive and finite"})
	}
	return errs
}
