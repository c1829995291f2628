package opt

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRhoBegExpand(t *testing.T) {
	tests := []struct {
		name    string
		rhobeg  RhoBeg
		n       int
		want    []float64
		wantErr bool
	}{
		{"all", RhoBegAll(0.5), 3, []float64{0.5, 0.5, 0.5}, false},
		{"default", DefaultRhoBeg(), 2, []float64{1, 1}, false},
		{"set", RhoBegSet([]float64{1, 2}), 2, []float64{1, 2}, false},
		{"set too short", RhoBegSet([]float64{1}), 2, nil, true},
		{"set too long", RhoBegSet([]float64{1, 2, 3}), 2, nil, true},
		{"zero", RhoBegAll(0), 2, nil, true},
		{"negative entry", RhoBegSet([]float64{1, -1}), 2, nil, true},
		{"nan", RhoBegAll(math.NaN()), 1, nil, true},
		{"inf", RhoBegAll(math.Inf(1)), 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rhobeg.Expand(tt.n)
			if tt.wantErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("Expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Expand mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRhoBegSetCopies(t *testing.T) {
	values := []float64{1, 2}
	r := RhoBegSet(values)
	values[0] = -5
	got, err := r.Expand(2)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("RhoBegSet aliases its input: %v", got)
	}
}

func TestRhoBegString(t *testing.T) {
	if got := RhoBegAll(0.5).String(); got != "All(0.5)" {
		t.Errorf("String() = %q", got)
	}
	if got := RhoBegSet([]float64{1, 2}).String(); got != "Set([1 2])" {
		t.Errorf("String() = %q", got)
	}
}

func TestStopTolsValidate(t *testing.T) {
	tests := []struct {
		name    string
		tols    StopTols
		n       int
		wantErr string
	}{
		{"zero value", StopTols{}, 2, ""},
		{"all set", StopTols{FtolRel: 1e-8, FtolAbs: 1e-8, XtolRel: 1e-6, XtolAbs: []float64{1e-6, 1e-6}}, 2, ""},
		{"negative disables", StopTols{FtolRel: -1}, 2, ""},
		{"xtol_abs length", StopTols{XtolAbs: []float64{1e-6, 1e-6, 1e-6}}, 2, "xtol_abs"},
		{"nan ftol_abs", StopTols{FtolAbs: math.NaN()}, 2, "ftol_abs"},
		{"nan xtol_abs entry", StopTols{XtolAbs: []float64{1, math.NaN()}}, 2, "xtol_abs[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tols.Validate(tt.n)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantErr)
			}
		})
	}
}
