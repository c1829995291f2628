package opt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cwbudde/cobylafit/internal/cobyla"
)

func TestTranslateCode(t *testing.T) {
	tests := []struct {
		code cobyla.Code
		want Status
	}{
		{cobyla.Success, Success},
		{cobyla.StopValReached, StopValReached},
		{cobyla.FtolReached, FtolReached},
		{cobyla.XtolReached, XtolReached},
		{cobyla.MaxEvalReached, MaxEvalReached},
		{cobyla.MaxTimeReached, MaxTimeReached},
		{cobyla.Failure, Failure},
		{cobyla.InvalidArgs, InvalidArgs},
		{cobyla.OutOfMemory, OutOfMemory},
		{cobyla.RoundoffLimited, RoundoffLimited},
		{cobyla.ForcedStop, ForcedStop},
		{cobyla.Code(0), UnexpectedError},
		{cobyla.Code(42), UnexpectedError},
		{cobyla.Code(-99), UnexpectedError},
	}
	for _, tt := range tests {
		if got := TranslateCode(tt.code); got != tt.want {
			t.Errorf("TranslateCode(%d) = %v, want %v", int(tt.code), got, tt.want)
		}
	}
}

func TestTranslateCodeTotal(t *testing.T) {
	for c := -1000; c <= 1000; c++ {
		s := TranslateCode(cobyla.Code(c))
		if s == nil {
			t.Fatalf("TranslateCode(%d) = nil", c)
		}
		if !s.Phase().Terminal() {
			t.Fatalf("TranslateCode(%d) = %v with non-terminal phase %v", c, s, s.Phase())
		}
	}
}

func TestStatusPhases(t *testing.T) {
	tests := []struct {
		status  Status
		success bool
		phase   Phase
		name    string
	}{
		{Success, true, Converged, "Success"},
		{StopValReached, true, Converged, "StopValReached"},
		{FtolReached, true, Converged, "FtolReached"},
		{XtolReached, true, Converged, "XtolReached"},
		{MaxEvalReached, true, Exhausted, "MaxEvalReached"},
		{MaxTimeReached, true, Exhausted, "MaxTimeReached"},
		{Failure, false, Failed, "Failure"},
		{InvalidArgs, false, Failed, "InvalidArgs"},
		{OutOfMemory, false, Failed, "OutOfMemory"},
		{RoundoffLimited, false, Failed, "RoundoffLimited"},
		{ForcedStop, false, Failed, "ForcedStop"},
		{UnexpectedError, false, Failed, "UnexpectedError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.status.Success() != tt.success {
				t.Errorf("Success() = %v, want %v", tt.status.Success(), tt.success)
			}
			if tt.status.Phase() != tt.phase {
				t.Errorf("Phase() = %v, want %v", tt.status.Phase(), tt.phase)
			}
			if tt.status.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.status.String(), tt.name)
			}
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	for p, want := range map[Phase]bool{
		Uninitialized: false,
		Running:       false,
		Converged:     true,
		Exhausted:     true,
		Failed:        true,
	} {
		if p.Terminal() != want {
			t.Errorf("%v.Terminal() = %v, want %v", p, p.Terminal(), want)
		}
	}
}

func TestStatusError(t *testing.T) {
	cause := &ConfigError{Field: "rhobeg", Message: "has 1 entries, want 2"}
	err := fmt.Errorf("run: %w", &StatusError{Status: InvalidArgs, Err: cause})

	if !errors.Is(err, &StatusError{Status: InvalidArgs}) {
		t.Error("errors.Is does not match on status")
	}
	if errors.Is(err, &StatusError{Status: Failure}) {
		t.Error("errors.Is matched a different status")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "rhobeg" {
		t.Errorf("errors.As did not reach the cause: %v", err)
	}
	want := "run: cobyla: InvalidArgs: invalid rhobeg: has 1 entries, want 2"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := (&StatusError{Status: RoundoffLimited}).Error(); got != "cobyla: RoundoffLimited" {
		t.Errorf("Error() = %q", got)
	}
}
