package opt

import (
	"fmt"

	"github.com/cwbudde/cobylafit/internal/cobyla"
)

// Status is the reason a COBYLA run ended. It is implemented only by
// SuccessStatus and FailStatus.
type Status interface {
	fmt.Stringer
	// Success reports whether the status is a successful termination.
	Success() bool
	// Phase is the terminal phase the status belongs to.
	Phase() Phase
	isStatus()
}

// SuccessStatus enumerates successful terminations.
type SuccessStatus int

const (
	Success SuccessStatus = iota + 1
	StopValReached
	FtolReached
	XtolReached
	MaxEvalReached
	MaxTimeReached
)

var successNames = [...]string{
	Success:        "Success",
	StopValReached: "StopValReached",
	FtolReached:    "FtolReached",
	XtolReached:    "XtolReached",
	MaxEvalReached: "MaxEvalReached",
	MaxTimeReached: "MaxTimeReached",
}

func (s SuccessStatus) String() string {
	if s > 0 && int(s) < len(successNames) {
		return successNames[s]
	}
	return fmt.Sprintf("SuccessStatus(%d)", int(s))
}

func (SuccessStatus) Success() bool { return true }

func (s SuccessStatus) Phase() Phase {
	if s == MaxEvalReached || s == MaxTimeReached {
		return Exhausted
	}
	return Converged
}

func (SuccessStatus) isStatus() {}

// FailStatus enumerates failed terminations.
type FailStatus int

const (
	Failure FailStatus = iota + 1
	InvalidArgs
	OutOfMemory
	RoundoffLimited
	ForcedStop
	UnexpectedError
)

var failNames = [...]string{
	Failure:         "Failure",
	InvalidArgs:     "InvalidArgs",
	OutOfMemory:     "OutOfMemory",
	RoundoffLimited: "RoundoffLimited",
	ForcedStop:      "ForcedStop",
	UnexpectedError: "UnexpectedError",
}

func (s FailStatus) String() string {
	if s > 0 && int(s) < len(failNames) {
		return failNames[s]
	}
	return fmt.Sprintf("FailStatus(%d)", int(s))
}

func (FailStatus) Success() bool { return false }

func (FailStatus) Phase() Phase { return Failed }

func (FailStatus) isStatus() {}

// Phase is the lifecycle position of a CobylaState.
type Phase int

const (
	Uninitialized Phase = iota
	Running
	Converged
	Exhausted
	Failed
)

var phaseNames = [...]string{
	Uninitialized: "uninitialized",
	Running:       "running",
	Converged:     "converged",
	Exhausted:     "exhausted",
	Failed:        "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == Converged || p == Exhausted || p == Failed
}

// statusTable maps every raw engine code onto the status taxonomy.
var statusTable = map[cobyla.Code]Status{
	cobyla.Success:         Success,
	cobyla.StopValReached:  StopValReached,
	cobyla.FtolReached:     FtolReached,
	cobyla.XtolReached:     XtolReached,
	cobyla.MaxEvalReached:  MaxEvalReached,
	cobyla.MaxTimeReached:  MaxTimeReached,
	cobyla.Failure:         Failure,
	cobyla.InvalidArgs:     InvalidArgs,
	cobyla.OutOfMemory:     OutOfMemory,
	cobyla.RoundoffLimited: RoundoffLimited,
	cobyla.ForcedStop:      ForcedStop,
}

// TranslateCode maps a raw engine code to a Status. Codes outside the known
// set map to UnexpectedError.
func TranslateCode(code cobyla.Code) Status {
	if s, ok := statusTable[code]; ok {
		return s
	}
	return UnexpectedError
}

// StatusError is returned by a run that ended with a FailStatus.
type StatusError struct {
	Status FailStatus
	// Err is the underlying detail, if any (e.g. the configuration error
	// behind InvalidArgs).
	Err error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cobyla: %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("cobyla: %s", e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is matches another *StatusError with the same status, so callers can test
// errors.Is(err, &StatusError{Status: InvalidArgs}).
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}
