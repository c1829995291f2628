package store

// Store persists the records of finished runs.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the record of a run, replacing any previous
	// record with the same ID.
	SaveRun(record *RunRecord) error

	// LoadRun reads the record of a run.
	// Returns ErrNotFound if no record exists for runID.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for every stored run, oldest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the record and trace of a run.
	// Returns ErrNotFound if no record exists for runID.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
