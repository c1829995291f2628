package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/cobylafit/internal/executor"
)

// TraceEntry is one line of a run's trace.jsonl.
type TraceEntry struct {
	// Event is "init" for the line written before the first iteration and
	// "iter" for every observed iteration.
	Event string `json:"event"`

	Iteration int `json:"iteration"`
	CostEvals int `json:"costEvals"`

	// Cost is the best cost so far; omitted before the first evaluation.
	Cost *float64 `json:"cost,omitempty"`

	// Params are the best parameters so far (optional).
	Params []float64 `json:"params,omitempty"`

	// Fields holds the solver's key/value report for the step.
	Fields map[string]any `json:"fields,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// TracePath returns the trace file of a run under baseDir.
func TracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates the trace file of a run, truncating an existing one
// unless append is true.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	path := TracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of a run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(TracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read reads the next entry. Returns io.EOF when no more entries are
// available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace file of a run.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, runID string) error {
	err := os.Remove(TracePath(baseDir, runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}

// TraceObserver records a run's progress through a TraceWriter. It
// implements executor.Observer.
type TraceObserver struct {
	w          *TraceWriter
	withParams bool
	now        func() time.Time
}

// NewTraceObserver returns an observer writing to w. When withParams is set
// every entry carries the best parameters.
func NewTraceObserver(w *TraceWriter, withParams bool) *TraceObserver {
	return &TraceObserver{w: w, withParams: withParams, now: time.Now}
}

func (o *TraceObserver) ObserveInit(solver string, state executor.State, kv executor.KV) error {
	entry := o.entry("init", state, kv)
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}
	entry.Fields["solver"] = solver
	return o.w.Write(entry)
}

func (o *TraceObserver) ObserveIter(state executor.State, kv executor.KV) error {
	return o.w.Write(o.entry("iter", state, kv))
}

func (o *TraceObserver) entry(event string, state executor.State, kv executor.KV) TraceEntry {
	entry := TraceEntry{
		Event:     event,
		Iteration: state.Iter(),
		CostEvals: state.CostEvals(),
		Fields:    fields(kv),
		Timestamp: o.now(),
	}
	if cost, err := state.BestCost(); err == nil {
		c := finite([]float64{cost})[0]
		entry.Cost = &c
	}
	if o.withParams {
		if params, err := state.BestParam(); err == nil {
			entry.Params = finite(params)
		}
	}
	return entry
}

// fields turns slog-style key/value pairs into a map. A trailing key
// without a value is dropped.
func fields(kv executor.KV) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		v := kv[i+1]
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			v = fmt.Sprint(f)
		}
		m[key] = v
	}
	return m
}

var _ executor.Observer = (*TraceObserver)(nil)
