package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// createTestRecord creates a run record with test data.
func createTestRecord(runID string, started time.Time) *RunRecord {
	r := &RunRecord{
		RunID:       runID,
		Problem:     "paraboloid",
		Solver:      "COBYLA",
		X0:          []float64{1, 1},
		Status:      "MaxEvalReached",
		Phase:       "exhausted",
		Termination: "solver_exhausted(MaxEvalReached)",
		Iterations:  1,
		CostEvals:   101,
		StartedAt:   started,
		FinishedAt:  started.Add(15 * time.Millisecond),
		Config: RunConfig{
			RhoBeg:   []float64{1, 1},
			MaxIters: 100,
		},
	}
	r.SetBest([]float64{0, 1e-5}, []float64{10.0000001, 0})
	return r
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("BaseDir = %q, want %q", store.BaseDir(), dir)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	record := createTestRecord("run-123", time.Now())
	if err := store.SaveRun(record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "runs", "run-123", "record.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Record file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file left behind")
	}
}

func TestSaveRun_Invalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRun(nil); err == nil {
		t.Error("Expected error for nil record")
	}

	record := createTestRecord("", time.Now())
	err := store.SaveRun(record)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "RunID" {
		t.Errorf("Expected RunID validation error, got %v", err)
	}
}

func TestSaveRun_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	record := createTestRecord("run-1", time.Now())
	if err := store.SaveRun(record); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	record.Status = "Success"
	record.CostEvals = 7
	if err := store.SaveRun(record); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Status != "Success" || loaded.CostEvals != 7 {
		t.Errorf("Record not overwritten: %+v", loaded)
	}
}

func TestLoadRun(t *testing.T) {
	store, _ := setupTestStore(t)

	original := createTestRecord("run-load", time.Now().Round(0))
	if err := store.SaveRun(original); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := store.LoadRun("run-load")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.RunID != original.RunID || loaded.Problem != original.Problem {
		t.Errorf("Identity mismatch: %+v", loaded)
	}
	if loaded.BestCost == nil || *loaded.BestCost != *original.BestCost {
		t.Errorf("BestCost = %v, want %v", loaded.BestCost, *original.BestCost)
	}
	if len(loaded.BestParams) != 2 || loaded.BestParams[1] != 1e-5 {
		t.Errorf("BestParams = %v", loaded.BestParams)
	}
	if !loaded.StartedAt.Equal(original.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", loaded.StartedAt, original.StartedAt)
	}
	if loaded.Duration() != 15*time.Millisecond {
		t.Errorf("Duration = %v, want 15ms", loaded.Duration())
	}
}

func TestLoadRun_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.RunID != "missing" {
		t.Errorf("Expected NotFoundError for run 'missing', got %v", err)
	}
}

func TestLoadRun_EmptyID(t *testing.T) {
	store, _ := setupTestStore(t)
	if _, err := store.LoadRun(""); err == nil {
		t.Error("Expected error for empty runID")
	}
}

func TestListRuns_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected 0 runs, got %d", len(infos))
	}
}

func TestListRuns_OldestFirst(t *testing.T) {
	store, _ := setupTestStore(t)

	base := time.Now()
	for i, id := range []string{"run-c", "run-a", "run-b"} {
		record := createTestRecord(id, base.Add(time.Duration(2-i)*time.Minute))
		if err := store.SaveRun(record); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	want := []string{"run-b", "run-a", "run-c"}
	if len(infos) != len(want) {
		t.Fatalf("Expected %d runs, got %d", len(want), len(infos))
	}
	for i, id := range want {
		if infos[i].RunID != id {
			t.Errorf("infos[%d] = %s, want %s", i, infos[i].RunID, id)
		}
	}
}

func TestListRuns_SkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRecord("valid-run", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Directory without record.json
	if err := os.MkdirAll(filepath.Join(tempDir, "runs", "empty-run"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	// Corrupted record
	corrupt := filepath.Join(tempDir, "runs", "corrupt-run")
	if err := os.MkdirAll(corrupt, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, "record.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt record: %v", err)
	}
	// Stray file
	if err := os.WriteFile(filepath.Join(tempDir, "runs", "README"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 || infos[0].RunID != "valid-run" {
		t.Errorf("Expected only valid-run, got %+v", infos)
	}
}

func TestDeleteRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRun(createTestRecord("run-del", time.Now())); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	w, err := NewTraceWriter(tempDir, "run-del", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	w.Close()

	if err := store.DeleteRun("run-del"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := os.Stat(store.RunDir("run-del")); !os.IsNotExist(err) {
		t.Error("Run directory still exists after delete")
	}
	if _, err := store.LoadRun("run-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteRun_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.DeleteRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteRun(""); err == nil {
		t.Error("Expected error for empty runID")
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numRuns = 10
	done := make(chan bool, numRuns)

	for i := 0; i < numRuns; i++ {
		go func(idx int) {
			record := createTestRecord(fmt.Sprintf("concurrent-run-%d", idx), time.Now())
			if err := store.SaveRun(record); err != nil {
				t.Errorf("Concurrent save failed for run %s: %v", record.RunID, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < numRuns; i++ {
		<-done
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != numRuns {
		t.Errorf("Expected %d runs, got %d", numRuns, len(infos))
	}
}
