package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cobylafit/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage saved runs",
	Long:  `List, inspect and clean the run records saved by "cobylafit run".`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs",
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a saved run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete saved runs by age, by count, or both.
Records and traces are removed together.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd, showRunCmd, cleanRunsCmd)

	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the run's trace entries")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recent runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func dataDir() string {
	if cfg != nil {
		return cfg.Store.DataDir
	}
	return "./data"
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(dataDir())
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tPROBLEM\tSTATUS\tEVALS\tBEST COST\tSIZE")
	fmt.Fprintln(w, "------\t-------\t-------\t------\t-----\t---------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(runStore.RunDir(info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}
		best := "-"
		if info.BestCost != nil {
			best = fmt.Sprintf("%.6g", *info.BestCost)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(info.RunID),
			info.StartedAt.Format("2006-01-02 15:04:05"),
			info.Problem,
			info.Status,
			info.CostEvals,
			best,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(dataDir())
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", record.RunID)
	fmt.Fprintf(w, "Problem:\t%s\n", record.Problem)
	fmt.Fprintf(w, "Solver:\t%s\n", record.Solver)
	fmt.Fprintf(w, "Status:\t%s (%s)\n", record.Status, record.Phase)
	fmt.Fprintf(w, "Termination:\t%s\n", record.Termination)
	if record.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", record.Error)
	}
	fmt.Fprintf(w, "x0:\t%v\n", record.X0)
	if record.BestCost != nil {
		fmt.Fprintf(w, "Best params:\t%v\n", record.BestParams)
		fmt.Fprintf(w, "Best cost:\t%g\n", *record.BestCost)
		if len(record.Constraints) > 0 {
			fmt.Fprintf(w, "Constraints:\t%v\n", record.Constraints)
		}
	}
	fmt.Fprintf(w, "Iterations:\t%d\n", record.Iterations)
	fmt.Fprintf(w, "Cost evals:\t%d\n", record.CostEvals)
	fmt.Fprintf(w, "Started:\t%s\n", record.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:\t%s\n", record.Duration())
	fmt.Fprintf(w, "RhoBeg:\t%v\n", record.Config.RhoBeg)
	w.Flush()

	if !showTrace {
		return nil
	}

	reader, err := store.NewTraceReader(runStore.BaseDir(), record.RunID)
	if err != nil {
		return err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tITER\tEVALS\tCOST\tFIELDS")
	for _, e := range entries {
		cost := "-"
		if e.Cost != nil {
			cost = fmt.Sprintf("%.6g", *e.Cost)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%v\n", e.Event, e.Iteration, e.CostEvals, cost, e.Fields)
	}
	return tw.Flush()
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(dataDir())
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Println("No runs match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %s)\n",
			shortID(info.RunID),
			info.Problem,
			info.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns the runs started before now minus
// olderThanDays, plus the oldest runs beyond the keepLast most recent ones.
// Each run appears at most once.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	var toDelete []store.RunInfo
	seen := make(map[string]bool)
	add := func(info store.RunInfo) {
		if !seen[info.RunID] {
			seen[info.RunID] = true
			toDelete = append(toDelete, info)
		}
	}

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.StartedAt.Before(cutoff) {
				add(info)
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := append([]store.RunInfo(nil), infos...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			add(info)
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
