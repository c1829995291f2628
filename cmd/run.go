package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/cobylafit/internal/config"
	"github.com/cwbudde/cobylafit/internal/executor"
	"github.com/cwbudde/cobylafit/internal/opt"
	"github.com/cwbudde/cobylafit/internal/problem"
	"github.com/cwbudde/cobylafit/internal/store"
)

var (
	problemName string
	problemFile string
	objective   string
	constraints []string
	startPoint  []float64
	rhobegSet   []float64
	xtolAbs     []float64
	targetCost  float64
	observe     string
	patience    int
	threshold   float64
	noSave      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a problem with COBYLA",
	Long: `Runs COBYLA on a built-in problem, an expression problem given with
--objective/--constraint, or a YAML problem file. Constraints are satisfied
when they are >= 0. The run record and trace are saved under the data
directory unless --no-save is given.`,
	Example: `  cobylafit run
  cobylafit run --problem disk --xtol-rel 1e-8
  cobylafit run --objective "(x0-3)**2 + (x1+1)**2" --constraint "2 - x0" --x0 0,0
  cobylafit run --file problems/disk.yaml --warm-start`,
	RunE: runOptimization,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&problemName, "problem", "paraboloid", fmt.Sprintf("Built-in problem: %s", strings.Join(problem.BuiltinNames(), ", ")))
	f.StringVar(&problemFile, "file", "", "YAML problem definition")
	f.StringVar(&objective, "objective", "", "Objective expression in x0..xN")
	f.StringArrayVar(&constraints, "constraint", nil, "Constraint expression, satisfied when >= 0 (repeatable)")
	f.Float64SliceVar(&startPoint, "x0", nil, "Starting point (comma separated)")
	f.Float64SliceVar(&rhobegSet, "rhobeg-set", nil, "Per-dimension initial step (comma separated)")
	f.Float64SliceVar(&xtolAbs, "xtol-abs", nil, "Per-dimension absolute x tolerance (comma separated)")
	f.Float64Var(&targetCost, "target", 0, "Stop once a feasible point reaches this objective")
	f.StringVar(&observe, "observe", "always", "Observer mode: always, never, new_best, every:N")
	f.IntVar(&patience, "patience", 0, "Stop after N iterations without improvement (0 = off)")
	f.Float64Var(&threshold, "threshold", 0, "Minimum improvement that resets --patience")
	f.BoolVar(&noSave, "no-save", false, "Do not write a run record")

	f.Float64("rhobeg", config.Default().Solver.RhoBeg, "Initial step for every dimension")
	f.Int("max-iters", config.Default().Solver.MaxIters, "Evaluation budget (0 = unlimited)")
	f.Duration("max-time", 0, "Wall-clock budget (0 = unlimited)")
	f.Int("iprint", 0, "Engine verbosity (0-3)")
	f.Float64("ftol-rel", 0, "Relative objective tolerance (0 = off)")
	f.Float64("ftol-abs", 0, "Absolute objective tolerance (0 = off)")
	f.Float64("xtol-rel", config.Default().Solver.XtolRel, "Relative x tolerance (0 = off)")
	f.Bool("warm-start", false, "Pick x0 with a mayfly search around the starting point")

	for key, flag := range map[string]string{
		"solver.rhobeg":      "rhobeg",
		"solver.max_iters":   "max-iters",
		"solver.max_time":    "max-time",
		"solver.iprint":      "iprint",
		"solver.ftol_rel":    "ftol-rel",
		"solver.ftol_abs":    "ftol-abs",
		"solver.xtol_rel":    "xtol-rel",
		"warm_start.enabled": "warm-start",
	} {
		bindFlag(key, f, flag)
	}

	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	inst, err := resolveProblem()
	if err != nil {
		return err
	}
	if len(startPoint) > 0 {
		inst.X0 = append([]float64(nil), startPoint...)
	}
	if len(xtolAbs) > 0 {
		cfg.Solver.XtolAbs = append([]float64(nil), xtolAbs...)
	}

	rhobeg := opt.RhoBegAll(cfg.Solver.RhoBeg)
	switch {
	case len(rhobegSet) > 0:
		rhobeg = opt.RhoBegSet(rhobegSet)
	case len(inst.RhoBeg) > 0 && !cmd.Flags().Changed("rhobeg"):
		rhobeg = opt.RhoBegSet(inst.RhoBeg)
	}

	mode, err := parseObserverMode(observe)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	x0 := inst.X0
	if cfg.WarmStart.Enabled {
		x0, err = warmStart(inst, rhobeg)
		if err != nil {
			return err
		}
	}

	opts := []opt.Option{
		opt.WithRhoBeg(rhobeg),
		opt.WithStopTols(cfg.Solver.StopTols()),
		opt.WithConstraintCount(inst.Constraints),
		opt.WithLogger(logger),
	}
	target := inst.Target
	if cmd.Flags().Changed("target") {
		target = &targetCost
	}
	if target != nil {
		opts = append(opts, opt.WithTargetCost(*target))
	}
	solver := opt.NewCobylaSolver(x0, opts...)

	exec := executor.New[*opt.CobylaState](opt.Interruptible(ctx, inst.Problem), solver).
		Configure(func(c *executor.Config) {
			c.MaxIters = cfg.Solver.MaxIters
			c.MaxTime = cfg.Solver.MaxTime
			c.IPrint = cfg.Solver.IPrint
			if patience > 0 {
				c.Convergence = executor.ConvergenceConfig{
					Enabled:   true,
					Patience:  patience,
					Threshold: threshold,
				}
			}
		}).
		Timer(true).
		WithLogger(logger).
		AddObserver(executor.NewLoggerObserver(logger), mode)

	save := cfg.Store.Save && !noSave
	runID := store.NewRunID()
	var runStore *store.FSStore
	if save {
		runStore, err = store.NewFSStore(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		if cfg.Store.Trace {
			tw, err := store.NewTraceWriter(runStore.BaseDir(), runID, false)
			if err != nil {
				return err
			}
			defer tw.Close()
			exec.AddObserver(store.NewTraceObserver(tw, true), executor.Always)
		}
	}

	slog.Info("Starting optimization",
		"run_id", runID,
		"problem", inst.Name,
		"dim", len(x0),
		"constraints", inst.Constraints,
		"rhobeg", rhobeg.String(),
	)

	started := time.Now()
	res, runErr := exec.Run(ctx)
	finished := time.Now()

	if save {
		record := newRunRecord(runID, inst, x0, rhobeg, target, res, runErr, started, finished)
		if err := runStore.SaveRun(record); err != nil {
			slog.Error("Failed to save run", "run_id", runID, "error", err)
		} else {
			slog.Info("Saved run", "run_id", runID, "dir", runStore.RunDir(runID))
		}
	}

	fmt.Print(res.String())
	if known, ok := problem.Optimum(inst.Name); ok && problemFile == "" && objective == "" {
		fmt.Printf("    Known optimum: %v\n", known)
	}
	return runErr
}

// resolveProblem picks the problem source: a YAML file, an objective
// expression, or a built-in, in that order.
func resolveProblem() (*problem.Instance, error) {
	switch {
	case problemFile != "":
		return problem.LoadFile(problemFile)
	case objective != "":
		if len(startPoint) == 0 {
			return nil, fmt.Errorf("--objective requires --x0")
		}
		p, err := problem.NewExprProblem(len(startPoint), objective, constraints)
		if err != nil {
			return nil, err
		}
		return &problem.Instance{
			Name:        "expr",
			Description: objective,
			Problem:     p,
			X0:          append([]float64(nil), startPoint...),
			Constraints: p.Constraints(),
		}, nil
	}
	return problem.Builtin(problemName)
}

func warmStart(inst *problem.Instance, rhobeg opt.RhoBeg) ([]float64, error) {
	steps, err := rhobeg.Expand(len(inst.X0))
	if err != nil {
		return nil, err
	}
	lower, upper, err := opt.BoundsAround(inst.X0, steps, cfg.WarmStart.Span)
	if err != nil {
		return nil, err
	}
	ws := cfg.WarmStart
	slog.Info("Warm start", "iters", ws.Iters, "pop_size", ws.PopSize, "seed", ws.Seed, "span", ws.Span)

	x0, cost, err := opt.WarmStart(inst.Problem, opt.NewMayfly(ws.Iters, ws.PopSize, ws.Seed), lower, upper, opt.DefaultPenalty)
	if err != nil {
		return nil, err
	}
	slog.Info("Warm start complete", "x0", x0, "penalized_cost", cost)
	return x0, nil
}

// parseObserverMode accepts always, never, new_best and every:N.
func parseObserverMode(s string) (executor.ObserverMode, error) {
	switch s {
	case "always":
		return executor.Always, nil
	case "never":
		return executor.Never, nil
	case "new_best":
		return executor.NewBest, nil
	}
	if n, ok := strings.CutPrefix(s, "every:"); ok {
		v, err := strconv.Atoi(n)
		if err != nil || v < 1 {
			return executor.ObserverMode{}, fmt.Errorf("invalid observer mode %q: every needs a positive count", s)
		}
		return executor.Every(v), nil
	}
	return executor.ObserverMode{}, fmt.Errorf("unknown observer mode %q", s)
}

func newRunRecord(
	runID string,
	inst *problem.Instance,
	x0 []float64,
	rhobeg opt.RhoBeg,
	target *float64,
	res *executor.Result[*opt.CobylaState],
	runErr error,
	started, finished time.Time,
) *store.RunRecord {
	state := res.State
	name := inst.Name
	if problemFile != "" {
		name = problemFile
	}

	record := &store.RunRecord{
		RunID:       runID,
		Problem:     name,
		Solver:      res.Solver,
		X0:          append([]float64(nil), x0...),
		Phase:       state.Phase().String(),
		Termination: string(res.Termination.Reason),
		Iterations:  state.Iter(),
		CostEvals:   state.CostEvals(),
		StartedAt:   started,
		FinishedAt:  finished,
		Config: store.RunConfig{
			MaxIters:  cfg.Solver.MaxIters,
			MaxTimeMs: cfg.Solver.MaxTime.Milliseconds(),
			FtolRel:   cfg.Solver.FtolRel,
			FtolAbs:   cfg.Solver.FtolAbs,
			XtolRel:   cfg.Solver.XtolRel,
			XtolAbs:   cfg.Solver.XtolAbs,
			Target:    target,
			WarmStart: cfg.WarmStart.Enabled,
		},
	}
	if steps, err := rhobeg.Expand(len(x0)); err == nil {
		record.Config.RhoBeg = steps
	}
	if cfg.WarmStart.Enabled {
		record.Config.Seed = cfg.WarmStart.Seed
	}

	if status := state.Status(); status != nil {
		record.Status = status.String()
	} else {
		record.Status = state.Phase().String()
	}
	if runErr != nil {
		record.Error = runErr.Error()
		var se *opt.StatusError
		if !errors.As(runErr, &se) && state.Status() == nil {
			record.Status = string(res.Termination.Reason)
		}
	}

	if params, err := state.BestParam(); err == nil {
		cost, _ := state.BestCostVector()
		record.SetBest(params, cost)
	}
	return record
}
