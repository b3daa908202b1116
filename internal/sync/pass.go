package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// EngineConfig wires one Engine. Path1/Path2 are the resolved roots in the
// order the user gave them.
type EngineConfig struct {
	Backend Transferer
	WorkDir string
	Path1   string
	Path2   string
	Ignore  *IgnoreList
	DryRun  bool
}

// Engine runs synchronization passes for one path pair:
// lock -> list both roots -> diff against last state -> reconcile -> apply ->
// commit -> unlock. The core after listing is strictly sequential and
// deterministic; the commit at the end is the only irrevocable step.
type Engine struct {
	backend Transferer
	locks   *LockManager
	workDir string
	path1   string
	path2   string
	ignore  *IgnoreList
	dryRun  bool
}

func NewEngine(cfg EngineConfig) *Engine {
	ignore := cfg.Ignore
	if ignore == nil {
		ignore = NewIgnoreList(cfg.WorkDir, nil)
	}
	return &Engine{
		backend: cfg.Backend,
		locks:   NewLockManager(cfg.WorkDir),
		workDir: cfg.WorkDir,
		path1:   cfg.Path1,
		path2:   cfg.Path2,
		ignore:  ignore,
		dryRun:  cfg.DryRun,
	}
}

// Run performs one complete pass. Every fatal condition maps to a specific
// exit code via ExitError; per-operation transfer failures and conflicts land
// in the report instead.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	pairID := PairID(e.path1, e.path2)
	tStart := time.Now()

	lock, err := e.locks.Acquire(pairID)
	if err != nil {
		return nil, Exit(ExitLockHeld, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release lock", "error", err)
		}
	}()

	store, err := OpenStateStore(filepath.Join(e.workDir, "state", pairID+".db"))
	if err != nil {
		return nil, Exit(ExitStateDB1, err)
	}
	defer store.Close()

	last1, err := store.Load(e.path1)
	if err != nil {
		return nil, Exit(ExitStateDB1, err)
	}
	last2, err := store.Load(e.path2)
	if err != nil {
		return nil, Exit(ExitStateDB2, err)
	}

	// The two listings touch disjoint resources and may run in parallel; a
	// failure on either side cancels the other and aborts the pass before
	// any mutation.
	var current1, current2 Snapshot
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		snapshot, err := e.backend.List(egCtx, e.path1)
		if err != nil {
			return Exit(ExitPath1Invalid, fmt.Errorf("list %s: %w", e.path1, err))
		}
		current1 = e.ignore.FilterSnapshot(snapshot)
		return nil
	})
	eg.Go(func() error {
		snapshot, err := e.backend.List(egCtx, e.path2)
		if err != nil {
			return Exit(ExitPath2Invalid, fmt.Errorf("list %s: %w", e.path2, err))
		}
		current2 = e.ignore.FilterSnapshot(snapshot)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	delta1 := Diff(last1, current1)
	delta2 := Diff(last2, current2)
	plan := Reconcile(delta1, delta2, current1, current2)

	slog.Info("pass planned",
		"pair", pairID[:12],
		"files1", len(current1),
		"files2", len(current2),
		"changes1", len(delta1),
		"changes2", len(delta2),
		"transfers", plan.Transfers(),
		"conflicts", len(plan.Conflicts()),
	)

	executor := NewExecutor(e.backend, store, e.path1, e.path2, e.dryRun)
	report, err := executor.Apply(ctx, plan, last1, last2, current1, current2)
	if err != nil {
		return report, err
	}

	slog.Info("pass complete",
		"copied", report.Copied,
		"deleted", report.Deleted,
		"conflicts", len(report.Conflicts),
		"failures", len(report.Failures),
		"took", time.Since(tStart).Round(time.Millisecond),
	)
	return report, nil
}
