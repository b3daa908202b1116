package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Transferer is the capability set the engine needs from the external
// transfer tool. The rclone adapter implements it for real; tests substitute
// an in-memory backend.
type Transferer interface {
	// List enumerates every file under root. A partial enumeration must fail
	// rather than return, since a partial snapshot reads as mass deletion.
	List(ctx context.Context, root string) (Snapshot, error)

	// Copy transfers srcRoot/rel to dstRoot/rel, creating parents as needed.
	Copy(ctx context.Context, srcRoot, dstRoot, rel string) error

	// Delete removes root/rel.
	Delete(ctx context.Context, root, rel string) error
}

// Executor applies a transfer plan through the backend and, only after the
// whole plan has been attempted, commits the resulting state for both roots.
// The commit is the single irrevocable step of a pass: cancellation or a
// connectivity-fatal failure before it leaves both stores untouched.
type Executor struct {
	backend Transferer
	store   *StateStore
	path1   string
	path2   string
	dryRun  bool
}

func NewExecutor(backend Transferer, store *StateStore, path1, path2 string, dryRun bool) *Executor {
	return &Executor{
		backend: backend,
		store:   store,
		path1:   path1,
		path2:   path2,
		dryRun:  dryRun,
	}
}

// Apply executes the plan sequentially. Per-operation failures are recorded
// and execution continues with independent operations; connectivity-fatal
// failures abort the pass immediately with no commit. Successful operations
// stage their resulting records, and the final commit per side is the union
// of unchanged records and staged updates. Failed paths are omitted so the
// next pass re-detects them (self-healing retry via re-diff).
func (e *Executor) Apply(ctx context.Context, plan *TransferPlan, last1, last2, current1, current2 Snapshot) (*Report, error) {
	started := time.Now()
	report := &Report{DryRun: e.dryRun}

	staged1 := make(map[string]*FileRecord)
	staged2 := make(map[string]*FileRecord)
	failed := make(map[string]struct{})
	conflicted := make(map[string]struct{})

	for _, op := range plan.Ops {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if op.Type == OpConflict {
			slog.Warn("conflict", "path", op.Path)
			report.Conflicts = append(report.Conflicts, op)
			conflicted[op.Path] = struct{}{}
			continue
		}

		if e.dryRun {
			slog.Info("dry-run", "op", op.Type, "path", op.Path)
			report.countOp(&op)
			continue
		}

		if err := e.applyOp(ctx, &op); err != nil {
			if IsFatalTransfer(err) {
				return report, fmt.Errorf("aborting pass: %w", err)
			}
			slog.Error("operation failed", "op", op.Type, "path", op.Path, "error", err)
			report.Failures = append(report.Failures, OpFailure{Op: op, Err: err})
			failed[op.Path] = struct{}{}
			continue
		}

		report.countOp(&op)
		switch op.Type {
		case OpCopyToPath1:
			staged1[op.Path] = op.Record2
		case OpCopyToPath2:
			staged2[op.Path] = op.Record1
		case OpDeletePath1:
			staged1[op.Path] = nil
		case OpDeletePath2:
			staged2[op.Path] = nil
		}
	}

	report.Duration = time.Since(started)

	if e.dryRun {
		return report, nil
	}

	new1 := commitSnapshot(last1, current1, staged1, failed, conflicted)
	new2 := commitSnapshot(last2, current2, staged2, failed, conflicted)

	if err := e.store.Commit(e.path1, new1); err != nil {
		return report, Exit(ExitStateDB1, fmt.Errorf("commit state for %s: %w", e.path1, err))
	}
	if err := e.store.Commit(e.path2, new2); err != nil {
		return report, Exit(ExitStateDB2, fmt.Errorf("commit state for %s: %w", e.path2, err))
	}

	report.Committed = true
	return report, nil
}

func (e *Executor) applyOp(ctx context.Context, op *Operation) error {
	switch op.Type {
	case OpCopyToPath1:
		slog.Info("copy", "path", op.Path, "to", e.path1)
		return e.backend.Copy(ctx, e.path2, e.path1, op.Path)
	case OpCopyToPath2:
		slog.Info("copy", "path", op.Path, "to", e.path2)
		return e.backend.Copy(ctx, e.path1, e.path2, op.Path)
	case OpDeletePath1:
		slog.Info("delete", "path", op.Path, "from", e.path1)
		return e.backend.Delete(ctx, e.path1, op.Path)
	case OpDeletePath2:
		slog.Info("delete", "path", op.Path, "from", e.path2)
		return e.backend.Delete(ctx, e.path2, op.Path)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// commitSnapshot builds the state to persist for one side: the current
// listing, adjusted by staged results, with failed paths omitted (re-detected
// next pass) and conflicted paths pinned to their last committed record so
// the conflict is re-reported until resolved.
func commitSnapshot(last, current Snapshot, staged map[string]*FileRecord, failed, conflicted map[string]struct{}) Snapshot {
	out := make(Snapshot, len(current))
	for path, record := range current {
		out[path] = record
	}
	for path, record := range staged {
		if record == nil {
			delete(out, path)
		} else {
			out[path] = record
		}
	}
	for path := range failed {
		delete(out, path)
	}
	for path := range conflicted {
		if record, ok := last[path]; ok {
			out[path] = record
		} else {
			delete(out, path)
		}
	}
	return out
}
