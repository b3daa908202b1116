package sync

import "sort"

// Reconcile merges the two one-sided deltas into a single transfer plan.
// current1/current2 supply the untouched side's record for one-sided changes;
// the deltas alone drive the decisions.
//
// The rules, in priority order per path:
//  1. changed only on side 1 -> propagate to side 2 (copy, or delete when the
//     side-1 change is a deletion)
//  2. changed only on side 2 -> mirror of rule 1
//  3. changed identically on both sides -> convergent, no operation
//  4. divergent change on both sides (including delete vs modify) -> Conflict
//
// Conflicts are surfaced, never resolved: silently picking a winner between
// two real edits is the one failure mode a sync engine must not have.
func Reconcile(delta1, delta2 []ChangeRecord, current1, current2 Snapshot) *TransferPlan {
	byPath1 := indexChanges(delta1)
	byPath2 := indexChanges(delta2)

	union := make(map[string]struct{}, len(byPath1)+len(byPath2))
	for path := range byPath1 {
		union[path] = struct{}{}
	}
	for path := range byPath2 {
		union[path] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for path := range union {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var deletes, copies, conflicts []Operation
	for _, path := range paths {
		c1, changed1 := byPath1[path]
		c2, changed2 := byPath2[path]
		rec1 := current1[path]
		rec2 := current2[path]

		switch {
		case changed1 && !changed2:
			if c1.Kind == ChangeDeleted {
				if rec2 != nil {
					deletes = append(deletes, Operation{Type: OpDeletePath2, Path: path, Source: Side1, Record2: rec2})
				}
			} else {
				copies = append(copies, Operation{Type: OpCopyToPath2, Path: path, Source: Side1, Record1: rec1, Record2: rec2})
			}

		case changed2 && !changed1:
			if c2.Kind == ChangeDeleted {
				if rec1 != nil {
					deletes = append(deletes, Operation{Type: OpDeletePath1, Path: path, Source: Side2, Record1: rec1})
				}
			} else {
				copies = append(copies, Operation{Type: OpCopyToPath1, Path: path, Source: Side2, Record1: rec1, Record2: rec2})
			}

		default:
			if c1.Kind == ChangeDeleted && c2.Kind == ChangeDeleted {
				// deleted on both sides, nothing left to transfer
				continue
			}
			if c1.New.Same(c2.New) {
				// convergent edit, both sides already agree
				continue
			}
			conflicts = append(conflicts, Operation{Type: OpConflict, Path: path, Record1: rec1, Record2: rec2})
		}
	}

	plan := &TransferPlan{Ops: make([]Operation, 0, len(deletes)+len(copies)+len(conflicts))}
	plan.Ops = append(plan.Ops, deletes...)
	plan.Ops = append(plan.Ops, copies...)
	plan.Ops = append(plan.Ops, conflicts...)
	return plan
}

func indexChanges(delta []ChangeRecord) map[string]ChangeRecord {
	byPath := make(map[string]ChangeRecord, len(delta))
	for _, change := range delta {
		byPath[change.Path] = change
	}
	return byPath
}
