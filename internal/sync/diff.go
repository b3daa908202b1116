package sync

import "sort"

type ChangeKind string

const (
	ChangeAdded     ChangeKind = "Added"
	ChangeModified  ChangeKind = "Modified"
	ChangeDeleted   ChangeKind = "Deleted"
	ChangeUnchanged ChangeKind = "Unchanged"
)

// ChangeRecord describes how one path changed on one side since the last
// committed snapshot.
type ChangeRecord struct {
	Path string
	Kind ChangeKind
	Old  *FileRecord
	New  *FileRecord
}

// Diff classifies every path in the union of both snapshots against the last
// committed state. Unchanged paths are omitted; output is ordered
// lexicographically by path so plans are reproducible.
func Diff(last, current Snapshot) []ChangeRecord {
	union := make(map[string]struct{}, len(last)+len(current))
	for path := range last {
		union[path] = struct{}{}
	}
	for path := range current {
		union[path] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for path := range union {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]ChangeRecord, 0, len(paths))
	for _, path := range paths {
		old, wasKnown := last[path]
		cur, exists := current[path]

		switch {
		case exists && !wasKnown:
			changes = append(changes, ChangeRecord{Path: path, Kind: ChangeAdded, New: cur})
		case !exists && wasKnown:
			changes = append(changes, ChangeRecord{Path: path, Kind: ChangeDeleted, Old: old})
		case !cur.Same(old):
			changes = append(changes, ChangeRecord{Path: path, Kind: ChangeModified, Old: old, New: cur})
		}
	}

	return changes
}
