package sync

import (
	"sort"
	"time"
)

// FileRecord is the per-file metadata used to detect change between passes.
// Hash is optional; when either side lacks one, size and modification time
// substitute for it.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Hash    string
}

// Same reports whether two records describe the same file content.
// Hashes win when both records carry one.
func (r *FileRecord) Same(other *FileRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Hash != "" && other.Hash != "" {
		return r.Hash == other.Hash
	}
	return r.Size == other.Size && r.ModTime.Equal(other.ModTime)
}

// Snapshot is the full state of one root at one instant, keyed by
// slash-normalized relative path. Treated as immutable once captured.
type Snapshot map[string]*FileRecord

// Paths returns the snapshot's relative paths in lexicographic order.
func (s Snapshot) Paths() []string {
	paths := make([]string, 0, len(s))
	for path := range s {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
