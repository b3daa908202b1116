package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/driftlab/driftsync/internal/utils"
)

const ignoreFileName = ".driftsyncignore"

var defaultIgnoreLines = []string{
	// OS junk
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// editor/transfer leftovers
	"*.tmp",
	"*.partial",
	"*.swp",
	"~$*",
}

// IgnoreList filters paths out of snapshots before they enter the engine.
// Rules come from the built-in defaults, an optional gitignore-style file in
// the working directory, and --exclude glob patterns.
type IgnoreList struct {
	ignore   *gitignore.GitIgnore
	excludes []string
}

func NewIgnoreList(workDir string, excludes []string) *IgnoreList {
	lines := make([]string, 0, len(defaultIgnoreLines))
	lines = append(lines, defaultIgnoreLines...)

	ignorePath := filepath.Join(workDir, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
		}
	}

	return &IgnoreList{
		ignore:   gitignore.CompileIgnoreLines(lines...),
		excludes: excludes,
	}
}

// ShouldIgnore reports whether the slash-normalized relative path is excluded
// from synchronization.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore.MatchesPath(relPath) {
		return true
	}
	for _, pattern := range l.excludes {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// FilterSnapshot returns a copy of snapshot without ignored paths.
func (l *IgnoreList) FilterSnapshot(snapshot Snapshot) Snapshot {
	filtered := make(Snapshot, len(snapshot))
	for path, record := range snapshot {
		if l.ShouldIgnore(path) {
			continue
		}
		filtered[path] = record
	}
	return filtered
}
