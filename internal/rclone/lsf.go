package rclone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/driftlab/driftsync/internal/sync"
	"github.com/driftlab/driftsync/internal/utils"
)

// lsf emits local time without a zone offset.
const lsfTimeLayout = "2006-01-02 15:04:05"

// parseLsf parses `rclone lsf -R --files-only --format pts[h]` output into a
// snapshot. Fields are semicolon-separated with the path first, so the line
// is split from the right, since filenames may themselves contain semicolons.
// Any malformed line fails the whole listing: a partially parsed snapshot
// would be misread as mass deletion downstream.
func parseLsf(output string, withHash bool) (sync.Snapshot, error) {
	fields := 3
	if withHash {
		fields = 4
	}

	snapshot := make(sync.Snapshot)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		parts := rsplit(line, ';', fields)
		if len(parts) != fields {
			return nil, fmt.Errorf("malformed lsf line %q", line)
		}

		path := utils.NormPath(parts[0])
		modTime, err := time.ParseInLocation(lsfTimeLayout, parts[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp in lsf line %q: %w", line, err)
		}
		size, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad size in lsf line %q", line)
		}

		record := &sync.FileRecord{
			Path:    path,
			Size:    size,
			ModTime: modTime,
		}
		if withHash {
			record.Hash = parts[3]
		}
		snapshot[path] = record
	}

	return snapshot, nil
}

// rsplit splits s on sep from the right into at most n parts.
func rsplit(s string, sep byte, n int) []string {
	parts := make([]string, 0, n)
	for len(parts) < n-1 {
		idx := strings.LastIndexByte(s, sep)
		if idx < 0 {
			break
		}
		parts = append(parts, s[idx+1:])
		s = s[:idx]
	}
	parts = append(parts, s)

	// reverse into natural order
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}
