package sync

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// OpFailure records one non-fatal operation failure for the post-pass report.
type OpFailure struct {
	Op  Operation
	Err error
}

// Report is the outcome of one pass: what moved, what conflicted, what
// failed. Conflicts and failures are surfaced to the user but do not fail
// the process.
type Report struct {
	DryRun    bool
	Committed bool

	Copied      int
	Deleted     int
	BytesCopied int64
	Duration    time.Duration

	Conflicts []Operation
	Failures  []OpFailure
}

func (r *Report) countOp(op *Operation) {
	switch op.Type {
	case OpCopyToPath1:
		r.Copied++
		if op.Record2 != nil {
			r.BytesCopied += op.Record2.Size
		}
	case OpCopyToPath2:
		r.Copied++
		if op.Record1 != nil {
			r.BytesCopied += op.Record1.Size
		}
	case OpDeletePath1, OpDeletePath2:
		r.Deleted++
	}
}

// Clean reports whether the pass finished with no conflicts and no failures.
func (r *Report) Clean() bool {
	return len(r.Conflicts) == 0 && len(r.Failures) == 0
}

var (
	headerColor   = color.New(color.FgHiCyan, color.Bold).SprintFunc()
	conflictColor = color.New(color.FgHiYellow).SprintFunc()
	failureColor  = color.New(color.FgHiRed).SprintFunc()
)

// Print renders the report for the terminal.
func (r *Report) Print(w io.Writer) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "%s%s\n", headerColor("sync complete"), mode)
	fmt.Fprintf(w, "  copied:  %d (%s)\n", r.Copied, humanize.Bytes(uint64(r.BytesCopied)))
	fmt.Fprintf(w, "  deleted: %d\n", r.Deleted)
	fmt.Fprintf(w, "  took:    %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Conflicts) > 0 {
		fmt.Fprintf(w, "\n%s, left untouched on both sides:\n", conflictColor(fmt.Sprintf("%d conflict(s)", len(r.Conflicts))))
		for _, op := range r.Conflicts {
			fmt.Fprintf(w, "  %s  (%s vs %s)\n", op.Path, describeRecord(op.Record1), describeRecord(op.Record2))
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\n%s, will retry next pass:\n", failureColor(fmt.Sprintf("%d failure(s)", len(r.Failures))))
		for _, failure := range r.Failures {
			fmt.Fprintf(w, "  %s %s: %v\n", failure.Op.Type, failure.Op.Path, failure.Err)
		}
	}
}

func describeRecord(record *FileRecord) string {
	if record == nil {
		return "deleted"
	}
	return fmt.Sprintf("%s @ %s", humanize.Bytes(uint64(record.Size)), record.ModTime.Format(time.RFC3339))
}
