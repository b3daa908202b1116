package sync

import (
	"errors"
	"fmt"
)

// Process exit codes. These are an observable contract and must stay stable
// across versions.
const (
	ExitOK             = 0
	ExitPath1Invalid   = 1
	ExitPath2Invalid   = 2
	ExitPathsIdentical = 3
	ExitStateDB1       = 4
	ExitStateDB2       = 5
	ExitRcloneMissing  = 10
	ExitRcloneConfig   = 11
	ExitLockHeld       = 23
	ExitWorkDir        = 24
)

var (
	// ErrAlreadyLocked means another active process holds the lock for this
	// path pair.
	ErrAlreadyLocked = errors.New("another process is already synchronizing this path pair")

	// ErrStoreCorrupt means a state database exists but cannot be read. This
	// is fatal, unlike an absent database which just means a first run.
	ErrStoreCorrupt = errors.New("state database is present but unreadable")
)

// ExitError carries the process exit code for a fatal condition.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%v (exit code %d)", e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exit wraps err with a process exit code.
func Exit(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// FatalTransferError marks a transfer failure as connectivity-fatal
// (authentication failure, unreachable remote). The whole pass aborts without
// committing any state when one occurs.
type FatalTransferError struct {
	Err error
}

func (e *FatalTransferError) Error() string {
	return fmt.Sprintf("fatal transfer error: %v", e.Err)
}

func (e *FatalTransferError) Unwrap() error {
	return e.Err
}

// IsFatalTransfer reports whether err is classified connectivity-fatal.
func IsFatalTransfer(err error) bool {
	var fatal *FatalTransferError
	return errors.As(err, &fatal)
}
