package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/driftlab/driftsync/internal/utils"
)

// PairID derives the canonical, order-independent identity of a path pair.
// The paths are sorted before hashing so swapped arguments map to the same
// lock and the same state database.
func PairID(path1, path2 string) string {
	if path1 > path2 {
		path1, path2 = path2, path1
	}
	sum := sha256.New()
	sum.Write([]byte(path1))
	sum.Write([]byte{0})
	sum.Write([]byte(path2))
	return hex.EncodeToString(sum.Sum(nil))
}

// lockOwner is the JSON body of a lock file. PID plus process start time
// identifies the owner across PID reuse; the nonce is the compare-and-swap
// token for reclaiming stale locks.
type lockOwner struct {
	PID       int    `json:"pid"`
	StartTime int64  `json:"start_time_ms"`
	Nonce     string `json:"nonce"`
}

// Lock is a held advisory lock for one canonical path pair.
type Lock struct {
	flock *flock.Flock
	owner lockOwner
}

// LockManager hands out at most one Lock per canonical path pair, backed by
// flock files under the working directory.
type LockManager struct {
	dir string
}

func NewLockManager(workDir string) *LockManager {
	return &LockManager{dir: filepath.Join(workDir, "locks")}
}

// Acquire takes the lock for pairID or fails with ErrAlreadyLocked. A lock
// file whose recorded owner process no longer exists is reported as stale and
// reclaimed; the reclaim is serialized by the OS flock, and the recorded
// nonce is re-checked under it so two processes can never both believe they
// reclaimed the same lock.
func (m *LockManager) Acquire(pairID string) (*Lock, error) {
	if err := utils.EnsureDir(m.dir); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", m.dir, err)
	}

	lockPath := filepath.Join(m.dir, pairID+".lock")
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, lockPath)
	}

	// The flock is ours, but the file may carry the record of an owner that
	// died without releasing (the flock itself evaporates with the process,
	// the file body does not).
	if prev, err := readLockOwner(lockPath); err == nil && prev != nil {
		if ownerAlive(prev) {
			// A recorded live owner without the flock should not happen;
			// refuse rather than steal.
			fl.Unlock()
			return nil, fmt.Errorf("%w: held by pid %d", ErrAlreadyLocked, prev.PID)
		}
		slog.Warn("reclaiming stale lock", "path", lockPath, "pid", prev.PID, "nonce", prev.Nonce)

		// Nonce re-check under the held flock: if the body changed since we
		// read it, someone else already reclaimed.
		cur, err := readLockOwner(lockPath)
		if err != nil || cur == nil || cur.Nonce != prev.Nonce {
			fl.Unlock()
			return nil, fmt.Errorf("%w: lock reclaimed concurrently", ErrAlreadyLocked)
		}
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		StartTime: selfStartTime(),
		Nonce:     uuid.NewString(),
	}
	if err := writeLockOwner(lockPath, owner); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}

	return &Lock{flock: fl, owner: owner}, nil
}

// Release unlocks and removes the lock file. The file is only removed when it
// still carries our nonce.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}

	path := l.flock.Path()
	cur, err := readLockOwner(path)
	ours := err == nil && cur != nil && cur.Nonce == l.owner.Nonce

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", path, err)
	}
	l.flock = nil

	if ours {
		return os.Remove(path)
	}
	return nil
}

func readLockOwner(path string) (*lockOwner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func writeLockOwner(path string, owner lockOwner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ownerAlive checks pid liveness and, when available, the recorded start time
// to guard against PID reuse.
func ownerAlive(owner *lockOwner) bool {
	if owner.PID <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(owner.PID))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcess(int32(owner.PID))
	if err != nil {
		return false
	}
	created, err := proc.CreateTime()
	if err != nil {
		// cannot verify start time, assume alive to stay conservative
		return true
	}
	return owner.StartTime == 0 || created == owner.StartTime
}

func selfStartTime() int64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	created, err := proc.CreateTime()
	if err != nil {
		return 0
	}
	return created
}
