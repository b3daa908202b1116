package sync

import (
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairID(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t, PairID("/a", "/b"), PairID("/b", "/a"))
	})

	t.Run("distinct pairs differ", func(t *testing.T) {
		assert.NotEqual(t, PairID("/a", "/b"), PairID("/a", "/c"))
	})

	t.Run("usable as a file name", func(t *testing.T) {
		id := PairID("/very/long/path", "remote:bucket/prefix")
		assert.Len(t, id, 64)
		assert.NotContains(t, id, string(os.PathSeparator))
	})
}

func TestLockAcquireRelease(t *testing.T) {
	manager := NewLockManager(t.TempDir())
	pairID := PairID("/a", "/b")

	lock, err := manager.Acquire(pairID)
	require.NoError(t, err)

	// second acquisition in the same process must fail
	_, err = manager.Acquire(pairID)
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	require.NoError(t, lock.Release())

	// released lock can be re-acquired
	lock2, err := manager.Acquire(pairID)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestLockSwappedPathsCollide(t *testing.T) {
	manager := NewLockManager(t.TempDir())

	lock, err := manager.Acquire(PairID("/a", "/b"))
	require.NoError(t, err)
	defer lock.Release()

	_, err = manager.Acquire(PairID("/b", "/a"))
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestLockConcurrentAcquire(t *testing.T) {
	manager := NewLockManager(t.TempDir())
	pairID := PairID("/a", "/b")

	const attempts = 8
	var wg stdsync.WaitGroup
	results := make([]*Lock, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if lock, err := manager.Acquire(pairID); err == nil {
				results[i] = lock
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, lock := range results {
		if lock != nil {
			winners++
			require.NoError(t, lock.Release())
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent acquisition must succeed")
}

func TestLockStaleReclaim(t *testing.T) {
	workDir := t.TempDir()
	manager := NewLockManager(workDir)
	pairID := PairID("/a", "/b")

	// leave behind a lock file from a process that no longer exists
	lockDir := filepath.Join(workDir, "locks")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	stale := lockOwner{PID: 1 << 22, StartTime: 123, Nonce: "dead-nonce"}
	require.NoError(t, writeLockOwner(filepath.Join(lockDir, pairID+".lock"), stale))

	lock, err := manager.Acquire(pairID)
	require.NoError(t, err, "stale lock should be reclaimable")
	require.NoError(t, lock.Release())
}

func TestLockLiveOwnerIsNotStolen(t *testing.T) {
	workDir := t.TempDir()
	manager := NewLockManager(workDir)
	pairID := PairID("/a", "/b")

	// a lock file recording a live process (ourselves), without the flock
	lockDir := filepath.Join(workDir, "locks")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	live := lockOwner{PID: os.Getpid(), StartTime: selfStartTime(), Nonce: "live-nonce"}
	require.NoError(t, writeLockOwner(filepath.Join(lockDir, pairID+".lock"), live))

	_, err := manager.Acquire(pairID)
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}
