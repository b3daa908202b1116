package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, backend *fakeBackend) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{
		Backend: backend,
		WorkDir: t.TempDir(),
		Path1:   testRoot1,
		Path2:   testRoot2,
	})
}

func TestEngineFullPass(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	engine := newTestEngine(t, backend)

	backend.put(testRoot1, rec("docs/readme.md", 100, 1, ""))
	backend.put(testRoot2, rec("music/song.mp3", 5000, 2, ""))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Copied)
	assert.True(t, report.Clean())

	// both roots converged
	assert.Contains(t, backend.roots[testRoot1], "music/song.mp3")
	assert.Contains(t, backend.roots[testRoot2], "docs/readme.md")
}

func TestEngineIdempotence(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	engine := newTestEngine(t, backend)

	backend.put(testRoot1, rec("a.txt", 10, 1, ""))

	first, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Copied)

	// a second pass with no external changes transfers nothing
	second, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Copied)
	assert.Zero(t, second.Deleted)
	assert.Empty(t, second.Conflicts)
	assert.Empty(t, second.Failures)
}

func TestEngineDetectsLaterChanges(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	engine := newTestEngine(t, backend)

	backend.put(testRoot1, rec("a.txt", 10, 1, ""))
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	// delete on side 2 between passes
	backend.remove(testRoot2, "a.txt")

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.NotContains(t, backend.roots[testRoot1], "a.txt")
}

func TestEngineLockHeld(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	workDir := t.TempDir()
	engine := NewEngine(EngineConfig{
		Backend: backend,
		WorkDir: workDir,
		Path1:   testRoot1,
		Path2:   testRoot2,
	})

	// hold the pair's lock, in swapped path order
	lock, err := NewLockManager(workDir).Acquire(PairID(testRoot2, testRoot1))
	require.NoError(t, err)
	defer lock.Release()

	backend.put(testRoot1, rec("a.txt", 10, 1, ""))

	_, err = engine.Run(context.Background())
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitLockHeld, exitErr.Code)

	// zero mutation happened
	assert.Empty(t, backend.copies)
	assert.NotContains(t, backend.roots[testRoot2], "a.txt")
}

func TestEngineListingFailureAbortsPass(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	engine := newTestEngine(t, backend)

	backend.put(testRoot1, rec("a.txt", 10, 1, ""))
	backend.listErr[testRoot2] = errors.New("remote unreachable")

	_, err := engine.Run(context.Background())
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitPath2Invalid, exitErr.Code)
	assert.Empty(t, backend.copies)
}

func TestEngineCrashSafety(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	workDir := t.TempDir()
	engine := NewEngine(EngineConfig{
		Backend: backend,
		WorkDir: workDir,
		Path1:   testRoot1,
		Path2:   testRoot2,
	})

	backend.put(testRoot1, rec("a.txt", 10, 1, ""))
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	// modify, then make the next pass die mid-plan
	backend.put(testRoot1, rec("a.txt", 20, 5, ""))
	backend.copyErr["a.txt"] = &FatalTransferError{Err: errors.New("couldn't connect")}

	_, err = engine.Run(context.Background())
	require.Error(t, err)

	// the store still holds the pre-pass state: the interrupted pass
	// committed nothing, and a retry computes the same plan
	store, err := OpenStateStore(filepath.Join(workDir, "state", PairID(testRoot1, testRoot2)+".db"))
	require.NoError(t, err)
	defer store.Close()

	state1, err := store.Load(testRoot1)
	require.NoError(t, err)
	require.Contains(t, state1, "a.txt")
	assert.Equal(t, int64(10), state1["a.txt"].Size)

	generation, err := store.Generation(testRoot1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation)

	backend.copyErr = map[string]error{}
	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Copied)
}

func TestEngineConvergence(t *testing.T) {
	backend := newFakeBackend(testRoot1, testRoot2)
	engine := newTestEngine(t, backend)

	backend.put(testRoot1, rec("x.txt", 1, 1, ""), rec("y.txt", 2, 2, ""))
	backend.put(testRoot2, rec("z.txt", 3, 3, ""))

	report, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean())

	// re-listing and re-diffing against the committed state yields nothing
	workDir := engine.workDir
	store, err := OpenStateStore(filepath.Join(workDir, "state", PairID(testRoot1, testRoot2)+".db"))
	require.NoError(t, err)
	defer store.Close()

	for _, root := range []string{testRoot1, testRoot2} {
		last, err := store.Load(root)
		require.NoError(t, err)
		current, err := backend.List(context.Background(), root)
		require.NoError(t, err)
		assert.Empty(t, Diff(last, current), "root %s should have converged", root)
	}
}
