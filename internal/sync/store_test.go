package sync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := OpenStateStore(filepath.Join(t.TempDir(), "state", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStoreFirstRunIsEmpty(t *testing.T) {
	store := tempStore(t)

	snapshot, err := store.Load("/some/root")
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	generation, err := store.Generation("/some/root")
	require.NoError(t, err)
	assert.Zero(t, generation)
}

func TestStateStoreCommitAndLoad(t *testing.T) {
	store := tempStore(t)
	root := "/some/root"

	committed := snap(
		rec("a.txt", 10, 1, "h1"),
		rec("dir/b.txt", 20, 2, ""),
	)
	require.NoError(t, store.Commit(root, committed))

	loaded, err := store.Load(root)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded["a.txt"].Same(committed["a.txt"]))
	assert.Equal(t, "h1", loaded["a.txt"].Hash)
	assert.True(t, loaded["dir/b.txt"].ModTime.Equal(committed["dir/b.txt"].ModTime))

	generation, err := store.Generation(root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation)
}

func TestStateStoreCommitReplaces(t *testing.T) {
	store := tempStore(t)
	root := "/some/root"

	require.NoError(t, store.Commit(root, snap(rec("old.txt", 1, 0, ""))))
	require.NoError(t, store.Commit(root, snap(rec("new.txt", 2, 1, ""))))

	loaded, err := store.Load(root)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Contains(t, loaded, "new.txt")

	generation, err := store.Generation(root)
	require.NoError(t, err)
	assert.Equal(t, int64(2), generation)
}

func TestStateStoreRootsAreIndependent(t *testing.T) {
	store := tempStore(t)

	require.NoError(t, store.Commit("/root/one", snap(rec("a.txt", 1, 0, ""))))
	require.NoError(t, store.Commit("/root/two", snap(rec("b.txt", 2, 0, ""))))

	one, err := store.Load("/root/one")
	require.NoError(t, err)
	two, err := store.Load("/root/two")
	require.NoError(t, err)

	assert.Contains(t, one, "a.txt")
	assert.NotContains(t, one, "b.txt")
	assert.Contains(t, two, "b.txt")
}

func TestStateStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	root := "/some/root"

	store, err := OpenStateStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Commit(root, snap(rec("a.txt", 10, 1, ""))))
	require.NoError(t, store.Close())

	reopened, err := OpenStateStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(root)
	require.NoError(t, err)
	assert.Contains(t, loaded, "a.txt")
}

func TestStateStoreCorruptTimestamp(t *testing.T) {
	store := tempStore(t)
	root := "/some/root"

	// corrupt a stored row behind the store's back
	require.NoError(t, store.Commit(root, snap(rec("a.txt", 10, 1, ""))))
	_, err := store.db.Exec("UPDATE file_state SET mod_time = 'garbage' WHERE path = 'a.txt'")
	require.NoError(t, err)

	_, err = store.Load(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreCorrupt)
}
