package ownerindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharecell/cell/internal/keyvalue"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := keyvalue.NewStore(keyvalue.StoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store.Namespace("user-data"))
}

func TestUnknownOwnerHasEmptyList(t *testing.T) {
	ix := newTestIndex(t)

	ids, err := ix.List("nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAppendPreservesOrder(t *testing.T) {
	ix := newTestIndex(t)

	require.NoError(t, ix.Append("alice", "s1"))
	require.NoError(t, ix.Append("alice", "s2"))
	require.NoError(t, ix.Append("alice", "s3"))

	ids, err := ix.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
}

func TestOwnersAreIndependent(t *testing.T) {
	ix := newTestIndex(t)

	require.NoError(t, ix.Append("alice", "s1"))
	require.NoError(t, ix.Append("bob", "s2"))

	aliceIDs, err := ix.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, aliceIDs)

	bobIDs, err := ix.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, bobIDs)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	ix := newTestIndex(t)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ix.Append("alice", fmt.Sprintf("s%d", i)))
		}(i)
	}
	wg.Wait()

	ids, err := ix.List("alice")
	require.NoError(t, err)
	assert.Len(t, ids, n)

	seen := make(map[string]bool, n)
	for _, id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
