package keyvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutGetRoundtrip(t *testing.T) {
	ns := newTestStore(t).Namespace("sheets")

	require.NoError(t, ns.Put("k1", []byte("v1")))

	got, err := ns.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestGetMissingKey(t *testing.T) {
	ns := newTestStore(t).Namespace("sheets")

	_, err := ns.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwrites(t *testing.T) {
	ns := newTestStore(t).Namespace("sheets")

	require.NoError(t, ns.Put("k", []byte("old")))
	require.NoError(t, ns.Put("k", []byte("new")))

	got, err := ns.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	sheets := store.Namespace("sheets")
	users := store.Namespace("user-data")

	require.NoError(t, sheets.Put("id", []byte("sheet")))
	require.NoError(t, users.Put("id", []byte("user")))

	got, err := sheets.Get("id")
	require.NoError(t, err)
	assert.Equal(t, []byte("sheet"), got)

	got, err = users.Get("id")
	require.NoError(t, err)
	assert.Equal(t, []byte("user"), got)
}

func TestGetMultipleOmitsMissing(t *testing.T) {
	ns := newTestStore(t).Namespace("sheets")

	require.NoError(t, ns.Put("a", []byte("1")))
	require.NoError(t, ns.Put("c", []byte("3")))

	values, err := ns.GetMultiple([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Equal(t, []byte("1"), values["a"])
	assert.Equal(t, []byte("3"), values["c"])
	assert.NotContains(t, values, "b")
}
