package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePutGetOverwriteRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "kv.log"))
	require.NoError(t, err)

	require.NoError(t, s.Put([]byte("k"), []byte("v1")))
	v, ok := s.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Put([]byte("k"), []byte("v2")))
	v, ok = s.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	removed, err := s.Remove([]byte("k"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok = s.Get([]byte("k"))
	require.False(t, ok)
}

func TestStoreApproximateSizeBoundsPuts(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "kv.log"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put([]byte{byte(i)}, []byte("x")))
	}
	require.LessOrEqual(t, s.ApproximateSize(), uint64(10))
	require.Equal(t, uint64(10), s.ApproximateSize())
}

func TestStoreReplaysLogOnReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv.log")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("b"), []byte("2")))
	_, err = s.Remove([]byte("a"))
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)

	_, ok := reopened.Get([]byte("a"))
	require.False(t, ok)
	v, ok := reopened.Get([]byte("b"))
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestStoreFlushCompactsLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv.log")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("a"), []byte("2")))
	require.NoError(t, s.Flush(true))

	reopened, err := Open(path)
	require.NoError(t, err)
	v, ok := reopened.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestStoreRejectsOversizedKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "kv.log"))
	require.NoError(t, err)

	oversized := make([]byte, MaxKeySize+1)
	err = s.Put(oversized, []byte("v"))
	require.Error(t, err)
}
