package diana

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

func newTestClientServer(t *testing.T) (*Client, *Server) {
	t.Helper()
	c, err := counter.Open(filepath.Join(t.TempDir(), "counters.dat"))
	require.NoError(t, err)

	kroot := make([]byte, 32)
	kkw := make([]byte, 32)
	for i := range kroot {
		kroot[i] = byte(i + 3)
		kkw[i] = byte(250 - i)
	}

	client := NewClient(c, kroot, kkw)

	e, err := store.Open(filepath.Join(t.TempDir(), "kv.log"))
	require.NoError(t, err)
	server := NewServer(e)

	return client, server
}

func TestDianaRoundTripRecoversAllPostings(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("tumbler")

	const n = 1000
	for ix := uint64(0); ix < n; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found := client.SearchRequestFor(w)
	require.True(t, found)
	require.Equal(t, uint32(n), req.AddCount)
	require.LessOrEqual(t, len(req.Covering), TreeDepth)

	seen := make(map[uint64]bool)
	server.Search(req, func(ix uint64) {
		seen[ix] = true
	}, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})

	require.Len(t, seen, n)
	for ix := uint64(0); ix < n; ix++ {
		require.True(t, seen[ix], "missing posting %d", ix)
	}
}

func TestDianaAddCountMatchesCounterValueExactly(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("coin")

	for ix := uint64(0); ix < 7; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found := client.SearchRequestFor(w)
	require.True(t, found)
	// Resolved open question: add_count = c (the raw counter value), not
	// c+1 — exactly 7 leaves after 7 updates.
	require.Equal(t, uint32(7), req.AddCount)

	count := 0
	server.Search(req, func(ix uint64) { count++ }, nil)
	require.Equal(t, 7, count)
}

func TestDianaSearchBeforeAnyUpdateIsAbsent(t *testing.T) {
	client, _ := newTestClientServer(t)
	_, found := client.SearchRequestFor([]byte("never-inserted"))
	require.False(t, found)
}

func TestDianaBulkUpdateProducesContiguousCounters(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("batched")

	pairs := make([]UpdatePair, 50)
	for i := range pairs {
		pairs[i] = UpdatePair{W: w, Ix: uint64(i)}
	}
	msgs, err := client.BulkUpdate(pairs)
	require.NoError(t, err)
	require.Len(t, msgs, 50)

	for _, msg := range msgs {
		require.NoError(t, server.Put(msg))
	}

	req, found := client.SearchRequestFor(w)
	require.True(t, found)
	require.Equal(t, uint32(50), req.AddCount)
}

func TestDianaSearchParallelMatchesSequential(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("parallel-kw")

	for ix := uint64(0); ix < 500; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found := client.SearchRequestFor(w)
	require.True(t, found)

	postings := server.SearchParallel(req, 8, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})
	require.Len(t, postings, 500)

	var sequential []uint64
	server.Search(req, func(ix uint64) {
		sequential = append(sequential, ix)
	}, nil)
	require.ElementsMatch(t, sequential, postings)
}
