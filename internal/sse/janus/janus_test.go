package janus

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/diana"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

func newTestClientServer(t *testing.T) (*Client, *Server) {
	t.Helper()

	addCounters, err := counter.Open(filepath.Join(t.TempDir(), "add_counters.dat"))
	require.NoError(t, err)
	delCounters, err := counter.Open(filepath.Join(t.TempDir(), "del_counters.dat"))
	require.NoError(t, err)

	mk := func(seed byte) []byte {
		k := make([]byte, 32)
		for i := range k {
			k[i] = seed + byte(i)
		}
		return k
	}

	addClient := diana.NewClient(addCounters, mk(1), mk(2))
	delClient := diana.NewClient(delCounters, mk(3), mk(4))

	kj := mk(7)
	client := NewClient(kj, addClient, delClient)

	addStore, err := store.Open(filepath.Join(t.TempDir(), "add_kv.log"))
	require.NoError(t, err)
	delStore, err := store.Open(filepath.Join(t.TempDir(), "del_kv.log"))
	require.NoError(t, err)

	addServer := diana.NewServer(addStore)
	delServer := diana.NewServer(delStore)
	server := NewServer(addServer, delServer)

	return client, server
}

func TestJanusInsertThenSearchRecoversPosting(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("launderer")

	msg, err := client.Insert(w, 555)
	require.NoError(t, err)
	require.NoError(t, server.PutInsertion(msg))

	req, found := client.SearchRequestFor(w)
	require.True(t, found)

	var postings []uint64
	server.Search(w, req, func(ix uint64) {
		postings = append(postings, ix)
	}, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})

	require.Equal(t, []uint64{555}, postings)
}

func TestJanusDeletedPostingIsOmittedFromSearch(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("exchange")

	msg1, err := client.Insert(w, 1)
	require.NoError(t, err)
	require.NoError(t, server.PutInsertion(msg1))

	msg2, err := client.Insert(w, 2)
	require.NoError(t, err)
	require.NoError(t, server.PutInsertion(msg2))

	delMsg, err := client.Delete(w, 1)
	require.NoError(t, err)
	require.NoError(t, server.PutDeletion(delMsg))
	server.InvalidateCache(w)

	req, found := client.SearchRequestFor(w)
	require.True(t, found)

	var postings []uint64
	server.Search(w, req, func(ix uint64) {
		postings = append(postings, ix)
	}, nil)

	require.Equal(t, []uint64{2}, postings)
}

func TestJanusSearchOnNeverInsertedKeywordIsEmpty(t *testing.T) {
	client, _ := newTestClientServer(t)
	_, found := client.SearchRequestFor([]byte("nothing-here"))
	require.False(t, found)
}

func TestJanusMultipleInsertionsAndDeletionsConverge(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("mix-wallet")

	for ix := uint64(0); ix < 10; ix++ {
		msg, err := client.Insert(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.PutInsertion(msg))
	}
	// Delete even-numbered postings.
	for ix := uint64(0); ix < 10; ix += 2 {
		msg, err := client.Delete(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.PutDeletion(msg))
	}
	server.InvalidateCache(w)

	req, found := client.SearchRequestFor(w)
	require.True(t, found)

	seen := make(map[uint64]bool)
	server.Search(w, req, func(ix uint64) {
		seen[ix] = true
	}, nil)

	for ix := uint64(0); ix < 10; ix++ {
		if ix%2 == 0 {
			require.False(t, seen[ix], "posting %d should have been deleted", ix)
		} else {
			require.True(t, seen[ix], "posting %d should still be present", ix)
		}
	}
}
