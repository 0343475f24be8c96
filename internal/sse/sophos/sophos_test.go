package sophos

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	sophcrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

func newTestClientServer(t *testing.T) (*Client, *Server) {
	t.Helper()
	sk, err := sophcrypto.GenerateTDP()
	require.NoError(t, err)

	c, err := counter.Open(filepath.Join(t.TempDir(), "counters.dat"))
	require.NoError(t, err)

	kd := make([]byte, 32)
	kpi := make([]byte, 32)
	for i := range kd {
		kd[i] = byte(i + 1)
		kpi[i] = byte(200 - i)
	}

	client := NewClient(c, kd, kpi, sk)

	e, err := store.Open(filepath.Join(t.TempDir(), "kv.log"))
	require.NoError(t, err)
	server := NewServer(e, sk.Public())

	return client, server
}

func TestSophosSingleKeywordRoundTrip(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("bitcoin")

	for ix := uint64(0); ix < 5; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found, err := client.SearchRequestFor(w)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(5), req.AddCount)

	var postings []uint64
	server.Search(req, func(ix uint64) {
		postings = append(postings, ix)
	}, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})

	require.Len(t, postings, 5)
	// Latest-first ordering.
	require.Equal(t, []uint64{4, 3, 2, 1, 0}, postings)
}

func TestSophosSearchBeforeAnyUpdateIsEmpty(t *testing.T) {
	client, _ := newTestClientServer(t)
	_, found, err := client.SearchRequestFor([]byte("never-inserted"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSophosSearchParallelRecoversAllPostings(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("mixer")

	for ix := uint64(0); ix < 37; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found, err := client.SearchRequestFor(w)
	require.NoError(t, err)
	require.True(t, found)

	postings := server.SearchParallel(req, 4, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})
	require.Len(t, postings, 37)

	seen := make(map[uint64]bool)
	for _, p := range postings {
		seen[p] = true
	}
	for ix := uint64(0); ix < 37; ix++ {
		require.True(t, seen[ix], "missing posting %d", ix)
	}
}

func TestSophosSearchParallelPooledRecoversAllPostings(t *testing.T) {
	client, server := newTestClientServer(t)
	w := []byte("tumbler")

	for ix := uint64(0); ix < 23; ix++ {
		msg, err := client.Update(w, ix)
		require.NoError(t, err)
		require.NoError(t, server.Put(msg))
	}

	req, found, err := client.SearchRequestFor(w)
	require.NoError(t, err)
	require.True(t, found)

	postings := server.SearchParallelPooled(req, 3, 2, func(err error) {
		t.Fatalf("unexpected missing token: %v", err)
	})
	require.Len(t, postings, 23)

	seen := make(map[uint64]bool)
	for _, p := range postings {
		seen[p] = true
	}
	for ix := uint64(0); ix < 23; ix++ {
		require.True(t, seen[ix], "missing posting %d", ix)
	}
}

func TestSophosDistinctKeywordsDoNotInterfere(t *testing.T) {
	client, server := newTestClientServer(t)

	msgA, err := client.Update([]byte("alpha"), 111)
	require.NoError(t, err)
	require.NoError(t, server.Put(msgA))

	msgB, err := client.Update([]byte("beta"), 222)
	require.NoError(t, err)
	require.NoError(t, server.Put(msgB))

	reqA, found, err := client.SearchRequestFor([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, found)

	var postingsA []uint64
	server.Search(reqA, func(ix uint64) { postingsA = append(postingsA, ix) }, nil)
	require.Equal(t, []uint64{111}, postingsA)
}
