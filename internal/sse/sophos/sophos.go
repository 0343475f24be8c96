// Package sophos implements the Sophos forward-private SSE core: a
// trapdoor-permutation chain per keyword, walked backward (client, using
// the private key) on update and forward (server, using the public key)
// on search.
//
// The per-keyword token chain, the u/m derivation from the current chain
// element, and the reversed (latest-first) posting order on search follow
// the sse::sophos SophosClient/SophosServer construction directly.
package sophos

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	sophcrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/scheduler"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

const (
	uSize = 16 // store lookup-key width
	mSize = 8  // posting width (fixed-width 64-bit postings)
)

// UpdateMessage is the wire shape of a single Sophos update: (u, e).
type UpdateMessage struct {
	U [uSize]byte
	E [mSize]byte
}

// SearchRequest is the wire shape of a Sophos search: the top chain
// element, the per-keyword PRF key, and the number of postings to walk.
type SearchRequest struct {
	STop     [sophcrypto.TdpDomainBytes]byte
	Kw       [32]byte
	AddCount uint32
}

// Client holds Sophos client-side state: the counter map,
// the master derivation key, the TDP private key, and the PRG key used to
// sample each keyword's initial search token.
type Client struct {
	counters *counter.Map
	kd       []byte // master derivation key
	kpi      []byte // PRG key used to sample the initial TDP seed
	sk       *sophcrypto.TdpPrivateKey
	pk       *sophcrypto.TdpPublicKey
}

// NewClient builds a Sophos client from already-generated/loaded key
// material and a counter map (typically restored via internal/sse/keys).
func NewClient(counters *counter.Map, kd, kpi []byte, sk *sophcrypto.TdpPrivateKey) *Client {
	return &Client{counters: counters, kd: kd, kpi: kpi, sk: sk, pk: sk.Public()}
}

func seedToken(kpi []byte, pk *sophcrypto.TdpPublicKey, seed []byte) []byte {
	return pk.GenerateArray(kpi, seed)
}

func kwKey(kd, seed []byte) [32]byte {
	prf := sophcrypto.NewPRF(kd, 32)
	var out [32]byte
	copy(out[:], prf.Eval(seed))
	return out
}

func deriveUM(kw [32]byte, s []byte) (u [uSize]byte, m [mSize]byte) {
	prfU := sophcrypto.NewPRF(kw[:], uSize)
	prfM := sophcrypto.NewPRF(kw[:], mSize)
	copy(u[:], prfU.Eval(append(append([]byte{}, s...), 0x00)))
	copy(m[:], prfM.Eval(append(append([]byte{}, s...), 0x01)))
	return u, m
}

// Update derives and returns the update message for (w, ix), incrementing
// w's counter. Callers are responsible for submitting the message to the
// server's E.Put.
func (c *Client) Update(w []byte, ix uint64) (UpdateMessage, error) {
	seed := sophcrypto.MultiHash(w, 16)
	s0 := seedToken(c.kpi, c.pk, seed)

	old, err := c.counters.GetAndIncrement(w)
	if err != nil {
		return UpdateMessage{}, fmt.Errorf("sophos: update failed: %w", err)
	}

	var sStar []byte
	if old == 0 {
		sStar = s0
	} else {
		sStar = c.sk.PrivateInvertK(s0, int(old))
	}

	kw := kwKey(c.kd, seed)
	u, m := deriveUM(kw, sStar)

	var e [mSize]byte
	var ixBuf [mSize]byte
	binary.BigEndian.PutUint64(ixBuf[:], ix)
	for i := range e {
		e[i] = ixBuf[i] ^ m[i]
	}
	return UpdateMessage{U: u, E: e}, nil
}

// SearchRequestFor builds the search request for w, or (false) if w has
// never been updated.
func (c *Client) SearchRequestFor(w []byte) (SearchRequest, bool, error) {
	seed := sophcrypto.MultiHash(w, 16)
	addCount, ok := c.counters.Get(w)
	if !ok {
		return SearchRequest{}, false, nil
	}
	if addCount == 0 {
		return SearchRequest{}, false, nil
	}

	s0 := seedToken(c.kpi, c.pk, seed)
	sTop := c.sk.PrivateInvertK(s0, int(addCount-1))

	var req SearchRequest
	copy(req.STop[:], sTop)
	req.Kw = kwKey(c.kd, seed)
	req.AddCount = addCount
	return req, true, nil
}

// Server holds Sophos server-side state: the encrypted
// store and the TDP public key.
type Server struct {
	E  store.Backend
	pk *sophcrypto.TdpPublicKey
}

// NewServer builds a Sophos server over an already-open store and the
// client's published public key.
func NewServer(e store.Backend, pk *sophcrypto.TdpPublicKey) *Server {
	return &Server{E: e, pk: pk}
}

// Put stores one update message. Fatal on storage failure (spec: "update
// failures at E are fatal for the current update only").
func (s *Server) Put(msg UpdateMessage) error {
	if err := s.E.Put(msg.U[:], msg.E[:]); err != nil {
		return fmt.Errorf("sophos: server put failed: %w", err)
	}
	return nil
}

// Search walks the chain described by req sequentially, from the newest
// update to the oldest, invoking onPosting for each recovered posting. A
// missing u_i is a MissingToken warning, surfaced via onMissing (if
// non-nil) and never fatal.
func (s *Server) Search(req SearchRequest, onPosting func(ix uint64), onMissing func(err error)) {
	si := append([]byte(nil), req.STop[:]...)
	for i := uint32(0); i < req.AddCount; i++ {
		u, m := deriveUM(req.Kw, si)
		e, ok := s.E.Get(u[:])
		if !ok {
			if onMissing != nil {
				onMissing(fmt.Errorf("sophos: %w at step %d", sseerr.ErrMissingToken, i))
			}
		} else {
			var ixBuf [mSize]byte
			copy(ixBuf[:], e)
			for j := range ixBuf {
				ixBuf[j] ^= m[j]
			}
			onPosting(binary.BigEndian.Uint64(ixBuf[:]))
		}
		if i+1 < req.AddCount {
			si = s.pk.PublicEval(si)
		}
	}
}

// SearchParallel splits the chain walk across up to workers goroutines
// via scheduler.FusedPool: thread t starts at S_t = pi^t(S_top) and
// strides by pi^workers, mirroring search_parallel_light's thread-
// striding scheme (each worker does its own KV lookups, no separate
// access pool). Overall order is unspecified.
func (s *Server) SearchParallel(req SearchRequest, workers int, onMissing func(err error)) []uint64 {
	if req.AddCount == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if uint32(workers) > req.AddCount {
		workers = int(req.AddCount)
	}

	pool := scheduler.NewFusedPool(workers)
	return pool.Run(func(t, workerCount int) []uint64 {
		si := s.pk.PublicEvalK(req.STop[:], t)
		var local []uint64
		for i := uint32(t); i < req.AddCount; i += uint32(workerCount) {
			u, m := deriveUM(req.Kw, si)
			e, ok := s.E.Get(u[:])
			if !ok {
				if onMissing != nil {
					onMissing(fmt.Errorf("sophos: %w at step %d", sseerr.ErrMissingToken, i))
				}
			} else {
				var ixBuf [mSize]byte
				copy(ixBuf[:], e)
				for j := range ixBuf {
					ixBuf[j] ^= m[j]
				}
				local = append(local, binary.BigEndian.Uint64(ixBuf[:]))
			}
			si = s.pk.PublicEvalK(si, workerCount)
		}
		return local
	})
}

// SearchParallelPooled is search_parallel proper: derivation (TDP-bound)
// and access (KV-bound) run on two independently-sized pools, a derivation
// worker enqueuing (u, m) pairs for an access worker to look up and unmask,
// unlike SearchParallel's fused striding (search_parallel_light).
func (s *Server) SearchParallelPooled(req SearchRequest, derivationWorkers, accessWorkers int, onMissing func(err error)) []uint64 {
	if req.AddCount == 0 {
		return nil
	}
	if derivationWorkers > int(req.AddCount) {
		derivationWorkers = int(req.AddCount)
	}

	pool := scheduler.NewDualPool(derivationWorkers, accessWorkers)
	return pool.Run(int(req.AddCount), func(t, workerCount int, emit func(scheduler.AccessJob)) {
		si := s.pk.PublicEvalK(req.STop[:], t)
		for i := uint32(t); i < req.AddCount; i += uint32(workerCount) {
			u, m := deriveUM(req.Kw, si)
			var packed [uSize + mSize]byte
			copy(packed[:uSize], u[:])
			copy(packed[uSize:], m[:])
			emit(scheduler.AccessJob{Index: int(i), Token: packed[:]})
			si = s.pk.PublicEvalK(si, workerCount)
		}
	}, func(job scheduler.AccessJob) (uint64, bool) {
		u := job.Token[:uSize]
		m := job.Token[uSize:]
		e, ok := s.E.Get(u)
		if !ok {
			if onMissing != nil {
				onMissing(fmt.Errorf("sophos: %w at step %d", sseerr.ErrMissingToken, job.Index))
			}
			return 0, false
		}
		var ixBuf [mSize]byte
		copy(ixBuf[:], e)
		for j := range ixBuf {
			ixBuf[j] ^= m[j]
		}
		return binary.BigEndian.Uint64(ixBuf[:]), true
	})
}

// KeywordCount returns the number of distinct keywords ever updated, read
// from the client's counter map (debugging/benchmarking introspection,
// per the original's keyword_count()).
func (c *Client) KeywordCount() int {
	n := 0
	c.counters.ForEach(func(k []byte, v uint32) {
		if v > 0 {
			n++
		}
	})
	return n
}

// Stats mirrors the original's print_stats(): a small snapshot of client
// state useful for a health/debug endpoint.
func (c *Client) Stats() map[string]any {
	return map[string]any{
		"scheme":        "sophos",
		"keyword_count": c.KeywordCount(),
	}
}
