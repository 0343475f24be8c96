// Package diana implements the Diana token-tree covering-set SSE core:
// each keyword gets a depth-48 token-tree root, update i derives leaf i,
// and search sends a compact covering list of O(log n) subtree roots
// instead of n leaves.
//
// Leaf derivation, u/m domain separation, and covering-set expansion on
// search follow the sse::diana client/server construction: one token
// tree per keyword, walked and covered the same way on both sides.
package diana

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	dianacrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/scheduler"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/tokentree"
)

// TreeDepth is the token tree's depth (48 in the reference), giving a leaf
// space of 2^48 updates per keyword.
const TreeDepth = 48

const (
	uSize = 16
	mSize = 8
)

var (
	uDomainTag = byte(0x00)
	mDomainTag = byte(0x01)
)

// RawMessage is the wire shape of a single Diana update over an arbitrary
// fixed payload width: (u, e). deriveUMRaw/UpdateRaw/SearchRaw below
// generalize the client/server over the payload type — one instantiation
// per posting-width scheme, and one per puncturable-encryption ciphertext
// width for Janus — with UpdateMessage/Update/Search as the uint64-posting
// instantiation used directly by Diana itself.
type RawMessage struct {
	U [uSize]byte
	E []byte
}

// UpdateMessage is the wire shape of a single Diana update: (u, e).
type UpdateMessage struct {
	U [uSize]byte
	E [mSize]byte
}

// SearchRequest is the wire shape of a Diana search: the covering list of
// subtree roots, the per-keyword opaque token, and the total leaf count.
type SearchRequest struct {
	Covering []tokentree.Node
	KwToken  [32]byte
	AddCount uint32
}

// Client holds Diana client-side state: the counter map,
// the master key for per-keyword tree roots, and the key for deriving the
// opaque per-keyword token revealed to the server at search time.
type Client struct {
	counters *counter.Map
	kroot    []byte
	kkw      []byte
}

// NewClient builds a Diana client from already-generated/loaded key
// material and a counter map.
func NewClient(counters *counter.Map, kroot, kkw []byte) *Client {
	return &Client{counters: counters, kroot: kroot, kkw: kkw}
}

func treeRoot(kroot, hw []byte) [32]byte {
	prf := dianacrypto.NewPRF(kroot, 32)
	var out [32]byte
	copy(out[:], prf.Eval(hw))
	return out
}

func kwToken(kkw, hw []byte) [32]byte {
	prf := dianacrypto.NewPRF(kkw, 32)
	var out [32]byte
	copy(out[:], prf.Eval(hw))
	return out
}

func deriveUM(leaf [32]byte) (u [uSize]byte, m [mSize]byte) {
	uRaw, mRaw := deriveUMRaw(leaf, mSize)
	u = uRaw
	copy(m[:], mRaw)
	return u, m
}

// deriveUMRaw is the payload-width-generic form of deriveUM: u is always
// 16 bytes (the store's lookup-key width), m is payloadSize bytes wide.
func deriveUMRaw(leaf [32]byte, payloadSize int) (u [uSize]byte, m []byte) {
	uFull := dianacrypto.BlockHash(append(leaf[:], uDomainTag))
	copy(u[:], uFull[:uSize])

	width := payloadSize
	if width%16 != 0 {
		width += 16 - width%16
	}
	mFull := dianacrypto.MultiHash(append(leaf[:], mDomainTag), width)
	return u, mFull[:payloadSize]
}

// Update derives and returns the update message for (w, ix), incrementing
// w's counter.
func (c *Client) Update(w []byte, ix uint64) (UpdateMessage, error) {
	hw := dianacrypto.MultiHash(w, 16)
	old, err := c.counters.GetAndIncrement(w)
	if err != nil {
		return UpdateMessage{}, fmt.Errorf("diana: update failed: %w", err)
	}
	root := treeRoot(c.kroot, hw)
	leaf := tokentree.DeriveNode(root, uint64(old), TreeDepth)

	u, m := deriveUM(leaf)
	var e [mSize]byte
	var ixBuf [mSize]byte
	binary.BigEndian.PutUint64(ixBuf[:], ix)
	for i := range e {
		e[i] = ixBuf[i] ^ m[i]
	}
	return UpdateMessage{U: u, E: e}, nil
}

// UpdateRaw is the payload-width-generic form of Update, used by Janus to
// submit puncturable-encryption ciphertexts/key-shares instead of u64
// postings.
func (c *Client) UpdateRaw(w []byte, payload []byte) (RawMessage, error) {
	hw := dianacrypto.MultiHash(w, 16)
	old, err := c.counters.GetAndIncrement(w)
	if err != nil {
		return RawMessage{}, fmt.Errorf("diana: update failed: %w", err)
	}
	root := treeRoot(c.kroot, hw)
	leaf := tokentree.DeriveNode(root, uint64(old), TreeDepth)

	u, m := deriveUMRaw(leaf, len(payload))
	e := make([]byte, len(payload))
	for i := range e {
		e[i] = payload[i] ^ m[i]
	}
	return RawMessage{U: u, E: e}, nil
}

// UpdatePair is one (keyword, posting) entry of a BulkUpdate batch.
type UpdatePair struct {
	W  []byte
	Ix uint64
}

// BulkUpdate derives update messages for a batch of (w, ix) pairs,
// incrementing each keyword's counter once per pair under the counter
// map's per-key locking. Token derivation has no shared state to race
// on, so no additional synchronization is required beyond the per-key
// increments already serialized by GetAndIncrement.
func (c *Client) BulkUpdate(pairs []UpdatePair) ([]UpdateMessage, error) {
	out := make([]UpdateMessage, len(pairs))
	for i, p := range pairs {
		msg, err := c.Update(p.W, p.Ix)
		if err != nil {
			return nil, err
		}
		out[i] = msg
	}
	return out, nil
}

// SearchRequestFor builds the search request for w, or (false) if w has
// never been updated.
func (c *Client) SearchRequestFor(w []byte) (SearchRequest, bool) {
	addCount, ok := c.counters.Get(w)
	if !ok || addCount == 0 {
		return SearchRequest{}, false
	}

	hw := dianacrypto.MultiHash(w, 16)
	root := treeRoot(c.kroot, hw)
	covering := tokentree.CoveringList(root, uint64(addCount), TreeDepth)

	return SearchRequest{
		Covering: covering,
		KwToken:  kwToken(c.kkw, hw),
		AddCount: addCount,
	}, true
}

// KeywordCount returns the number of distinct keywords ever updated.
func (c *Client) KeywordCount() int {
	n := 0
	c.counters.ForEach(func(k []byte, v uint32) {
		if v > 0 {
			n++
		}
	})
	return n
}

// Stats mirrors the original's print_stats().
func (c *Client) Stats() map[string]any {
	return map[string]any{
		"scheme":        "diana",
		"keyword_count": c.KeywordCount(),
	}
}

// Server holds Diana server-side state: just the encrypted
// store, since all derivation is driven by the covering set the client
// sends.
type Server struct {
	E store.Backend
}

// NewServer builds a Diana server over an already-open store.
func NewServer(e store.Backend) *Server {
	return &Server{E: e}
}

// Put stores one update message.
func (s *Server) Put(msg UpdateMessage) error {
	if err := s.E.Put(msg.U[:], msg.E[:]); err != nil {
		return fmt.Errorf("diana: server put failed: %w", err)
	}
	return nil
}

// PutRaw stores one payload-width-generic update message.
func (s *Server) PutRaw(msg RawMessage) error {
	if err := s.E.Put(msg.U[:], msg.E); err != nil {
		return fmt.Errorf("diana: server put failed: %w", err)
	}
	return nil
}

// SearchRaw is the payload-width-generic form of Search: it expands req's
// covering set and invokes onPayload with each recovered, unmasked
// payload rather than decoding it as a uint64 posting.
func (s *Server) SearchRaw(req SearchRequest, payloadSize int, onPayload func(payload []byte), onMissing func(err error)) {
	for _, node := range req.Covering {
		tokentree.DeriveAllLeaves(node.Key, node.Depth, func(leaf [32]byte) {
			u, m := deriveUMRaw(leaf, payloadSize)
			e, ok := s.E.Get(u[:])
			if !ok {
				if onMissing != nil {
					onMissing(fmt.Errorf("diana: %w", sseerr.ErrMissingToken))
				}
				return
			}
			payload := make([]byte, payloadSize)
			for j := range payload {
				payload[j] = e[j] ^ m[j]
			}
			onPayload(payload)
		})
	}
}

// Search expands req's covering set into its full leaf set and, for each
// leaf, looks up and unmasks a posting, invoking onPosting. A missing u is
// a MissingToken warning, surfaced via onMissing and never fatal.
func (s *Server) Search(req SearchRequest, onPosting func(ix uint64), onMissing func(err error)) {
	for _, node := range req.Covering {
		tokentree.DeriveAllLeaves(node.Key, node.Depth, func(leaf [32]byte) {
			u, m := deriveUM(leaf)
			e, ok := s.E.Get(u[:])
			if !ok {
				if onMissing != nil {
					onMissing(fmt.Errorf("diana: %w", sseerr.ErrMissingToken))
				}
				return
			}
			var ixBuf [mSize]byte
			copy(ixBuf[:], e)
			for j := range ixBuf {
				ixBuf[j] ^= m[j]
			}
			onPosting(binary.BigEndian.Uint64(ixBuf[:]))
		})
	}
}

// SearchParallel splits req's total leaf set across up to workers
// goroutines by partitioning the covering list's subtree roots (each
// subtree's leaves stay on one worker, so no single leaf walk is split).
// Derivation cost is negligible compared to Sophos's TDP chain, so unlike
// Sophos there is no separate derivation/access pool split (spec: "the
// classes are fused since derivation cost is negligible").
func (s *Server) SearchParallel(req SearchRequest, workers int, onMissing func(err error)) []uint64 {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(req.Covering) {
		workers = len(req.Covering)
	}
	if workers == 0 {
		return nil
	}

	pool := scheduler.NewFusedPool(workers)
	return pool.Run(func(t, workerCount int) []uint64 {
		var local []uint64
		for i := t; i < len(req.Covering); i += workerCount {
			node := req.Covering[i]
			tokentree.DeriveAllLeaves(node.Key, node.Depth, func(leaf [32]byte) {
				u, m := deriveUM(leaf)
				e, ok := s.E.Get(u[:])
				if !ok {
					if onMissing != nil {
						onMissing(fmt.Errorf("diana: %w", sseerr.ErrMissingToken))
					}
					return
				}
				var ixBuf [mSize]byte
				copy(ixBuf[:], e)
				for j := range ixBuf {
					ixBuf[j] ^= m[j]
				}
				local = append(local, binary.BigEndian.Uint64(ixBuf[:]))
			})
		}
		return local
	})
}
