// Package janus implements the Janus core: two independent Diana cores —
// one tracking insertions (E_add), one tracking deletions (E_del) —
// composed with the punctenc puncturable-encryption layer to give the
// resulting scheme both forward AND backward privacy.
//
// Tag/punct-enc subkey derivation from a single master key and the
// two-inner-Diana-core composition follow the sse::janus
// JanusClient/JanusServer structure; the punctenc.PuncturedKey
// construction is this repo's own (documented) simplification of a
// full GGM-based punctured PRF.
package janus

import (
	"encoding/binary"
	"fmt"
	"sync"

	janusCrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/diana"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/punctenc"
)

// MasterKeySize is the width of Janus's single root key K_J.
const MasterKeySize = 32

func tagKey(kj []byte) []byte {
	return janusCrypto.NewPRF(kj, 32).Eval([]byte("tag_derivation"))
}

func punctEncRootKey(kj []byte) []byte {
	return janusCrypto.NewPRF(kj, 32).Eval([]byte("punct_enc"))
}

func tagFor(ktag, w []byte, ix uint64) punctenc.Tag {
	prf := janusCrypto.NewPRF(ktag, punctenc.TagSize)
	var ixBuf [8]byte
	binary.BigEndian.PutUint64(ixBuf[:], ix)
	var out punctenc.Tag
	copy(out[:], prf.Eval(append(append([]byte{}, ixBuf[:]...), w...)))
	return out
}

func punctEncMaster(kpe, w []byte) punctenc.MasterKey {
	prf := janusCrypto.NewPRF(kpe, punctenc.MasterKeySize)
	var out punctenc.MasterKey
	copy(out[:], prf.Eval(w))
	return out
}

// Client holds Janus client-side state: the root key K_J
// and the two inner Diana clients tracking insertions and deletions.
type Client struct {
	kj      []byte
	ktag    []byte
	kpe     []byte
	addCore *diana.Client
	delCore *diana.Client
}

// NewClient builds a Janus client from an already-derived root key and
// the two inner Diana clients (typically restored via internal/sse/keys,
// one counter map each for E_add and E_del).
func NewClient(kj []byte, addCore, delCore *diana.Client) *Client {
	return &Client{
		kj:      kj,
		ktag:    tagKey(kj),
		kpe:     punctEncRootKey(kj),
		addCore: addCore,
		delCore: delCore,
	}
}

// InsertionMessage is the wire shape of a Janus insertion: a Diana raw
// update destined for the insertion-side store E_add.
type InsertionMessage struct {
	Raw diana.RawMessage
}

// DeletionMessage is the wire shape of a Janus deletion: a Diana raw
// update destined for the deletion-side store E_del.
type DeletionMessage struct {
	Raw diana.RawMessage
}

// Insert derives the insertion message for (w, ix): a puncturable-
// encryption ciphertext submitted to the insertion Diana core as its
// update payload.
func (c *Client) Insert(w []byte, ix uint64) (InsertionMessage, error) {
	tag := tagFor(c.ktag, w, ix)
	master := punctEncMaster(c.kpe, w)
	ct := punctenc.Encrypt(master, tag, ix)

	raw, err := c.addCore.UpdateRaw(w, ct)
	if err != nil {
		return InsertionMessage{}, fmt.Errorf("janus: insertion failed: %w", err)
	}
	return InsertionMessage{Raw: raw}, nil
}

// Delete derives the deletion message for (w, ix): an incremental key
// share submitted to the deletion Diana core as its update payload.
func (c *Client) Delete(w []byte, ix uint64) (DeletionMessage, error) {
	tag := tagFor(c.ktag, w, ix)
	share := punctenc.IncPuncture(tag)

	raw, err := c.delCore.UpdateRaw(w, share[:])
	if err != nil {
		return DeletionMessage{}, fmt.Errorf("janus: deletion failed: %w", err)
	}
	return DeletionMessage{Raw: raw}, nil
}

// SearchRequest is the wire shape of a Janus search: the two inner Diana
// search requests plus the anchor punctured-encryption key share.
type SearchRequest struct {
	Add        diana.SearchRequest
	Del        diana.SearchRequest
	DelFound   bool
	FirstShare punctenc.MasterKey
}

// SearchRequestFor builds the search request for w. The insertion side
// must have at least one entry for w to return anything; the deletion
// side may legitimately be empty (w was never deleted from).
func (c *Client) SearchRequestFor(w []byte) (SearchRequest, bool) {
	addReq, found := c.addCore.SearchRequestFor(w)
	if !found {
		return SearchRequest{}, false
	}
	delReq, delFound := c.delCore.SearchRequestFor(w)

	master := punctEncMaster(c.kpe, w)
	firstShare := punctenc.InitialKeyShare(master)

	return SearchRequest{
		Add:        addReq,
		Del:        delReq,
		DelFound:   delFound,
		FirstShare: firstShare,
	}, true
}

// Server holds Janus server-side state: the two inner Diana
// servers over E_add and E_del, plus an optional cache of constructed
// PuncturedKeys keyed by (keyword, deletion add_count).
type Server struct {
	addCore *diana.Server
	delCore *diana.Server

	mu    sync.Mutex
	cache map[cacheKey]*punctenc.PuncturedKey
}

type cacheKey struct {
	w        string
	addCount uint32
}

// NewServer builds a Janus server over the two already-open inner stores.
func NewServer(addCore, delCore *diana.Server) *Server {
	return &Server{
		addCore: addCore,
		delCore: delCore,
		cache:   make(map[cacheKey]*punctenc.PuncturedKey),
	}
}

// PutInsertion stores one insertion message into E_add.
func (s *Server) PutInsertion(msg InsertionMessage) error {
	return s.addCore.PutRaw(msg.Raw)
}

// PutDeletion stores one deletion message into E_del.
func (s *Server) PutDeletion(msg DeletionMessage) error {
	return s.delCore.PutRaw(msg.Raw)
}

// InvalidateCache drops any cached PuncturedKey for w, called whenever a
// new deletion for w is processed (the resolved Open Question: the
// punctured-key cache for (w, add_count) must not survive a deletion that
// changes w's deletion count).
func (s *Server) InvalidateCache(w []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if k.w == string(w) {
			delete(s.cache, k)
		}
	}
}

func (s *Server) puncturedKey(w []byte, req SearchRequest, onMissing func(error)) *punctenc.PuncturedKey {
	key := cacheKey{w: string(w), addCount: req.Del.AddCount}

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	var shares []punctenc.KeyShare
	if req.DelFound {
		s.delCore.SearchRaw(req.Del, punctenc.TagSize, func(payload []byte) {
			var share punctenc.KeyShare
			copy(share[:], payload)
			shares = append(shares, share)
		}, onMissing)
	}

	pk := punctenc.NewPuncturedKey(req.FirstShare, shares)

	s.mu.Lock()
	s.cache[key] = pk
	s.mu.Unlock()
	return pk
}

// Search runs the Janus search protocol: reconstructs the punctured key
// from the deletion side, then walks the insertion side, decrypting each
// ciphertext and dropping the ones whose tag has been punctured (expected
// for deleted postings, never reported as an error).
func (s *Server) Search(w []byte, req SearchRequest, onPosting func(ix uint64), onMissing func(err error)) {
	pk := s.puncturedKey(w, req, onMissing)

	s.addCore.SearchRaw(req.Add, punctenc.CiphertextSize, func(ct []byte) {
		ix, ok := pk.Decrypt(ct)
		if !ok {
			return
		}
		onPosting(ix)
	}, onMissing)
}
