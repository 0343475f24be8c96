// Package crypto implements the fixed-output PRF, block hash, trapdoor
// permutation, and PRG primitives shared by every scheme core (Sophos,
// Diana, Janus); puncturable encryption lives in the separate punctenc
// package. Primitives are infallible on
// valid-length inputs; invalid lengths are a programmer error and panic.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the canonical PRF/PRG master key length used across the
// engine (32 bytes), sized to match the token-tree and derivation keys.
const KeySize = 32

// PRF is a keyed, deterministic function from arbitrary bytes to a fixed
// n-byte output. It is built from HKDF-Expand over HMAC-SHA256, matching
// the construction the other examples in the retrieval pack use wherever
// they need keyed pseudorandom expansion of variable-length input.
type PRF struct {
	key []byte
	n   int
}

// NewPRF wraps key as a PRF producing n-byte outputs. key must be non-empty;
// n must be positive. Both are programmer-controlled, so violations panic.
func NewPRF(key []byte, n int) *PRF {
	if len(key) == 0 {
		panic("crypto: PRF key must not be empty")
	}
	if n <= 0 {
		panic("crypto: PRF output length must be positive")
	}
	return &PRF{key: append([]byte(nil), key...), n: n}
}

// Eval returns the n-byte pseudorandom output of the PRF on input data.
func (p *PRF) Eval(data []byte) []byte {
	r := hkdf.Expand(sha256.New, p.key, data)
	out := make([]byte, p.n)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(fmt.Sprintf("crypto: PRF expansion failed: %v", err))
	}
	return out
}

// Key returns a copy of the PRF's key, for persistence by internal/sse/keys.
func (p *PRF) Key() []byte {
	return append([]byte(nil), p.key...)
}

// OutputSize returns n, the PRF's fixed output length.
func (p *PRF) OutputSize() int {
	return p.n
}

// HMAC256 is a small direct helper for the common 32-byte PRF case, used by
// TDP seed derivation (GenerateArray) where a *PRF allocation per call
// would be wasteful.
func HMAC256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
