package crypto

import (
	"github.com/decred/dcrd/crypto/blake256"
)

// BlockSize is the width of one BlockHash output, and the unit MultiHash
// pads up to — 16 bytes, the width of a single compression-function-style
// hash output.
const BlockSize = 16

// BlockHash compresses data to a 16-byte digest using BLAKE-256, taking the
// low half of the 32-byte digest. BLAKE-256 is already in the pack's
// dependency surface (decred/dcrd/crypto/blake256, pulled in by the
// teacher), so it grounds this primitive instead of reaching for a
// standard-library hash the pack never uses for this purpose.
func BlockHash(data []byte) [BlockSize]byte {
	full := blake256.Sum256(data)
	var out [BlockSize]byte
	copy(out[:], full[:BlockSize])
	return out
}

// MultiHash produces an nBytes-long digest of data where nBytes must be a
// positive multiple of BlockSize. Unlike repeated truncation of a single
// hash, each 16-byte block comes from a distinct BLAKE-256 evaluation
// (data followed by a one-byte block counter), so no bits are reused
// across blocks and there is no truncation bias.
func MultiHash(data []byte, nBytes int) []byte {
	if nBytes <= 0 || nBytes%BlockSize != 0 {
		panic("crypto: MultiHash output length must be a positive multiple of BlockSize")
	}
	out := make([]byte, 0, nBytes)
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	for counter := byte(0); len(out) < nBytes; counter++ {
		buf[len(data)] = counter
		full := blake256.Sum256(buf)
		out = append(out, full[:BlockSize]...)
	}
	return out[:nBytes]
}
