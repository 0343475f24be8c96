package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// PRGKeySize is the width of a PRG master key (also the token-tree node
// width) — 32 bytes, AES-256.
const PRGKeySize = 32

// DeriveStream expands a 32-byte key into an arbitrary pseudorandom byte
// stream using AES-256 in counter mode, writing len(dst) bytes of the
// stream starting at byte offset off into dst. The construction is
// deterministic in (key, off): the same (key, off, len(dst)) always
// produces the same bytes, which is exactly what the token tree and the
// Sophos search-token seed derivation require.
func DeriveStream(key []byte, off uint64, dst []byte) {
	if len(key) != PRGKeySize {
		panic("crypto: PRG key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic("crypto: PRG cipher init failed: " + err.Error())
	}

	blockIndex := off / uint64(aes.BlockSize)
	skip := int(off % uint64(aes.BlockSize))

	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], blockIndex)

	stream := cipher.NewCTR(block, iv)

	// CTR keystreams are produced a block at a time; to land on a
	// mid-block offset we generate the skip prefix and discard it.
	buf := make([]byte, skip+len(dst))
	stream.XORKeyStream(buf, buf)
	copy(dst, buf[skip:])
}

// Expand64 is a convenience wrapper for the token tree's
// PRG.expand(parent, 64 bytes) step: returns the 32-byte left and right
// children derived from a 32-byte parent node key.
func Expand64(parent []byte) (left, right [32]byte) {
	buf := make([]byte, 64)
	DeriveStream(parent, 0, buf)
	copy(left[:], buf[:32])
	copy(right[:], buf[32:])
	return left, right
}
