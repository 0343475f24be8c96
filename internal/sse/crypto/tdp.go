package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
)

// TdpDomainBytes is the width of the TDP's domain, ~256 bytes (a 2048-bit
// RSA modulus), the domain the Sophos search-token chain walks.
const TdpDomainBytes = 256

const tdpModulusBits = TdpDomainBytes * 8

// TdpPrivateKey holds the trapdoor (the RSA private exponent/modulus) used
// by the Sophos client to invert the permutation. It forbids copy of its
// sensitive material by value — callers receive and pass *TdpPrivateKey.
type TdpPrivateKey struct {
	sk *rsa.PrivateKey
}

// TdpPublicKey holds only the forward-evaluation material, exactly what the
// Sophos server is given at setup.
type TdpPublicKey struct {
	n *big.Int
	e *big.Int
}

// GenerateTDP creates a fresh TDP keypair over a TdpDomainBytes-wide modulus.
func GenerateTDP() (*TdpPrivateKey, error) {
	sk, err := rsa.GenerateKey(rand.Reader, tdpModulusBits)
	if err != nil {
		return nil, fmt.Errorf("crypto: TDP keygen failed: %w", err)
	}
	return &TdpPrivateKey{sk: sk}, nil
}

// Public returns the public (forward-evaluation-only) half of the keypair.
func (k *TdpPrivateKey) Public() *TdpPublicKey {
	return &TdpPublicKey{n: k.sk.N, e: big.NewInt(int64(k.sk.E))}
}

// Marshal serializes the private key to its PKCS#1 DER form for persistence
// under internal/sse/keys.
func (k *TdpPrivateKey) Marshal() []byte {
	return x509.MarshalPKCS1PrivateKey(k.sk)
}

// UnmarshalTDPPrivateKey reconstructs a TdpPrivateKey from the bytes
// produced by Marshal.
func UnmarshalTDPPrivateKey(der []byte) (*TdpPrivateKey, error) {
	sk, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad TDP private key encoding: %w: %v", sseerr.ErrCorruptState, err)
	}
	return &TdpPrivateKey{sk: sk}, nil
}

// MarshalPublic serializes the public key (modulus || exponent, fixed
// width) for transport/persistence.
func (k *TdpPublicKey) MarshalPublic() []byte {
	out := make([]byte, TdpDomainBytes+8)
	k.n.FillBytes(out[:TdpDomainBytes])
	k.e.FillBytes(out[TdpDomainBytes:])
	return out
}

// UnmarshalTDPPublicKey reconstructs a TdpPublicKey from MarshalPublic's
// output.
func UnmarshalTDPPublicKey(b []byte) (*TdpPublicKey, error) {
	if len(b) != TdpDomainBytes+8 {
		panic("crypto: invalid TDP public key length")
	}
	n := new(big.Int).SetBytes(b[:TdpDomainBytes])
	e := new(big.Int).SetBytes(b[TdpDomainBytes:])
	return &TdpPublicKey{n: n, e: e}, nil
}

// Sample draws a uniform element of the TDP domain.
func (k *TdpPublicKey) Sample() []byte {
	s, err := rand.Int(rand.Reader, k.n)
	if err != nil {
		panic("crypto: TDP domain sampling failed: " + err.Error())
	}
	out := make([]byte, TdpDomainBytes)
	s.FillBytes(out)
	return out
}

// GenerateArray deterministically samples a domain element from a PRG
// stream: the stream's first TdpDomainBytes key an HMAC of seed, that
// HMAC is widened to TdpDomainBytes with MultiHash, and the result is
// reduced mod N so it always lands in the domain.
func (k *TdpPublicKey) GenerateArray(prgKey []byte, seed []byte) []byte {
	raw := make([]byte, TdpDomainBytes)
	DeriveStream(prgKey, 0, raw)
	// Mix in the seed so distinct keywords get distinct initial tokens
	// even under the same PRG key.
	mixed := HMAC256(raw, seed)
	full := MultiHash(mixed[:], TdpDomainBytes) // widen to the full domain width
	x := new(big.Int).SetBytes(full)
	x.Mod(x, k.n)
	out := make([]byte, TdpDomainBytes)
	x.FillBytes(out)
	return out
}

// PublicEval applies pi once: s' = s^e mod N.
func (k *TdpPublicKey) PublicEval(s []byte) []byte {
	return k.publicEvalK(s, 1)
}

// PublicEvalK applies pi k times (public-key batched form).
func (k *TdpPublicKey) PublicEvalK(s []byte, kTimes int) []byte {
	return k.publicEvalK(s, kTimes)
}

func (k *TdpPublicKey) publicEvalK(s []byte, times int) []byte {
	if len(s) != TdpDomainBytes {
		panic("crypto: TDP input must be TdpDomainBytes wide")
	}
	x := new(big.Int).SetBytes(s)
	for i := 0; i < times; i++ {
		x.Exp(x, k.e, k.n)
	}
	out := make([]byte, TdpDomainBytes)
	x.FillBytes(out)
	return out
}

// PrivateInvert applies pi^-1 once: s'' = s^d mod N.
func (k *TdpPrivateKey) PrivateInvert(s []byte) []byte {
	return k.privateInvertK(s, 1)
}

// PrivateInvertK applies pi^-1 k times.
func (k *TdpPrivateKey) PrivateInvertK(s []byte, kTimes int) []byte {
	return k.privateInvertK(s, kTimes)
}

func (k *TdpPrivateKey) privateInvertK(s []byte, times int) []byte {
	if len(s) != TdpDomainBytes {
		panic("crypto: TDP input must be TdpDomainBytes wide")
	}
	x := new(big.Int).SetBytes(s)
	for i := 0; i < times; i++ {
		x.Exp(x, k.sk.D, k.sk.N)
	}
	out := make([]byte, TdpDomainBytes)
	x.FillBytes(out)
	return out
}

// TdpPool executes several public evaluations concurrently across a fixed
// number of worker goroutines, all of which evaluate with the same
// read-only public key.
type TdpPool struct {
	pub     *TdpPublicKey
	workers int
}

// NewTdpPool returns a pool of workers public evaluation contexts, all
// sharing the same (stateless, safe-for-concurrent-use) public key.
func NewTdpPool(pub *TdpPublicKey, workers int) *TdpPool {
	if workers <= 0 {
		workers = 1
	}
	return &TdpPool{pub: pub, workers: workers}
}

// EvalBatch applies PublicEval to every element of ss concurrently across
// the pool's worker count and returns the results in the same order.
func (p *TdpPool) EvalBatch(ss [][]byte) [][]byte {
	out := make([][]byte, len(ss))
	type job struct {
		idx int
		s   []byte
	}
	jobs := make(chan job)
	done := make(chan struct{})

	n := p.workers
	if n > len(ss) {
		n = len(ss)
	}
	if n <= 0 {
		return out
	}

	for w := 0; w < n; w++ {
		go func() {
			for j := range jobs {
				out[j.idx] = p.pub.PublicEval(j.s)
			}
			done <- struct{}{}
		}()
	}
	for i, s := range ss {
		jobs <- job{idx: i, s: s}
	}
	close(jobs)
	for w := 0; w < n; w++ {
		<-done
	}
	return out
}
