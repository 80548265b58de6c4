// hash.go - Domain-separated hashing into the scalar field and the group.

package group

import (
	"encoding/binary"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	blake2b "github.com/minio/blake2b-simd"
)

// personalization is the BLAKE2b personalization string shared by every
// hash in this module. Labels separate the individual uses.
var personalization = []byte("anoncoin_v1_hash")

// curveDST is the hash-to-curve domain separation tag.
var curveDST = []byte("ANONCOIN-V1-SECP256K1_XMD:SHA-256_SVDW_RO_")

// NewHasher returns a 64-byte personalised BLAKE2b hash primed with label.
// Every input written by callers should be length-prefixed with WriteBytes.
func NewHasher(label string) *Hasher {
	h, err := blake2b.New(&blake2b.Config{Size: blake2b.Size, Person: personalization})
	if err != nil {
		// The configuration is static and always valid.
		panic(err)
	}
	hs := &Hasher{h: h}
	hs.WriteBytes([]byte(label))
	return hs
}

// Hasher accumulates length-prefixed byte strings.
type Hasher struct {
	h hash.Hash
}

// WriteBytes absorbs b prefixed with its 8-byte little-endian length.
func (h *Hasher) WriteBytes(b []byte) {
	var l [8]byte
	binary.LittleEndian.PutUint64(l[:], uint64(len(b)))
	h.h.Write(l[:])
	h.h.Write(b)
}

// WriteUint64 absorbs v as 8 little-endian bytes.
func (h *Hasher) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.WriteBytes(b[:])
}

func (h *Hasher) WriteScalar(s Scalar) {
	b := s.Bytes()
	h.WriteBytes(b[:])
}

func (h *Hasher) WritePoint(p Point) {
	b := p.Bytes()
	h.WriteBytes(b[:])
}

// Sum returns the 64-byte digest.
func (h *Hasher) Sum() []byte {
	return h.h.Sum(nil)
}

// Scalar returns the digest reduced into the scalar field.
func (h *Hasher) Scalar() Scalar {
	return ScalarFromWideBytes(h.Sum())
}

// HashToScalar hashes the length-prefixed parts under label into a scalar.
func HashToScalar(label string, parts ...[]byte) Scalar {
	h := NewHasher(label)
	for _, p := range parts {
		h.WriteBytes(p)
	}
	return h.Scalar()
}

// HashToPoint maps label and msg to a group element with the random-oracle
// hash-to-curve construction. The discrete logarithm of the result with
// respect to any other generator is unknown.
func HashToPoint(label string, msg []byte) Point {
	input := make([]byte, 0, len(label)+1+len(msg))
	input = append(input, label...)
	input = append(input, 0)
	input = append(input, msg...)
	aff, err := secp256k1.HashToG1(input, curveDST)
	if err != nil {
		// Only reachable with an oversized DST.
		panic(err)
	}
	var p Point
	p.p.FromAffine(&aff)
	return p
}

// HashToPoints derives n independent generators from label.
func HashToPoints(label string, n int) []Point {
	out := make([]Point, n)
	for i := range out {
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], uint64(i))
		out[i] = HashToPoint(label, idx[:])
	}
	return out
}
