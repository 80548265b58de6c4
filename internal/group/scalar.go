// scalar.go - Scalars of the secp256k1 prime-order group.
//
// Scalar wraps a gnark-crypto fr.Element and exposes value-semantics arithmetic
// so that protocol code reads like the equations it implements.

package group

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
)

// ScalarSize is the encoded size of a scalar in bytes.
const ScalarSize = fr.Bytes

// ErrInvalidScalar is returned when a scalar encoding is not canonical.
var ErrInvalidScalar = errors.New("group: invalid scalar encoding")

// Scalar is an element of the scalar field of secp256k1.
type Scalar struct {
	v fr.Element
}

// ScalarFromUint64 returns v as a scalar.
func ScalarFromUint64(v uint64) Scalar {
	var s Scalar
	s.v.SetUint64(v)
	return s
}

// ScalarFromInt64 returns v as a scalar; negative values are reduced mod r.
func ScalarFromInt64(v int64) Scalar {
	var s Scalar
	s.v.SetInt64(v)
	return s
}

// ScalarFromBytes decodes a canonical 32-byte big-endian scalar.
func ScalarFromBytes(b []byte) (Scalar, error) {
	var s Scalar
	if err := s.v.SetBytesCanonical(b); err != nil {
		return Scalar{}, ErrInvalidScalar
	}
	return s, nil
}

// ScalarFromWideBytes interprets b as a big-endian integer of any length and
// reduces it modulo the group order.
func ScalarFromWideBytes(b []byte) Scalar {
	var s Scalar
	s.v.SetBytes(b)
	return s
}

// RandomScalar returns a uniformly random scalar read from crypto/rand.
func RandomScalar() Scalar {
	var s Scalar
	s.v.MustSetRandom()
	return s
}

// RandomNonZeroScalar returns a uniformly random non-zero scalar.
func RandomNonZeroScalar() Scalar {
	for {
		s := RandomScalar()
		if !s.IsZero() {
			return s
		}
	}
}

func (s Scalar) Add(o Scalar) Scalar {
	var r Scalar
	r.v.Add(&s.v, &o.v)
	return r
}

func (s Scalar) Sub(o Scalar) Scalar {
	var r Scalar
	r.v.Sub(&s.v, &o.v)
	return r
}

func (s Scalar) Mul(o Scalar) Scalar {
	var r Scalar
	r.v.Mul(&s.v, &o.v)
	return r
}

func (s Scalar) Neg() Scalar {
	var r Scalar
	r.v.Neg(&s.v)
	return r
}

func (s Scalar) Square() Scalar {
	var r Scalar
	r.v.Square(&s.v)
	return r
}

// Inverse returns s⁻¹. The inverse of zero is zero.
func (s Scalar) Inverse() Scalar {
	var r Scalar
	r.v.Inverse(&s.v)
	return r
}

// Pow returns s^e.
func (s Scalar) Pow(e uint64) Scalar {
	var r Scalar
	r.v.Exp(s.v, new(big.Int).SetUint64(e))
	return r
}

func (s Scalar) IsZero() bool {
	return s.v.IsZero()
}

func (s Scalar) IsOne() bool {
	return s.v.IsOne()
}

func (s Scalar) Equal(o Scalar) bool {
	return s.v.Equal(&o.v)
}

// Bytes returns the canonical 32-byte big-endian encoding.
func (s Scalar) Bytes() [ScalarSize]byte {
	return s.v.Bytes()
}

// BigInt returns s as a non-negative integer below the group order.
func (s Scalar) BigInt() *big.Int {
	return s.v.BigInt(new(big.Int))
}

// IsUint64 reports whether s fits in 64 bits.
func (s Scalar) IsUint64() bool {
	return s.v.IsUint64()
}

// Uint64 returns the low 64 bits of s.
func (s Scalar) Uint64() uint64 {
	return s.v.Uint64()
}

func (s Scalar) String() string {
	return s.v.Text(16)
}

// Powers returns [1, x, x², ..., x^(n-1)].
func Powers(x Scalar, n int) []Scalar {
	out := make([]Scalar, n)
	if n == 0 {
		return out
	}
	out[0] = ScalarFromUint64(1)
	for i := 1; i < n; i++ {
		out[i] = out[i-1].Mul(x)
	}
	return out
}

// SumScalars returns the sum of xs.
func SumScalars(xs []Scalar) Scalar {
	var acc Scalar
	for _, x := range xs {
		acc = acc.Add(x)
	}
	return acc
}

// BatchInverse inverts every element of xs.
func BatchInverse(xs []Scalar) []Scalar {
	in := make([]fr.Element, len(xs))
	for i := range xs {
		in[i] = xs[i].v
	}
	inv := fr.BatchInvert(in)
	out := make([]Scalar, len(xs))
	for i := range inv {
		out[i].v = inv[i]
	}
	return out
}
