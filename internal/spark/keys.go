// keys.go - Spend, view and address keys.

package spark

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"anoncoin/internal/group"
)

// SpendKey is the full spending authority over a wallet's coins.
type SpendKey struct {
	params *Params
	s1     group.Scalar
	s2     group.Scalar
	r      group.Scalar
}

// NewSpendKey returns a fresh random spend key.
func NewSpendKey(params *Params) *SpendKey {
	return &SpendKey{
		params: params,
		s1:     group.RandomScalar(),
		s2:     group.RandomScalar(),
		r:      group.RandomScalar(),
	}
}

// DeriveSpendKey expands a 32-byte seed into a spend key. r is the seed
// itself; s1 and s2 follow from domain-separated double-SHA256 hashes.
func DeriveSpendKey(params *Params, seed [32]byte) *SpendKey {
	r := group.ScalarFromWideBytes(seed[:])
	rb := r.Bytes()
	s1 := group.ScalarFromWideBytes(
		chainhash.DoubleHashB(append([]byte("s1_generation"), rb[:]...)))
	s1b := s1.Bytes()
	s2 := group.ScalarFromWideBytes(
		chainhash.DoubleHashB(append([]byte("s2_generation"), s1b[:]...)))
	return &SpendKey{params: params, s1: s1, s2: s2, r: r}
}

func (sk *SpendKey) Params() *Params { return sk.params }

// FullViewKey can identify incoming coins, read their values and compute
// their linking tags, but cannot authorize spends.
type FullViewKey struct {
	params *Params
	s1, s2 group.Scalar
	D, P2  group.Point
}

// NewFullViewKey derives D = G·r and P2 = F·s2 + D.
func NewFullViewKey(sk *SpendKey) *FullViewKey {
	p := sk.params
	d := p.G.Mul(sk.r)
	return &FullViewKey{
		params: p,
		s1:     sk.s1,
		s2:     sk.s2,
		D:      d,
		P2:     p.F.Mul(sk.s2).Add(d),
	}
}

// IncomingViewKey can identify incoming coins and derive addresses.
type IncomingViewKey struct {
	params *Params
	s1     group.Scalar
	P2     group.Point
}

func NewIncomingViewKey(fvk *FullViewKey) *IncomingViewKey {
	return &IncomingViewKey{params: fvk.params, s1: fvk.s1, P2: fvk.P2}
}

// Diversifier decrypts an encrypted diversifier. The result is not
// authenticated: any 16-byte string decrypts to some index. Use
// VerifyAddress when the index must be trusted.
func (ivk *IncomingViewKey) Diversifier(d []byte) (uint64, error) {
	return diversifierDecrypt(kdfDiversifier(ivk.s1), d)
}

// VerifyAddress decrypts the address diversifier and checks that the
// address is exactly the one this key derives at that index.
func (ivk *IncomingViewKey) VerifyAddress(addr *Address) (uint64, error) {
	i, err := ivk.Diversifier(addr.D)
	if err != nil {
		return 0, err
	}
	if !NewAddress(ivk, i).Equal(addr) {
		return 0, ErrBadDiversifier
	}
	return i, nil
}

// DefaultAddressVersion is the leading character of encoded addresses.
const DefaultAddressVersion = 'p'

// Address is a public destination derived at a diversifier index.
type Address struct {
	params  *Params
	Version byte
	D       []byte
	Q1, Q2  group.Point
}

// NewAddress derives the address for diversifier index i.
func NewAddress(ivk *IncomingViewKey, i uint64) *Address {
	p := ivk.params
	d := diversifierEncrypt(kdfDiversifier(ivk.s1), i)
	return &Address{
		params:  p,
		Version: DefaultAddressVersion,
		D:       d,
		Q1:      hashDiv(d).Mul(ivk.s1),
		Q2:      p.F.Mul(hashQ2(ivk.s1, i)).Add(ivk.P2),
	}
}

func (a *Address) Params() *Params { return a.params }

func (a *Address) Equal(o *Address) bool {
	return a.Version == o.Version &&
		bytes.Equal(a.D, o.D) &&
		a.Q1.Equal(o.Q1) &&
		a.Q2.Equal(o.Q2)
}

const (
	addressPayloadSize = 2*group.PointSize + diversifierBlockSize
	addressChecksumLen = 20

	// EncodedAddressLen is the length of an encoded address string.
	EncodedAddressLen = (addressPayloadSize+addressChecksumLen)*2 + 1
)

// Encode returns the version character, the hex payload Q1 || Q2 || d and
// the hex Hash160 of everything before it. The checksum is printed in
// reversed byte order.
func (a *Address) Encode() string {
	buf := make([]byte, 0, addressPayloadSize)
	buf = append(buf, pointBytes(a.Q1)...)
	buf = append(buf, pointBytes(a.Q2)...)
	buf = append(buf, a.D...)

	prefix := string(a.Version) + hex.EncodeToString(buf)
	sum := btcutil.Hash160([]byte(prefix))
	for i, j := 0, len(sum)-1; i < j; i, j = i+1, j-1 {
		sum[i], sum[j] = sum[j], sum[i]
	}
	return prefix + hex.EncodeToString(sum)
}

func (a *Address) String() string {
	return a.Encode()
}

// DecodeAddress parses an encoded address and checks its checksum. Hex
// digits must be lowercase.
func DecodeAddress(params *Params, s string) (*Address, error) {
	if len(s) != EncodedAddressLen {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, len(s))
	}
	buf, err := hex.DecodeString(s[1 : 1+2*addressPayloadSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	q1, err := group.PointFromBytes(buf[:group.PointSize])
	if err != nil {
		return nil, fmt.Errorf("address Q1: %w", err)
	}
	q2, err := group.PointFromBytes(buf[group.PointSize : 2*group.PointSize])
	if err != nil {
		return nil, fmt.Errorf("address Q2: %w", err)
	}
	a := &Address{
		params:  params,
		Version: s[0],
		D:       append([]byte(nil), buf[2*group.PointSize:]...),
		Q1:      q1,
		Q2:      q2,
	}

	// The checksum covers the lowercase text, so only the canonical
	// encoding of an address decodes.
	if a.Encode() != s {
		return nil, ErrInvalidChecksum
	}
	return a, nil
}
