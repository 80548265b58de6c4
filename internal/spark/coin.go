// coin.go - Coins, their encrypted payload and recipient-side recovery.

package spark

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"anoncoin/internal/group"
)

// CoinType distinguishes coins created by mint and spend transactions.
type CoinType uint8

const (
	// CoinTypeMint coins carry their value in the clear.
	CoinTypeMint CoinType = 0

	// CoinTypeSpend coins hide their value behind the commitment and a
	// range proof.
	CoinTypeSpend CoinType = 1
)

func (t CoinType) String() string {
	switch t {
	case CoinTypeMint:
		return "mint"
	case CoinTypeSpend:
		return "spend"
	default:
		return fmt.Sprintf("CoinType(%d)", uint8(t))
	}
}

// Coin is a public output. S is the serial commitment, K the recovery key
// and C the value commitment.
type Coin struct {
	Type CoinType
	S    group.Point
	K    group.Point
	C    group.Point

	// V is the public value of a mint coin and zero otherwise.
	V uint64

	// Payload holds the AEAD-encrypted recipient data.
	Payload []byte

	// SerialContext binds the coin to the transaction that created it. It
	// is carried by the transaction, not by the coin encoding.
	SerialContext []byte
}

// NewCoin builds an output coin for addr with nonce k.
func NewCoin(params *Params, typ CoinType, k group.Scalar, addr *Address,
	v uint64, memo []byte, serialContext []byte) (*Coin, error) {

	if typ != CoinTypeMint && typ != CoinTypeSpend {
		return nil, ErrCoinType
	}
	if len(memo) > params.memoBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrMemoTooLong, len(memo), params.memoBytes)
	}
	if len(addr.D) != diversifierBlockSize {
		return nil, ErrBadDiversifier
	}

	c := &Coin{
		Type:          typ,
		S:             params.F.Mul(hashSer(k, serialContext)).Add(addr.Q2),
		K:             hashDiv(addr.D).Mul(k),
		C:             params.G.Mul(group.ScalarFromUint64(v)).Add(params.H.Mul(hashVal(k))),
		SerialContext: append([]byte(nil), serialContext...),
	}
	if typ == CoinTypeMint {
		c.V = v
	}

	var pl group.Encoder
	pl.PutRaw(addr.D)
	if typ == CoinTypeSpend {
		pl.PutUint64(v)
	}
	pl.PutScalar(k)
	padded := make([]byte, params.memoBytes)
	copy(padded, memo)
	pl.PutUint8(uint8(len(memo)))
	pl.PutRaw(padded)

	payload, err := seal(addr.Q1.Mul(k), typ, pl.Bytes())
	if err != nil {
		return nil, err
	}
	c.Payload = payload
	return c, nil
}

func seal(shared group.Point, typ CoinType, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(kdfCoin(shared))
	if err != nil {
		return nil, err
	}
	// The key is unique per coin nonce, so a fixed nonce is safe.
	nonce := make([]byte, aead.NonceSize())
	return aead.Seal(nil, nonce, plain, []byte{byte(typ)}), nil
}

func open(shared group.Point, typ CoinType, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(kdfCoin(shared))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	return aead.Open(nil, nonce, sealed, []byte{byte(typ)})
}

// IdentifiedCoinData is what an incoming view key learns about a coin.
type IdentifiedCoinData struct {
	I    uint64
	D    []byte
	V    uint64
	K    group.Scalar
	Memo []byte
}

// Identify decrypts the coin payload with ivk and checks every public
// field against the decrypted data. It returns ErrNotOwned for coins sent
// to other keys.
func (c *Coin) Identify(ivk *IncomingViewKey) (*IdentifiedCoinData, error) {
	p := ivk.params
	plain, err := open(c.K.Mul(ivk.s1), c.Type, c.Payload)
	if err != nil {
		return nil, ErrNotOwned
	}

	dec := group.NewDecoder(plain)
	data := &IdentifiedCoinData{D: dec.Raw(diversifierBlockSize)}
	if c.Type == CoinTypeSpend {
		data.V = dec.Uint64()
	} else {
		data.V = c.V
	}
	data.K = dec.Scalar()
	memoLen := int(dec.Uint8())
	memo := dec.Raw(p.memoBytes)
	if err := dec.Finish(); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrNotOwned, err)
	}
	if memoLen > p.memoBytes {
		return nil, fmt.Errorf("%w: memo length %d", ErrNotOwned, memoLen)
	}
	data.Memo = memo[:memoLen]

	i, err := ivk.Diversifier(data.D)
	if err != nil {
		return nil, ErrNotOwned
	}
	want := NewAddress(ivk, i)
	if !bytes.Equal(want.D, data.D) {
		return nil, fmt.Errorf("%w: diversifier mismatch", ErrNotOwned)
	}
	data.I = i

	if !hashDiv(data.D).Mul(data.K).Equal(c.K) {
		return nil, fmt.Errorf("%w: recovery key mismatch", ErrNotOwned)
	}
	if !p.F.Mul(hashSer(data.K, c.SerialContext)).Add(want.Q2).Equal(c.S) {
		return nil, fmt.Errorf("%w: serial commitment mismatch", ErrNotOwned)
	}
	valueC := p.G.Mul(group.ScalarFromUint64(data.V)).Add(p.H.Mul(hashVal(data.K)))
	if !valueC.Equal(c.C) {
		return nil, fmt.Errorf("%w: value commitment mismatch", ErrNotOwned)
	}
	return data, nil
}

// RecoveredCoinData holds the spend secret of an identified coin and its
// linking tag.
type RecoveredCoinData struct {
	S group.Scalar
	T group.Point
}

// Recover computes the serial scalar s and linking tag T = s⁻¹(U - D).
func (c *Coin) Recover(fvk *FullViewKey, data *IdentifiedCoinData) (*RecoveredCoinData, error) {
	p := fvk.params
	s := hashSer(data.K, c.SerialContext).Add(hashQ2(fvk.s1, data.I)).Add(fvk.s2)
	if s.IsZero() {
		return nil, fmt.Errorf("%w: zero serial", ErrBadSemantics)
	}
	if !p.F.Mul(s).Add(fvk.D).Equal(c.S) {
		return nil, fmt.Errorf("%w: serial does not open", ErrNotOwned)
	}
	return &RecoveredCoinData{
		S: s,
		T: p.U.Sub(fvk.D).Mul(s.Inverse()),
	}, nil
}

// Encode appends the coin: type, S, K, C, the value for mint coins and the
// length-prefixed payload.
func (c *Coin) Encode(e *group.Encoder) {
	e.PutUint8(uint8(c.Type))
	e.PutPoint(c.S)
	e.PutPoint(c.K)
	e.PutPoint(c.C)
	if c.Type == CoinTypeMint {
		e.PutUint64(c.V)
	}
	e.PutBytes(c.Payload)
}

func (c *Coin) Bytes() []byte {
	var e group.Encoder
	c.Encode(&e)
	return e.Bytes()
}

// DecodeCoin reads a coin from d.
func DecodeCoin(d *group.Decoder) (*Coin, error) {
	c := &Coin{Type: CoinType(d.Uint8())}
	if d.Err() == nil && c.Type != CoinTypeMint && c.Type != CoinTypeSpend {
		return nil, ErrCoinType
	}
	c.S = d.Point()
	c.K = d.Point()
	c.C = d.Point()
	if c.Type == CoinTypeMint {
		c.V = d.Uint64()
	}
	c.Payload = d.Bytes()
	if err := d.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// CoinFromBytes decodes a standalone coin encoding.
func CoinFromBytes(b []byte) (*Coin, error) {
	d := group.NewDecoder(b)
	c, err := DecodeCoin(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return c, nil
}
