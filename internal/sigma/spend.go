// spend.go - Single-input spends authorized by an ECDSA signature.

package sigma

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"anoncoin/internal/group"
	"anoncoin/internal/grootle"
)

const (
	PubKeySize    = 33
	SignatureSize = 64
)

// SpendMetaData is the external context a spend signs over.
type SpendMetaData struct {
	GroupID   uint32
	BlockHash chainhash.Hash
	TxHash    chainhash.Hash
}

func (m *SpendMetaData) encode(e *group.Encoder) {
	e.PutUint32(m.GroupID)
	e.PutRaw(m.BlockHash[:])
	e.PutRaw(m.TxHash[:])
}

// CoinSpend reveals a serial and proves that one coin of the anonymity set
// commits to it.
type CoinSpend struct {
	Denomination         Denomination
	AccumulatorBlockHash chainhash.Hash
	Serial               group.Scalar
	PubKey               [PubKeySize]byte
	Signature            [SignatureSize]byte
	Proof                *grootle.Proof
}

// proofContext binds the membership proof to the cited anonymity set.
func proofContext(d Denomination, blockHash chainhash.Hash) []byte {
	var e group.Encoder
	e.PutUint64(uint64(d))
	e.PutRaw(blockHash[:])
	return e.Bytes()
}

// openings returns the set the proof runs over and the offset g·serial
// that removes the serial from the spent coin.
func (c *Context) openings(set []PublicCoin, serial group.Scalar) ([]group.Point, group.Point) {
	pts := make([]group.Point, len(set))
	for i := range set {
		pts[i] = set[i].Value
	}
	return pts, c.params.g.Mul(serial)
}

// SignatureHash returns the double-SHA256 of the metadata followed by the
// serialized proof.
func (s *CoinSpend) SignatureHash(m *SpendMetaData) chainhash.Hash {
	var e group.Encoder
	m.encode(&e)
	e.PutBytes(s.Proof.Bytes())
	return chainhash.DoubleHashH(e.Bytes())
}

// NewCoinSpend proves that coin is in anonymitySet and signs the spend over
// m with the coin's ECDSA key.
func (c *Context) NewCoinSpend(coin *PrivateCoin, anonymitySet []PublicCoin,
	m *SpendMetaData) (*CoinSpend, error) {

	if coin.serial.IsZero() {
		return nil, ErrInvalidSerial
	}
	if len(anonymitySet) > c.params.MaxSetSize() {
		return nil, fmt.Errorf("%w: anonymity set of %d exceeds %d", ErrInvalidSpend,
			len(anonymitySet), c.params.MaxSetSize())
	}
	index := -1
	for i := range anonymitySet {
		if anonymitySet[i].Equal(coin.public) {
			index = i
		}
	}
	if index < 0 {
		return nil, ErrCoinNotInSet
	}

	set, offset := c.openings(anonymitySet, coin.serial)
	proof, err := c.params.grootle.Prove(index,
		[]group.Scalar{coin.randomness},
		[][]group.Point{set},
		[]group.Point{offset},
		proofContext(coin.denomination, m.BlockHash))
	if err != nil {
		return nil, err
	}

	s := &CoinSpend{
		Denomination:         coin.denomination,
		AccumulatorBlockHash: m.BlockHash,
		Serial:               coin.serial,
		Proof:                proof,
	}
	copy(s.PubKey[:], coin.key.PubKey().SerializeCompressed())

	hash := s.SignatureHash(m)
	sig := ecdsa.Sign(coin.key, hash[:])
	r, sv := sig.R(), sig.S()
	rb, sb := r.Bytes(), sv.Bytes()
	copy(s.Signature[:32], rb[:])
	copy(s.Signature[32:], sb[:])
	return s, nil
}

// parseCompact decodes a 64-byte R || S signature.
func parseCompact(b [SignatureSize]byte) (*ecdsa.Signature, error) {
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(b[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("signature R out of range")
	}
	if overflow := s.SetByteSlice(b[32:]); overflow || s.IsZero() {
		return nil, fmt.Errorf("signature S out of range")
	}
	return ecdsa.NewSignature(&r, &s), nil
}

// Verify checks the spend against the anonymity set it cites. Checks run
// cheapest first: public key, serial binding, signature, then the
// membership proof.
func (c *Context) Verify(s *CoinSpend, anonymitySet []PublicCoin, m *SpendMetaData) error {
	if s.Proof == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidSpend)
	}
	if len(anonymitySet) == 0 || len(anonymitySet) > c.params.MaxSetSize() {
		log.Warnf("Sigma spend failed due to anonymity set of %d coins", len(anonymitySet))
		return fmt.Errorf("%w: anonymity set size %d", ErrInvalidSpend, len(anonymitySet))
	}
	if m.BlockHash != s.AccumulatorBlockHash {
		log.Warnf("Sigma spend failed due to accumulator hash mismatch")
		return fmt.Errorf("%w: accumulator block hash mismatch", ErrInvalidSpend)
	}

	pub, err := secp256k1.ParsePubKey(s.PubKey[:])
	if err != nil {
		log.Warnf("Sigma spend failed due to unable to parse public key: %v", err)
		return fmt.Errorf("%w: public key: %v", ErrInvalidSpend, err)
	}
	if !SerialFromPublicKey(pub).Equal(s.Serial) {
		log.Warnf("Sigma spend failed due to serial number does not match public key hash")
		return fmt.Errorf("%w: serial does not match public key", ErrInvalidSpend)
	}
	sig, err := parseCompact(s.Signature)
	if err != nil {
		log.Warnf("Sigma spend failed due to signature cannot be parsed: %v", err)
		return fmt.Errorf("%w: %v", ErrInvalidSpend, err)
	}
	hash := s.SignatureHash(m)
	if !sig.Verify(hash[:], pub) {
		log.Warnf("Sigma spend failed due to signature cannot be verified")
		return fmt.Errorf("%w: bad signature", ErrInvalidSpend)
	}

	set, offset := c.openings(anonymitySet, s.Serial)
	err = c.params.grootle.Verify([][]group.Point{set}, grootle.Statement{
		Proof:   s.Proof,
		Offsets: []group.Point{offset},
		Context: proofContext(s.Denomination, s.AccumulatorBlockHash),
		Size:    len(set),
	})
	if err != nil {
		log.Warnf("Sigma spend failed due to membership proof: %v", err)
		return fmt.Errorf("%w: %v", ErrInvalidSpend, err)
	}
	return nil
}

// Bytes encodes the spend.
func (s *CoinSpend) Bytes() []byte {
	var e group.Encoder
	e.PutUint64(uint64(s.Denomination))
	e.PutRaw(s.AccumulatorBlockHash[:])
	e.PutScalar(s.Serial)
	e.PutRaw(s.PubKey[:])
	e.PutRaw(s.Signature[:])
	s.Proof.Encode(&e)
	return e.Bytes()
}

// CoinSpendFromBytes decodes a spend.
func CoinSpendFromBytes(b []byte) (*CoinSpend, error) {
	d := group.NewDecoder(b)
	s := &CoinSpend{Denomination: Denomination(d.Uint64())}
	copy(s.AccumulatorBlockHash[:], d.Raw(chainhash.HashSize))
	s.Serial = d.Scalar()
	copy(s.PubKey[:], d.Raw(PubKeySize))
	copy(s.Signature[:], d.Raw(SignatureSize))
	if err := d.Err(); err != nil {
		return nil, err
	}
	pr, err := grootle.DecodeProof(d)
	if err != nil {
		return nil, err
	}
	s.Proof = pr
	if err := d.Finish(); err != nil {
		return nil, err
	}
	if !s.Denomination.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrDenomination, s.Denomination)
	}
	return s, nil
}
