// coin.go - Private and public Sigma coins.

package sigma

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"anoncoin/internal/group"
)

// PublicCoin is the commitment published by a mint.
type PublicCoin struct {
	Denomination Denomination
	Value        group.Point
}

func (c PublicCoin) Equal(o PublicCoin) bool {
	return c.Denomination == o.Denomination && c.Value.Equal(o.Value)
}

// Bytes returns the compressed commitment.
func (c PublicCoin) Bytes() []byte {
	b := c.Value.Bytes()
	return b[:]
}

// PrivateCoin holds the opening of a public coin and the ECDSA key whose
// public key determines the serial.
type PrivateCoin struct {
	denomination Denomination
	serial       group.Scalar
	randomness   group.Scalar
	key          *secp256k1.PrivateKey
	public       PublicCoin
}

// SerialFromPublicKey derives the serial bound to an ECDSA public key: the
// SHA-256 of its compressed encoding, reduced into the scalar field.
func SerialFromPublicKey(pub *secp256k1.PublicKey) group.Scalar {
	return group.ScalarFromWideBytes(chainhash.HashB(pub.SerializeCompressed()))
}

// NewPrivateCoin mints a fresh coin of denomination d.
func (c *Context) NewPrivateCoin(d Denomination) (*PrivateCoin, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrDenomination, d)
	}
	for {
		key, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		coin, err := c.PrivateCoinFromKey(d, key, group.RandomNonZeroScalar())
		if err == nil {
			return coin, nil
		}
	}
}

// PrivateCoinFromKey rebuilds a coin from its ECDSA key and randomness, as
// a wallet restoring from a seed would.
func (c *Context) PrivateCoinFromKey(d Denomination, key *secp256k1.PrivateKey,
	randomness group.Scalar) (*PrivateCoin, error) {

	serial := SerialFromPublicKey(key.PubKey())
	if serial.IsZero() {
		return nil, ErrInvalidSerial
	}
	p := c.params
	return &PrivateCoin{
		denomination: d,
		serial:       serial,
		randomness:   randomness,
		key:          key,
		public: PublicCoin{
			Denomination: d,
			Value:        p.g.Mul(serial).Add(p.h.Mul(randomness)),
		},
	}, nil
}

func (pc *PrivateCoin) PublicCoin() PublicCoin { return pc.public }

func (pc *PrivateCoin) Serial() group.Scalar { return pc.serial }

func (pc *PrivateCoin) Denomination() Denomination { return pc.denomination }
