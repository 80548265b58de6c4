// mint.go - Mint transactions create coins with public values.

package spark

import (
	"fmt"

	"anoncoin/internal/group"
)

// MintedCoinData describes one mint output.
type MintedCoinData struct {
	Address *Address
	V       uint64
	Memo    []byte
}

// MintTransaction is a batch of mint coins, each with a proof that its
// value commitment opens to the public value.
type MintTransaction struct {
	Coins         []*Coin
	ValueProofs   []SchnorrProof
	SerialContext []byte
}

func mintContext(c *Coin) []byte {
	var e group.Encoder
	e.PutRaw([]byte(labelMintBind))
	c.Encode(&e)
	e.PutBytes(c.SerialContext)
	return e.Bytes()
}

// NewMintTransaction builds mint coins for outputs. serialContext must be
// unique to the creating transaction, for example its serialized inputs.
func NewMintTransaction(params *Params, outputs []MintedCoinData,
	serialContext []byte) (*MintTransaction, error) {

	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrBadSemantics)
	}
	tx := &MintTransaction{SerialContext: append([]byte(nil), serialContext...)}
	for _, out := range outputs {
		k := group.RandomNonZeroScalar()
		c, err := NewCoin(params, CoinTypeMint, k, out.Address, out.V, out.Memo, serialContext)
		if err != nil {
			return nil, err
		}
		// C - G·v = H·hash_val(k)
		y := c.C.Sub(params.G.Mul(group.ScalarFromUint64(c.V)))
		tx.Coins = append(tx.Coins, c)
		tx.ValueProofs = append(tx.ValueProofs,
			proveSchnorr(params.H, hashVal(k), y, mintContext(c)))
	}
	return tx, nil
}

// Verify checks every value proof of the mint transaction.
func (tx *MintTransaction) Verify(params *Params) error {
	if len(tx.Coins) == 0 || len(tx.Coins) != len(tx.ValueProofs) {
		return fmt.Errorf("%w: %d coins, %d value proofs", ErrBadSemantics,
			len(tx.Coins), len(tx.ValueProofs))
	}
	for i, c := range tx.Coins {
		if c.Type != CoinTypeMint {
			return fmt.Errorf("%w: coin %d has type %v", ErrBadSemantics, i, c.Type)
		}
		y := c.C.Sub(params.G.Mul(group.ScalarFromUint64(c.V)))
		if !verifySchnorr(params.H, y, &tx.ValueProofs[i], mintContext(c)) {
			log.Debugf("Mint value proof %d failed for value %d", i, c.V)
			return fmt.Errorf("%w: value proof %d", ErrInvalidProof, i)
		}
	}
	return nil
}

// Value returns the total public value minted.
func (tx *MintTransaction) Value() (uint64, error) {
	var sum uint64
	for _, c := range tx.Coins {
		if sum+c.V < sum {
			return 0, fmt.Errorf("%w: value overflow", ErrBadSemantics)
		}
		sum += c.V
	}
	return sum, nil
}

func (tx *MintTransaction) Bytes() []byte {
	var e group.Encoder
	e.PutBytes(tx.SerialContext)
	e.PutUint32(uint32(len(tx.Coins)))
	for i, c := range tx.Coins {
		c.Encode(&e)
		tx.ValueProofs[i].Encode(&e)
	}
	return e.Bytes()
}

// MintTransactionFromBytes decodes a mint transaction. Decoded coins take
// the transaction's serial context.
func MintTransactionFromBytes(b []byte) (*MintTransaction, error) {
	d := group.NewDecoder(b)
	tx := &MintTransaction{SerialContext: d.Bytes()}
	n := d.Uint32()
	if d.Err() == nil && n > group.MaxVectorLen {
		return nil, fmt.Errorf("%w: %d coins", ErrBadSemantics, n)
	}
	for i := uint32(0); i < n && d.Err() == nil; i++ {
		c, err := DecodeCoin(d)
		if err != nil {
			return nil, err
		}
		c.SerialContext = tx.SerialContext
		tx.Coins = append(tx.Coins, c)
		tx.ValueProofs = append(tx.ValueProofs, decodeSchnorr(d))
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return tx, nil
}
