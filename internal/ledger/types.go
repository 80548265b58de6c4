// types.go - Coins, serials and the minimal transaction and block model the
// state machine consumes.

package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"anoncoin/internal/group"
	"anoncoin/internal/script"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
)

// Pool partitions minted coins into independent families of anonymity
// sets: one per Sigma denomination, plus SparkPool for Spark coins.
type Pool int64

// SparkPool holds every Spark coin regardless of value.
const SparkPool Pool = 0

// SigmaPool returns the pool of a Sigma denomination.
func SigmaPool(d sigma.Denomination) Pool { return Pool(d) }

func (p Pool) IsSpark() bool { return p == SparkPool }

func (p Pool) String() string {
	if p.IsSpark() {
		return "spark"
	}
	return "sigma/" + sigma.Denomination(p).String()
}

// ParsePool parses the String form of a pool. A bare amount such as "0.1"
// names a Sigma pool.
func ParsePool(s string) (Pool, error) {
	if s == "spark" {
		return SparkPool, nil
	}
	d, err := sigma.ParseDenomination(strings.TrimPrefix(s, "sigma/"))
	if err != nil {
		return 0, err
	}
	return SigmaPool(d), nil
}

// GroupKey names one anonymity set.
type GroupKey struct {
	Pool Pool
	ID   int
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%v#%d", k.Pool, k.ID)
}

// Mint is a coin added to an anonymity set. Exactly one of Sigma and Spark
// is meaningful, selected by Pool.
type Mint struct {
	Pool  Pool
	Sigma sigma.PublicCoin
	Spark *spark.Coin
}

// SigmaMint wraps a Sigma public coin.
func SigmaMint(c sigma.PublicCoin) Mint {
	return Mint{Pool: SigmaPool(c.Denomination), Sigma: c}
}

// SparkMint wraps a Spark coin.
func SparkMint(c *spark.Coin) Mint {
	return Mint{Pool: SparkPool, Spark: c}
}

// Bytes is the coin identity: the compressed commitment for Sigma, the
// coin encoding for Spark.
func (m Mint) Bytes() []byte {
	if m.Pool.IsSpark() {
		return m.Spark.Bytes()
	}
	return m.Sigma.Bytes()
}

// mintKey identifies a coin across pools.
type mintKey struct {
	pool Pool
	coin string
}

func (m Mint) key() mintKey {
	return mintKey{pool: m.Pool, coin: string(m.Bytes())}
}

// MintInfo locates a minted coin.
type MintInfo struct {
	Pool    Pool
	GroupID int
	Height  int32
}

// Serial is the value a spend reveals to prevent double spending: a Sigma
// serial number (32 bytes) or a Spark linking tag (33 bytes).
type Serial string

// SigmaSerial returns the serial of a Sigma spend.
func SigmaSerial(s group.Scalar) Serial {
	b := s.Bytes()
	return Serial(b[:])
}

// SparkSerial returns the serial of one Spark input.
func SparkSerial(t group.Point) Serial {
	b := t.Bytes()
	return Serial(b[:])
}

func (s Serial) String() string {
	return hex.EncodeToString([]byte(s))
}

// TxIn is a transaction input. Spend inputs carry the claimed group id in
// PrevIndex and a marker-prefixed proof in Script.
type TxIn struct {
	PrevIndex uint32
	Script    []byte
}

// TxOut is a transaction output. Mint outputs carry a marker-prefixed
// commitment in Script.
type TxOut struct {
	Value  int64
	Script []byte
}

// Tx is a transaction reduced to what the anonymity-set layer reads.
type Tx struct {
	Inputs  []TxIn
	Outputs []TxOut
}

func (tx *Tx) encode(e *group.Encoder, stripSpends bool) {
	e.PutUint32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		e.PutUint32(in.PrevIndex)
		if stripSpends && script.IsSpend(in.Script) {
			e.PutBytes(nil)
			continue
		}
		e.PutBytes(in.Script)
	}
	e.PutUint32(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		e.PutUint64(uint64(out.Value))
		e.PutBytes(out.Script)
	}
}

// Hash returns the transaction id.
func (tx *Tx) Hash() chainhash.Hash {
	var e group.Encoder
	tx.encode(&e, false)
	return chainhash.DoubleHashH(e.Bytes())
}

// MetadataHash hashes the transaction with every spend script cleared. It
// is the transaction context Sigma spends sign over.
func (tx *Tx) MetadataHash() chainhash.Hash {
	var e group.Encoder
	tx.encode(&e, true)
	return chainhash.DoubleHashH(e.Bytes())
}

// Block is a candidate block.
type Block struct {
	Parent    chainhash.Hash
	Timestamp int64
	Txs       []*Tx
}

// Hash returns the block id.
func (b *Block) Hash() chainhash.Hash {
	var e group.Encoder
	e.PutRaw(b.Parent[:])
	e.PutUint64(uint64(b.Timestamp))
	e.PutUint32(uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		h := tx.Hash()
		e.PutRaw(h[:])
	}
	return chainhash.DoubleHashH(e.Bytes())
}
