// persist.go - Block, minted-coin and spent-serial records in a KV store.

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"anoncoin/internal/group"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
	"anoncoin/internal/store"
)

var (
	blocksBucket  = []byte("blocks")
	coinsBucket   = []byte("coins")
	serialsBucket = []byte("serials")
)

// Persister writes the per-block slots of connected blocks and replays
// them at startup.
type Persister struct {
	kv store.KV
}

func NewPersister(kv store.KV) *Persister {
	return &Persister{kv: kv}
}

// blockKey sorts records by height.
func blockKey(height int32, hash chainhash.Hash) []byte {
	k := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(k, uint32(height))
	copy(k[4:], hash[:])
	return k
}

func coinPrefix(m Mint) []byte {
	var e group.Encoder
	e.PutUint64(uint64(m.Pool))
	e.PutBytes(m.Bytes())
	return e.Bytes()
}

func coinKey(m Mint, height int32) []byte {
	k := coinPrefix(m)
	return binary.BigEndian.AppendUint32(k, uint32(height))
}

func encodeMint(e *group.Encoder, m Mint) {
	e.PutBytes(m.Bytes())
	if m.Pool.IsSpark() {
		e.PutBytes(m.Spark.SerialContext)
	}
}

func decodeMint(d *group.Decoder, pool Pool) (Mint, error) {
	b := d.Bytes()
	if err := d.Err(); err != nil {
		return Mint{}, err
	}
	if pool.IsSpark() {
		c, err := spark.CoinFromBytes(b)
		if err != nil {
			return Mint{}, err
		}
		c.SerialContext = d.Bytes()
		return SparkMint(c), d.Err()
	}
	p, err := group.PointFromBytes(b)
	if err != nil {
		return Mint{}, err
	}
	return SigmaMint(sigma.PublicCoin{Denomination: sigma.Denomination(pool), Value: p}), nil
}

func encodeBlock(b *BlockIndex, parent chainhash.Hash) []byte {
	var e group.Encoder
	e.PutRaw(b.Hash[:])
	e.PutRaw(parent[:])
	e.PutUint32(uint32(b.Height))

	keys := sortedGroupKeys(b.MintedCoins)
	e.PutUint32(uint32(len(keys)))
	for _, k := range keys {
		e.PutUint64(uint64(k.Pool))
		e.PutUint32(uint32(k.ID))
		coins := b.MintedCoins[k]
		e.PutUint32(uint32(len(coins)))
		for _, m := range coins {
			encodeMint(&e, m)
		}
	}
	e.PutUint32(uint32(len(b.SpentSerials)))
	for _, s := range b.SpentSerials {
		e.PutBytes([]byte(s))
	}
	return e.Bytes()
}

// blockRecord is a decoded block record.
type blockRecord struct {
	hash, parent chainhash.Hash
	height       int32
	minted       map[GroupKey][]Mint
	serials      []Serial
}

func decodeBlock(raw []byte) (*blockRecord, error) {
	d := group.NewDecoder(raw)
	r := &blockRecord{minted: make(map[GroupKey][]Mint)}
	copy(r.hash[:], d.Raw(chainhash.HashSize))
	copy(r.parent[:], d.Raw(chainhash.HashSize))
	r.height = int32(d.Uint32())

	groups := d.Uint32()
	for i := uint32(0); i < groups && d.Err() == nil; i++ {
		key := GroupKey{Pool: Pool(d.Uint64()), ID: int(d.Uint32())}
		n := d.Uint32()
		if n > group.MaxVectorLen {
			return nil, fmt.Errorf("group %v: %d coins", key, n)
		}
		for j := uint32(0); j < n && d.Err() == nil; j++ {
			m, err := decodeMint(d, key.Pool)
			if err != nil {
				return nil, fmt.Errorf("group %v coin %d: %w", key, j, err)
			}
			r.minted[key] = append(r.minted[key], m)
		}
	}
	n := d.Uint32()
	for i := uint32(0); i < n && d.Err() == nil; i++ {
		r.serials = append(r.serials, Serial(d.Bytes()))
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteBlock stores the record of b and its minted-coin and spent-serial
// records in one update.
func (p *Persister) WriteBlock(b *BlockIndex, parent chainhash.Hash) error {
	return p.kv.Update(func(w store.Writer) error {
		err := w.Put(blocksBucket, blockKey(b.Height, b.Hash), encodeBlock(b, parent))
		if err != nil {
			return err
		}
		for key, coins := range b.MintedCoins {
			var e group.Encoder
			e.PutUint32(uint32(key.ID))
			e.PutRaw(b.Hash[:])
			for _, m := range coins {
				if err := w.Put(coinsBucket, coinKey(m, b.Height), e.Bytes()); err != nil {
					return err
				}
			}
		}
		for _, s := range b.SpentSerials {
			v := blockKey(b.Height, b.Hash)
			if err := w.Put(serialsBucket, []byte(s), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBlock removes everything WriteBlock stored for b.
func (p *Persister) DeleteBlock(b *BlockIndex) error {
	return p.kv.Update(func(w store.Writer) error {
		if err := w.Delete(blocksBucket, blockKey(b.Height, b.Hash)); err != nil {
			return err
		}
		for _, coins := range b.MintedCoins {
			for _, m := range coins {
				if err := w.Delete(coinsBucket, coinKey(m, b.Height)); err != nil {
					return err
				}
			}
		}
		for _, s := range b.SpentSerials {
			if err := w.Delete(serialsBucket, []byte(s)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LookupCoin returns the height and group id of the first stored copy of m.
func (p *Persister) LookupCoin(m Mint) (int32, int, error) {
	height, id := int32(-1), -1
	errStop := errors.New("stop")
	prefix := coinPrefix(m)
	err := p.kv.List(coinsBucket, prefix, func(k, v []byte) error {
		if len(k) != len(prefix)+4 || len(v) < 4 {
			return fmt.Errorf("malformed coin record")
		}
		height = int32(binary.BigEndian.Uint32(k[len(prefix):]))
		id = int(binary.LittleEndian.Uint32(v))
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return -1, -1, err
	}
	if id < 0 {
		return -1, -1, store.ErrNotFound
	}
	return height, id, nil
}

// LookupSerial returns the height and hash of the block that spent serial.
func (p *Persister) LookupSerial(serial Serial) (int32, chainhash.Hash, error) {
	var hash chainhash.Hash
	v, err := p.kv.Get(serialsBucket, []byte(serial))
	if err != nil {
		return -1, hash, err
	}
	if len(v) != 4+chainhash.HashSize {
		return -1, hash, fmt.Errorf("malformed serial record")
	}
	copy(hash[:], v[4:])
	return int32(binary.BigEndian.Uint32(v)), hash, nil
}

// Load reconnects every stored block to an empty chain, in height order,
// and rebuilds state from the result.
func (p *Persister) Load(state *State) error {
	chain := state.Chain()
	if chain.Tip() != nil {
		return errors.New("ledger: load into a non-empty chain")
	}
	err := p.kv.List(blocksBucket, nil, func(k, v []byte) error {
		r, err := decodeBlock(v)
		if err != nil {
			return fmt.Errorf("block record %x: %w", k, err)
		}
		b, err := chain.Connect(r.hash, r.parent)
		if err != nil {
			return err
		}
		if b.Height != r.height {
			return fmt.Errorf("block %v stored at height %d, connected at %d",
				r.hash, r.height, b.Height)
		}
		b.MintedCoins = r.minted
		b.SpentSerials = r.serials
		return nil
	})
	if err != nil {
		return err
	}
	state.BuildStateFromIndex()
	log.Infof("Loaded %d blocks from the store", chain.Height()+1)
	return nil
}
