// chain.go - Block index arena with explicit parent links.

package ledger

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockID indexes a block record inside a Chain.
type BlockID int

// NoBlock is the parent of the genesis block.
const NoBlock BlockID = -1

// BlockIndex is one block record. MintedCoins and SpentSerials are the
// per-block slots the state machine writes on connect and reads on
// rebuild and rollback; they are guarded by the State lock.
type BlockIndex struct {
	ID     BlockID
	Parent BlockID
	Height int32
	Hash   chainhash.Hash

	MintedCoins  map[GroupKey][]Mint
	SpentSerials []Serial
}

func (b *BlockIndex) String() string {
	return fmt.Sprintf("%d/%v", b.Height, b.Hash)
}

// Chain stores every block record ever connected in an arena and tracks
// the active chain as a slice of ids indexed by height. Records of
// disconnected blocks stay in the arena.
type Chain struct {
	mu     sync.RWMutex
	blocks []*BlockIndex
	byHash map[chainhash.Hash]BlockID
	active []BlockID
}

func NewChain() *Chain {
	return &Chain{byHash: make(map[chainhash.Hash]BlockID)}
}

// Connect appends the block hash on top of the tip. The first block
// connected becomes the genesis block and its parent is ignored.
func (c *Chain) Connect(hash, parent chainhash.Hash) (*BlockIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parentID := NoBlock
	if n := len(c.active); n > 0 {
		parentID = c.active[n-1]
		if c.blocks[parentID].Hash != parent {
			return nil, fmt.Errorf("%w: parent %v, tip %v", ErrNotTip, parent,
				c.blocks[parentID].Hash)
		}
	}

	if id, ok := c.byHash[hash]; ok {
		b := c.blocks[id]
		if b.Parent != parentID || c.onActive(b) {
			return nil, fmt.Errorf("block %v already indexed at height %d", hash, b.Height)
		}
		c.active = append(c.active, id)
		return b, nil
	}

	b := &BlockIndex{
		ID:          BlockID(len(c.blocks)),
		Parent:      parentID,
		Height:      int32(len(c.active)),
		Hash:        hash,
		MintedCoins: make(map[GroupKey][]Mint),
	}
	c.blocks = append(c.blocks, b)
	c.byHash[hash] = b.ID
	c.active = append(c.active, b.ID)
	return b, nil
}

// Disconnect removes the tip from the active chain and returns it.
func (c *Chain) Disconnect() (*BlockIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.active)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrUnknownBlock)
	}
	b := c.blocks[c.active[n-1]]
	c.active = c.active[:n-1]
	return b, nil
}

func (c *Chain) onActive(b *BlockIndex) bool {
	h := int(b.Height)
	return h < len(c.active) && c.active[h] == b.ID
}

// Tip returns the last active block, or nil for an empty chain.
func (c *Chain) Tip() *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.active) == 0 {
		return nil
	}
	return c.blocks[c.active[len(c.active)-1]]
}

// Height returns the tip height, or -1 for an empty chain.
func (c *Chain) Height() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int32(len(c.active)) - 1
}

func (c *Chain) Genesis() *BlockIndex {
	return c.AtHeight(0)
}

// AtHeight returns the active block at height h.
func (c *Chain) AtHeight(h int32) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h < 0 || int(h) >= len(c.active) {
		return nil
	}
	return c.blocks[c.active[h]]
}

// Next returns the active successor of b, or nil at the tip or when b is
// not on the active chain.
func (c *Chain) Next(b *BlockIndex) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.onActive(b) || int(b.Height)+1 >= len(c.active) {
		return nil
	}
	return c.blocks[c.active[b.Height+1]]
}

// Parent follows the parent index of b.
func (c *Chain) Parent(b *BlockIndex) *BlockIndex {
	if b.Parent == NoBlock {
		return nil
	}
	return c.Block(b.Parent)
}

// Block returns the record with the given id.
func (c *Chain) Block(id BlockID) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id < 0 || int(id) >= len(c.blocks) {
		return nil
	}
	return c.blocks[id]
}

// ByHash looks up any indexed block, active or not.
func (c *Chain) ByHash(hash chainhash.Hash) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byHash[hash]
	if !ok {
		return nil
	}
	return c.blocks[id]
}

// Contains reports whether b is on the active chain.
func (c *Chain) Contains(b *BlockIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return b != nil && c.onActive(b)
}
