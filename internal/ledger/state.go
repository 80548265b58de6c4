// state.go - Anonymity-set state: coin groups, minted coins and spent
// serials indexed by chain position.

package ledger

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CoinGroupInfo tracks one anonymity set. FirstBlock and LastBlock bound
// the blocks that contributed coins to it.
type CoinGroupInfo struct {
	FirstBlock BlockID
	LastBlock  BlockID
	NCoins     int
}

// State is the anonymity-set state machine. Confirmed state is guarded by
// mu; the mempool reservations by mempoolMu, which is always acquired after
// mu.
type State struct {
	chain         *Chain
	sigmaCapacity int
	sparkCapacity int

	mu            sync.RWMutex
	coinGroups    map[GroupKey]*CoinGroupInfo
	latestCoinIDs map[Pool]int
	mintedCoins   map[mintKey][]MintInfo
	usedSerials   map[Serial]struct{}

	mempoolMu      sync.Mutex
	mempoolSerials map[Serial]chainhash.Hash
}

// NewState returns an empty state over chain. Groups accept coins up to
// the per-group capacity in limits before a new group is opened.
func NewState(chain *Chain, limits Limits) *State {
	s := &State{
		chain:         chain,
		sigmaCapacity: limits.SigmaCoinsPerGroup,
		sparkCapacity: limits.SparkCoinsPerGroup,
	}
	s.reset()
	return s
}

func (s *State) Chain() *Chain { return s.chain }

// Capacity returns the soft size limit of the groups of pool.
func (s *State) Capacity(pool Pool) int {
	if pool.IsSpark() {
		return s.sparkCapacity
	}
	return s.sigmaCapacity
}

func (s *State) reset() {
	s.coinGroups = make(map[GroupKey]*CoinGroupInfo)
	s.latestCoinIDs = make(map[Pool]int)
	s.mintedCoins = make(map[mintKey][]MintInfo)
	s.usedSerials = make(map[Serial]struct{})
	s.mempoolMu.Lock()
	s.mempoolSerials = make(map[Serial]chainhash.Hash)
	s.mempoolMu.Unlock()
}

// Reset clears all state, including mempool reservations.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// AddMint assigns m, minted in block, to the active group of its pool and
// returns the group id. A full group still accepts coins from the block
// that last contributed to it; otherwise a new group is opened. The caller
// records the coin in the block's MintedCoins slot under the returned id.
func (s *State) AddMint(block *BlockIndex, m Mint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMint(block, m)
}

func (s *State) addMint(block *BlockIndex, m Mint) (int, error) {
	if s.latestCoinIDs[m.Pool] < 1 {
		s.latestCoinIDs[m.Pool] = 1
	}
	id := s.latestCoinIDs[m.Pool]
	key := GroupKey{Pool: m.Pool, ID: id}

	g, ok := s.coinGroups[key]
	if !ok {
		g = &CoinGroupInfo{FirstBlock: NoBlock, LastBlock: NoBlock}
		s.coinGroups[key] = g
	}

	switch {
	case g.NCoins < s.Capacity(m.Pool) || g.LastBlock == block.ID:
		if g.NCoins == 0 {
			if g.FirstBlock != NoBlock || g.LastBlock != NoBlock {
				return 0, invariant("AddMint", "empty group %v has block bounds", key)
			}
			g.FirstBlock = block.ID
		} else if last := s.chain.Block(g.LastBlock); last == nil || last.Height > block.Height {
			return 0, invariant("AddMint", "group %v last block is above height %d",
				key, block.Height)
		}
		g.LastBlock = block.ID
		g.NCoins++

	default:
		id++
		s.latestCoinIDs[m.Pool] = id
		key = GroupKey{Pool: m.Pool, ID: id}
		s.coinGroups[key] = &CoinGroupInfo{
			FirstBlock: block.ID,
			LastBlock:  block.ID,
			NCoins:     1,
		}
	}

	k := m.key()
	s.mintedCoins[k] = append(s.mintedCoins[k], MintInfo{
		Pool:    m.Pool,
		GroupID: id,
		Height:  block.Height,
	})
	return id, nil
}

// AddSpend marks serial as used. Callers detect double spends with
// IsUsedCoinSerial first.
func (s *State) AddSpend(serial Serial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usedSerials[serial] = struct{}{}
}

// AddBlock applies the slots of an already connected block. It is used to
// rebuild state from the block index.
func (s *State) AddBlock(block *BlockIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addBlock(block)
}

func (s *State) addBlock(block *BlockIndex) {
	for _, key := range sortedGroupKeys(block.MintedCoins) {
		coins := block.MintedCoins[key]
		if len(coins) > 0 {
			g, ok := s.coinGroups[key]
			if !ok {
				g = &CoinGroupInfo{FirstBlock: block.ID}
				s.coinGroups[key] = g
			}
			g.LastBlock = block.ID
			g.NCoins += len(coins)
		}

		s.latestCoinIDs[key.Pool] = key.ID
		for _, m := range coins {
			k := m.key()
			s.mintedCoins[k] = append(s.mintedCoins[k], MintInfo{
				Pool:    key.Pool,
				GroupID: key.ID,
				Height:  block.Height,
			})
		}
	}
	for _, serial := range block.SpentSerials {
		s.usedSerials[serial] = struct{}{}
	}
}

// RemoveBlock exactly undoes AddBlock, or the AddMint and AddSpend calls
// made while connecting block, and clears the block's slots. It must be
// called for the tip only. An error means the state no longer matches the
// chain and must not be used further.
func (s *State) RemoveBlock(block *BlockIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeBlock(block)
}

func (s *State) removeBlock(block *BlockIndex) error {
	keys := sortedGroupKeys(block.MintedCoins)

	for _, key := range keys {
		forget := len(block.MintedCoins[key])
		if forget == 0 {
			continue
		}
		g, ok := s.coinGroups[key]
		if !ok {
			return invariant("RemoveBlock", "block %v minted into unknown group %v", block, key)
		}
		if g.NCoins < forget {
			return invariant("RemoveBlock", "group %v has %d coins, block %v minted %d",
				key, g.NCoins, block, forget)
		}

		if g.NCoins -= forget; g.NCoins == 0 {
			delete(s.coinGroups, key)
			if s.latestCoinIDs[key.Pool] >= key.ID {
				s.latestCoinIDs[key.Pool] = key.ID - 1
			}
			if s.latestCoinIDs[key.Pool] < 1 {
				delete(s.latestCoinIDs, key.Pool)
			}
			continue
		}

		// Roll LastBlock back to the previous contributing block.
		if g.LastBlock != block.ID {
			return invariant("RemoveBlock", "group %v last block is not %v", key, block)
		}
		last := block
		for {
			if last.ID == g.FirstBlock {
				return invariant("RemoveBlock", "group %v has coins but no earlier block", key)
			}
			if last = s.chain.Parent(last); last == nil {
				return invariant("RemoveBlock", "group %v walked past genesis", key)
			}
			if len(last.MintedCoins[key]) > 0 {
				break
			}
		}
		g.LastBlock = last.ID
	}

	for _, key := range keys {
		for _, m := range block.MintedCoins[key] {
			k := m.key()
			infos := s.mintedCoins[k]
			i := len(infos) - 1
			for ; i >= 0; i-- {
				if infos[i].GroupID == key.ID && infos[i].Height == block.Height {
					break
				}
			}
			if i < 0 {
				return invariant("RemoveBlock", "minted coin of %v missing", key)
			}
			infos = append(infos[:i:i], infos[i+1:]...)
			if len(infos) == 0 {
				delete(s.mintedCoins, k)
			} else {
				s.mintedCoins[k] = infos
			}
		}
	}
	block.MintedCoins = make(map[GroupKey][]Mint)

	for _, serial := range block.SpentSerials {
		delete(s.usedSerials, serial)
	}
	block.SpentSerials = nil
	return nil
}

// GetCoinGroupInfo returns the group record, or false if it does not exist.
func (s *State) GetCoinGroupInfo(pool Pool, id int) (CoinGroupInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.coinGroups[GroupKey{Pool: pool, ID: id}]
	if !ok {
		return CoinGroupInfo{}, false
	}
	return *g, true
}

// IsUsedCoinSerial reports whether serial is spent in the active chain.
func (s *State) IsUsedCoinSerial(serial Serial) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.usedSerials[serial]
	return ok
}

// HasCoin reports whether m was minted in the active chain.
func (s *State) HasCoin(m Mint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCoin(m)
}

func (s *State) hasCoin(m Mint) bool {
	return len(s.mintedCoins[m.key()]) > 0
}

// GetMintedCoinHeightAndID locates the first recorded copy of m, or
// returns (-1, -1).
func (s *State) GetMintedCoinHeightAndID(m Mint) (int32, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := s.mintedCoins[m.key()]
	if len(infos) == 0 {
		return -1, -1
	}
	return infos[0].Height, infos[0].GroupID
}

// GetLatestCoinID returns the id of the newest group of pool, or 0.
func (s *State) GetLatestCoinID(pool Pool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestCoinIDs[pool]
}

// GetCoinSetForSpend collects the coins of a group minted at or below
// maxHeight, oldest first, and returns their count and the hash of the most
// recent block that contributed. A missing group yields a zero count.
func (s *State) GetCoinSetForSpend(maxHeight int32, pool Pool, id int) (int,
	chainhash.Hash, []Mint) {

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coinSetForSpend(maxHeight, GroupKey{Pool: pool, ID: id})
}

func (s *State) coinSetForSpend(maxHeight int32, key GroupKey) (int, chainhash.Hash, []Mint) {
	var blockHash chainhash.Hash
	g, ok := s.coinGroups[key]
	if !ok {
		return 0, blockHash, nil
	}

	var blocks [][]Mint
	n := 0
	for b := s.chain.Block(g.LastBlock); b != nil; b = s.chain.Parent(b) {
		if coins := b.MintedCoins[key]; len(coins) > 0 && b.Height <= maxHeight {
			if n == 0 {
				blockHash = b.Hash
			}
			n += len(coins)
			blocks = append(blocks, coins)
		}
		if b.ID == g.FirstBlock {
			break
		}
	}

	out := make([]Mint, 0, n)
	for i := len(blocks) - 1; i >= 0; i-- {
		out = append(out, blocks[i]...)
	}
	return n, blockHash, out
}

// coinSetAt returns the set a spend citing accumulator block hash was
// built against. The block must have contributed coins to the group.
func (s *State) coinSetAt(key GroupKey, hash chainhash.Hash) ([]Mint, error) {
	if _, ok := s.coinGroups[key]; !ok {
		return nil, ErrNoGroup
	}
	b := s.chain.ByHash(hash)
	if b == nil || !s.chain.Contains(b) || len(b.MintedCoins[key]) == 0 {
		return nil, ErrNoGroup
	}
	_, _, coins := s.coinSetForSpend(b.Height, key)
	return coins, nil
}

// BuildStateFromIndex replays every active block from genesis.
func (s *State) BuildStateFromIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for b := s.chain.Genesis(); b != nil; b = s.chain.Next(b) {
		s.addBlock(b)
	}
	for _, pool := range sortedPools(s.latestCoinIDs) {
		log.Infof("Latest coin group for %v is %d", pool, s.latestCoinIDs[pool])
	}
}

func sortedGroupKeys(m map[GroupKey][]Mint) []GroupKey {
	keys := make([]GroupKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Pool != keys[j].Pool {
			return keys[i].Pool < keys[j].Pool
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func sortedPools(m map[Pool]int) []Pool {
	pools := make([]Pool, 0, len(m))
	for p := range m {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i] < pools[j] })
	return pools
}
