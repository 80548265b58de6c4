package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"anoncoin/internal/group"
	"anoncoin/internal/sigma"
)

var testLimits = Limits{
	MaxSpendInputsPerBlock: 8,
	MaxSpendValuePerBlock:  1000 * sigma.COIN,
	MaxMintsPerBlock:       3,
	SigmaCoinsPerGroup:     4,
	SparkCoinsPerGroup:     6,
}

func randomCoin(d sigma.Denomination) Mint {
	return SigmaMint(sigma.PublicCoin{
		Denomination: d,
		Value:        group.Generator().Mul(group.RandomNonZeroScalar()),
	})
}

func randomSerial() Serial {
	return SigmaSerial(group.RandomNonZeroScalar())
}

var blockCounter int

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

// connect appends a block to the chain of s and applies mints and spends
// the way ConnectBlock does.
func connect(t tb, s *State, mints []Mint, serials []Serial) *BlockIndex {
	t.Helper()
	chain := s.Chain()
	var parent chainhash.Hash
	if tip := chain.Tip(); tip != nil {
		parent = tip.Hash
	}
	blockCounter++
	hash := chainhash.DoubleHashH([]byte(fmt.Sprintf("block %d", blockCounter)))
	b, err := chain.Connect(hash, parent)
	require.NoError(t, err)

	for _, serial := range serials {
		s.AddSpend(serial)
		b.SpentSerials = append(b.SpentSerials, serial)
	}
	for _, m := range mints {
		id, err := s.AddMint(b, m)
		require.NoError(t, err)
		key := GroupKey{Pool: m.Pool, ID: id}
		b.MintedCoins[key] = append(b.MintedCoins[key], m)
	}
	return b
}

func disconnect(t tb, s *State) {
	t.Helper()
	tip := s.Chain().Tip()
	require.NoError(t, s.RemoveBlock(tip))
	_, err := s.Chain().Disconnect()
	require.NoError(t, err)
}

// snapshot is a deep copy of the confirmed maps of a State.
type snapshot struct {
	Groups map[GroupKey]CoinGroupInfo
	Latest map[Pool]int
	Minted map[mintKey][]MintInfo
	Used   map[Serial]struct{}
}

func snap(s *State) snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := snapshot{
		Groups: make(map[GroupKey]CoinGroupInfo),
		Latest: make(map[Pool]int),
		Minted: make(map[mintKey][]MintInfo),
		Used:   make(map[Serial]struct{}),
	}
	for k, g := range s.coinGroups {
		out.Groups[k] = *g
	}
	for k, v := range s.latestCoinIDs {
		out.Latest[k] = v
	}
	for k, v := range s.mintedCoins {
		out.Minted[k] = append([]MintInfo(nil), v...)
	}
	for k := range s.usedSerials {
		out.Used[k] = struct{}{}
	}
	return out
}

func copySlots(b *BlockIndex) (map[GroupKey][]Mint, []Serial) {
	minted := make(map[GroupKey][]Mint, len(b.MintedCoins))
	for k, v := range b.MintedCoins {
		minted[k] = append([]Mint(nil), v...)
	}
	return minted, append([]Serial(nil), b.SpentSerials...)
}

func TestAddRemoveBlockIdentity(t *testing.T) {
	denoms := []sigma.Denomination{sigma.Denom1, sigma.Denom10}

	rapid.Check(t, func(rt *rapid.T) {
		s := NewState(NewChain(), testLimits)
		drawBlock := func(label string) ([]Mint, []Serial) {
			var mints []Mint
			n := rapid.IntRange(0, 6).Draw(rt, label+" mints")
			for i := 0; i < n; i++ {
				d := rapid.SampledFrom(denoms).Draw(rt, label+" denomination")
				mints = append(mints, randomCoin(d))
			}
			var serials []Serial
			for i := rapid.IntRange(0, 2).Draw(rt, label+" spends"); i > 0; i-- {
				serials = append(serials, randomSerial())
			}
			return mints, serials
		}

		history := rapid.IntRange(0, 5).Draw(rt, "history")
		for h := 0; h < history; h++ {
			mints, serials := drawBlock(fmt.Sprintf("block %d", h))
			connect(rt, s, mints, serials)
		}
		before := snap(s)

		mints, serials := drawBlock("target")
		b := connect(rt, s, mints, serials)
		after := snap(s)
		minted, spent := copySlots(b)

		require.NoError(rt, s.RemoveBlock(b))
		require.Equal(rt, before, snap(s))
		require.Empty(rt, b.MintedCoins)
		require.Empty(rt, b.SpentSerials)

		// The bulk path applies the same block identically.
		b.MintedCoins, b.SpentSerials = minted, spent
		s.AddBlock(b)
		require.Equal(rt, after, snap(s))
		require.NoError(rt, s.RemoveBlock(b))
		require.Equal(rt, before, snap(s))
	})
}

func TestGroupCapacity(t *testing.T) {
	pool := SigmaPool(sigma.Denom1)

	t.Run("rollover", func(t *testing.T) {
		s := NewState(NewChain(), testLimits)
		var ids []int
		for i := 0; i <= testLimits.SigmaCoinsPerGroup; i++ {
			b := connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)
			for k := range b.MintedCoins {
				ids = append(ids, k.ID)
			}
		}
		require.Equal(t, []int{1, 1, 1, 1, 2}, ids)

		g1, ok := s.GetCoinGroupInfo(pool, 1)
		require.True(t, ok)
		require.Equal(t, testLimits.SigmaCoinsPerGroup, g1.NCoins)
		g2, ok := s.GetCoinGroupInfo(pool, 2)
		require.True(t, ok)
		require.Equal(t, 1, g2.NCoins)
		require.Equal(t, 2, s.GetLatestCoinID(pool))

		// Other denominations keep their own groups.
		require.Equal(t, 0, s.GetLatestCoinID(SigmaPool(sigma.Denom10)))
	})

	t.Run("same block overflows", func(t *testing.T) {
		s := NewState(NewChain(), testLimits)
		three := func() []Mint {
			return []Mint{randomCoin(sigma.Denom1), randomCoin(sigma.Denom1), randomCoin(sigma.Denom1)}
		}
		connect(t, s, three(), nil)
		b := connect(t, s, three(), nil)
		require.Len(t, b.MintedCoins[GroupKey{Pool: pool, ID: 1}], 3)

		g1, _ := s.GetCoinGroupInfo(pool, 1)
		require.Equal(t, 6, g1.NCoins)
		require.Equal(t, 1, s.GetLatestCoinID(pool))

		b = connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)
		require.Len(t, b.MintedCoins[GroupKey{Pool: pool, ID: 2}], 1)
	})

	t.Run("rollback reopens", func(t *testing.T) {
		s := NewState(NewChain(), testLimits)
		for i := 0; i <= testLimits.SigmaCoinsPerGroup; i++ {
			connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)
		}
		disconnect(t, s)
		_, ok := s.GetCoinGroupInfo(pool, 2)
		require.False(t, ok)
		require.Equal(t, 1, s.GetLatestCoinID(pool))
	})
}

func TestRemoveBlockWalksBack(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	pool := SigmaPool(sigma.Denom1)
	key := GroupKey{Pool: pool, ID: 1}

	b1 := connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)
	connect(t, s, nil, []Serial{randomSerial()})
	b3 := connect(t, s, []Mint{randomCoin(sigma.Denom1), randomCoin(sigma.Denom1)}, nil)
	b4 := connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)

	g, _ := s.GetCoinGroupInfo(pool, 1)
	require.Equal(t, CoinGroupInfo{FirstBlock: b1.ID, LastBlock: b4.ID, NCoins: 4}, g)

	disconnect(t, s)
	g, _ = s.GetCoinGroupInfo(pool, 1)
	require.Equal(t, CoinGroupInfo{FirstBlock: b1.ID, LastBlock: b3.ID, NCoins: 3}, g)

	disconnect(t, s)
	g, _ = s.GetCoinGroupInfo(key.Pool, key.ID)
	require.Equal(t, CoinGroupInfo{FirstBlock: b1.ID, LastBlock: b1.ID, NCoins: 1}, g)

	disconnect(t, s)
	disconnect(t, s)
	_, ok := s.GetCoinGroupInfo(pool, 1)
	require.False(t, ok)
	require.Equal(t, 0, s.GetLatestCoinID(pool))
	require.Equal(t, snapshot{
		Groups: map[GroupKey]CoinGroupInfo{},
		Latest: map[Pool]int{},
		Minted: map[mintKey][]MintInfo{},
		Used:   map[Serial]struct{}{},
	}, snap(s))
}

func TestGetCoinSetForSpend(t *testing.T) {
	s := NewState(NewChain(), Limits{SigmaCoinsPerGroup: 10, SparkCoinsPerGroup: 10})
	pool := SigmaPool(sigma.Denom10)

	var all []Mint
	var blocks []*BlockIndex
	for h := 0; h < 3; h++ {
		mints := []Mint{randomCoin(sigma.Denom10), randomCoin(sigma.Denom10)}
		all = append(all, mints...)
		blocks = append(blocks, connect(t, s, mints, nil))
	}
	connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)

	n, hash, coins := s.GetCoinSetForSpend(blocks[1].Height, pool, 1)
	require.Equal(t, 4, n)
	require.Equal(t, blocks[1].Hash, hash)
	require.Equal(t, all[:4], coins)

	n, hash, coins = s.GetCoinSetForSpend(s.Chain().Height(), pool, 1)
	require.Equal(t, 6, n)
	require.Equal(t, blocks[2].Hash, hash)
	require.Equal(t, all, coins)

	n, _, coins = s.GetCoinSetForSpend(blocks[0].Height-1, pool, 1)
	require.Zero(t, n)
	require.Empty(t, coins)

	n, _, _ = s.GetCoinSetForSpend(100, pool, 2)
	require.Zero(t, n)

	// Only blocks that contributed to the group are valid citations.
	_, err := s.coinSetAt(GroupKey{Pool: pool, ID: 1}, blocks[0].Hash)
	require.NoError(t, err)
	_, err = s.coinSetAt(GroupKey{Pool: pool, ID: 1}, s.Chain().Tip().Hash)
	require.ErrorIs(t, err, ErrNoGroup)
}

func TestSpentSerials(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	serial := randomSerial()
	require.False(t, s.IsUsedCoinSerial(serial))

	connect(t, s, nil, []Serial{serial})
	require.True(t, s.IsUsedCoinSerial(serial))

	disconnect(t, s)
	require.False(t, s.IsUsedCoinSerial(serial))
}

// Duplicate public coins are recorded, not rejected.
func TestDuplicateMintRecorded(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	coin := randomCoin(sigma.Denom1)
	require.False(t, s.HasCoin(coin))
	h, id := s.GetMintedCoinHeightAndID(coin)
	require.Equal(t, int32(-1), h)
	require.Equal(t, -1, id)

	first := connect(t, s, []Mint{coin}, nil)
	connect(t, s, []Mint{coin}, nil)
	require.True(t, s.HasCoin(coin))
	require.Len(t, snap(s).Minted[coin.key()], 2)

	h, id = s.GetMintedCoinHeightAndID(coin)
	require.Equal(t, first.Height, h)
	require.Equal(t, 1, id)

	g, _ := s.GetCoinGroupInfo(coin.Pool, 1)
	require.Equal(t, 2, g.NCoins)

	disconnect(t, s)
	require.True(t, s.HasCoin(coin))
	require.Len(t, snap(s).Minted[coin.key()], 1)
}

func TestRemoveBlockInvariant(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	b1 := connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)
	connect(t, s, []Mint{randomCoin(sigma.Denom1)}, nil)

	// b1 is not the last contributor of its group.
	err := s.RemoveBlock(b1)
	require.ErrorIs(t, err, ErrStateCorrupted)
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	require.Equal(t, "RemoveBlock", inv.Op)
}

func TestBuildStateFromIndex(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	for h := 0; h < 6; h++ {
		connect(t, s, []Mint{randomCoin(sigma.Denom1), randomCoin(sigma.Denom0_1)},
			[]Serial{randomSerial()})
	}
	want := snap(s)

	require.True(t, s.AddSpendToMempool(randomSerial(), chainhash.Hash{1}))
	s.Reset()
	require.Equal(t, 0, s.MempoolSize())
	require.Empty(t, snap(s).Groups)

	s.BuildStateFromIndex()
	require.Equal(t, want, snap(s))
}
