package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
	"anoncoin/internal/store"
)

var sparkTestParams = spark.MustNewParams(spark.DefaultMemoBytes, 4, 2, 3)

func randomSparkMints(t *testing.T, n int) []Mint {
	t.Helper()
	sk := spark.NewSpendKey(sparkTestParams)
	addr := spark.NewAddress(spark.NewIncomingViewKey(spark.NewFullViewKey(sk)), 1)
	outputs := make([]spark.MintedCoinData, n)
	for i := range outputs {
		outputs[i] = spark.MintedCoinData{Address: addr, V: uint64(i + 1), Memo: []byte("persist")}
	}
	mtx, err := spark.NewMintTransaction(sparkTestParams, outputs, []byte("mint context"))
	require.NoError(t, err)
	mints := make([]Mint, n)
	for i, c := range mtx.Coins {
		mints[i] = SparkMint(c)
	}
	return mints
}

func kvBackends(t *testing.T) map[string]store.KV {
	t.Helper()
	b, err := store.NewBolt(filepath.Join(t.TempDir(), "ledger.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]store.KV{
		"bolt":   b,
		"memory": store.NewMemory(),
	}
}

func TestPersistRoundTrip(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			p := NewPersister(kv)
			s := NewState(NewChain(), testLimits)

			sparkMints := randomSparkMints(t, 2)
			sigmaCoin := randomCoin(sigma.Denom1)
			serial := randomSerial()

			var blocks []*BlockIndex
			write := func(mints []Mint, serials []Serial) {
				parent := s.Chain().Tip()
				b := connect(t, s, mints, serials)
				var ph chainhash.Hash
				if parent != nil {
					ph = parent.Hash
				}
				require.NoError(t, p.WriteBlock(b, ph))
				blocks = append(blocks, b)
			}
			write([]Mint{sigmaCoin, randomCoin(sigma.Denom10)}, nil)
			write(nil, nil)
			write(sparkMints, []Serial{serial})
			for i := 0; i < 3; i++ {
				write([]Mint{randomCoin(sigma.Denom1)}, nil)
			}
			want := snap(s)

			loaded := NewState(NewChain(), testLimits)
			require.NoError(t, p.Load(loaded))
			require.Equal(t, want, snap(loaded))
			require.Equal(t, s.Chain().Tip().Hash, loaded.Chain().Tip().Hash)

			// Spark coins keep the context their serial depends on.
			_, _, coins := loaded.GetCoinSetForSpend(loaded.Chain().Height(), SparkPool, 1)
			require.Len(t, coins, 2)
			for i, m := range coins {
				require.Equal(t, sparkMints[i].Bytes(), m.Bytes())
				require.Equal(t, sparkMints[i].Spark.SerialContext, m.Spark.SerialContext)
			}

			h, id, err := p.LookupCoin(sigmaCoin)
			require.NoError(t, err)
			require.Equal(t, blocks[0].Height, h)
			require.Equal(t, 1, id)

			h, hash, err := p.LookupSerial(serial)
			require.NoError(t, err)
			require.Equal(t, blocks[2].Height, h)
			require.Equal(t, blocks[2].Hash, hash)

			_, _, err = p.LookupCoin(randomCoin(sigma.Denom1))
			require.ErrorIs(t, err, store.ErrNotFound)

			t.Run("delete", func(t *testing.T) {
				tip := s.Chain().Tip()
				var coin Mint
				for _, coins := range tip.MintedCoins {
					coin = coins[0]
				}
				_, _, err := p.LookupCoin(coin)
				require.NoError(t, err)

				require.NoError(t, p.DeleteBlock(tip))
				_, _, err = p.LookupCoin(coin)
				require.ErrorIs(t, err, store.ErrNotFound)

				reloaded := NewState(NewChain(), testLimits)
				require.NoError(t, p.Load(reloaded))
				require.Equal(t, tip.Height-1, reloaded.Chain().Height())
			})

			require.Error(t, p.Load(loaded), "loading into a populated chain")
		})
	}
}
