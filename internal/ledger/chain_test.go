package ledger

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	c := NewChain()
	require.Nil(t, c.Tip())
	require.Nil(t, c.Genesis())
	require.Equal(t, int32(-1), c.Height())

	h0, h1, h2 := chainhash.Hash{10}, chainhash.Hash{11}, chainhash.Hash{12}
	g, err := c.Connect(h0, chainhash.Hash{0xff})
	require.NoError(t, err)
	require.Equal(t, int32(0), g.Height)
	require.Equal(t, NoBlock, g.Parent)
	require.Nil(t, c.Parent(g))

	b1, err := c.Connect(h1, h0)
	require.NoError(t, err)
	require.Equal(t, g, c.Parent(b1))
	require.Equal(t, b1, c.Next(g))
	require.Nil(t, c.Next(b1))

	_, err = c.Connect(h2, h0)
	require.ErrorIs(t, err, ErrNotTip)

	t.Run("reconnect reuses the record", func(t *testing.T) {
		tip, err := c.Disconnect()
		require.NoError(t, err)
		require.Equal(t, b1, tip)
		require.False(t, c.Contains(b1))
		require.Equal(t, b1, c.ByHash(h1))
		require.Nil(t, c.Next(g))

		again, err := c.Connect(h1, h0)
		require.NoError(t, err)
		require.Same(t, b1, again)
		require.True(t, c.Contains(b1))
	})

	t.Run("side branch", func(t *testing.T) {
		_, err := c.Disconnect()
		require.NoError(t, err)
		b2, err := c.Connect(h2, h0)
		require.NoError(t, err)
		require.Equal(t, int32(1), b2.Height)
		require.NotEqual(t, b1.ID, b2.ID)
		require.Equal(t, b2, c.AtHeight(1))
		require.False(t, c.Contains(b1))

		// A block indexed on another branch cannot be connected here.
		_, err = c.Connect(h1, h2)
		require.Error(t, err)
	})

	_, err = c.Connect(chainhash.Hash{13}, chainhash.Hash{})
	require.ErrorIs(t, err, ErrNotTip)
	require.Nil(t, c.Block(99))
	require.Nil(t, c.AtHeight(5))

	c2 := NewChain()
	_, err = c2.Disconnect()
	require.ErrorIs(t, err, ErrUnknownBlock)
}
