package ledger

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestMempoolReservations(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	a, b := randomSerial(), randomSerial()
	tx1, tx2 := chainhash.Hash{1}, chainhash.Hash{2}

	require.True(t, s.CanAddSpendToMempool(a))
	require.True(t, s.AddSpendToMempool(a, tx1))
	require.False(t, s.CanAddSpendToMempool(a))
	require.False(t, s.AddSpendToMempool(a, tx2))
	require.Equal(t, tx1, s.GetMempoolConflictingTxHash(a))
	require.Equal(t, chainhash.Hash{}, s.GetMempoolConflictingTxHash(b))

	s.RemoveSpendFromMempool(a)
	require.True(t, s.CanAddSpendToMempool(a))
	require.Equal(t, 0, s.MempoolSize())

	t.Run("confirmed serial", func(t *testing.T) {
		connect(t, s, nil, []Serial{b})
		require.False(t, s.CanAddSpendToMempool(b))
		require.False(t, s.AddSpendToMempool(b, tx2))
	})
}

func TestAddSpendsToMempoolAtomic(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	a, b, c := randomSerial(), randomSerial(), randomSerial()
	tx1, tx2 := chainhash.Hash{1}, chainhash.Hash{2}

	require.True(t, s.AddSpendToMempool(b, tx1))
	require.False(t, s.AddSpendsToMempool([]Serial{a, b, c}, tx2))
	require.True(t, s.CanAddSpendToMempool(a))
	require.True(t, s.CanAddSpendToMempool(c))
	require.Equal(t, 1, s.MempoolSize())

	// A transaction may not reserve the same serial twice.
	require.False(t, s.AddSpendsToMempool([]Serial{a, a}, tx2))
	require.Equal(t, 1, s.MempoolSize())

	require.True(t, s.AddSpendsToMempool([]Serial{a, c}, tx2))
	require.Equal(t, 3, s.MempoolSize())
}

func TestEvictConfirmed(t *testing.T) {
	s := NewState(NewChain(), testLimits)
	a, b, c := randomSerial(), randomSerial(), randomSerial()
	tx1, tx2 := chainhash.Hash{1}, chainhash.Hash{2}
	require.True(t, s.AddSpendsToMempool([]Serial{a, b}, tx1))
	require.True(t, s.AddSpendToMempool(c, tx2))

	require.Nil(t, s.evictConfirmed([]Serial{randomSerial()}))

	// Confirming one serial of tx1 drops all of its reservations.
	evicted := s.evictConfirmed([]Serial{a})
	require.Equal(t, []chainhash.Hash{tx1}, evicted)
	require.True(t, s.CanAddSpendToMempool(b))
	require.Equal(t, tx2, s.GetMempoolConflictingTxHash(c))
	require.Equal(t, 1, s.MempoolSize())
}
