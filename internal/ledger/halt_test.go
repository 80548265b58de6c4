package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anoncoin/internal/group"
	"anoncoin/internal/script"
	"anoncoin/internal/sigma"
)

func TestValidatorHaltsOnBrokenInvariant(t *testing.T) {
	p, err := sigma.NewParams(2, 4)
	require.NoError(t, err)
	s := NewState(NewChain(), testLimits)
	v, err := NewValidator(s, Config{
		Sigma:  sigma.NewContext(p),
		Spark:  sparkTestParams,
		Limits: testLimits,
	})
	require.NoError(t, err)

	coin := group.Generator().Mul(group.RandomNonZeroScalar())
	mint := &Tx{Outputs: []TxOut{{Value: int64(sigma.Denom1), Script: script.NewSigmaMint(coin)}}}
	b, err := v.ConnectBlock(&Block{Txs: []*Tx{mint}})
	require.NoError(t, err)
	require.Len(t, b.MintedCoins, 1)

	s.coinGroups[GroupKey{Pool: SigmaPool(sigma.Denom1), ID: 1}].NCoins = 0

	_, err = v.DisconnectBlock()
	require.ErrorIs(t, err, ErrStateCorrupted)
	require.True(t, v.Halted())

	_, err = v.ConnectBlock(&Block{Parent: b.Hash})
	require.ErrorIs(t, err, ErrStateCorrupted)
	_, err = v.AcceptToMempool(mint)
	require.ErrorIs(t, err, ErrStateCorrupted)
}
