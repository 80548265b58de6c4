// sigma.go - Sigma coin minting and spending against the ledger state.

package wallet

import (
	"errors"
	"fmt"

	"anoncoin/internal/ledger"
	"anoncoin/internal/script"
	"anoncoin/internal/sigma"
)

// ErrCoinNotFound is returned when spending a coin the state has not
// confirmed.
var ErrCoinNotFound = errors.New("wallet: coin not minted in the active chain")

// Sigma holds private Sigma coins.
type Sigma struct {
	ctx   *sigma.Context
	coins []*sigma.PrivateCoin
}

func NewSigma(ctx *sigma.Context) *Sigma {
	return &Sigma{ctx: ctx}
}

// Coins returns every coin the wallet created.
func (w *Sigma) Coins() []*sigma.PrivateCoin {
	return append([]*sigma.PrivateCoin(nil), w.coins...)
}

// Mint creates one coin per denomination and returns the minting
// transaction together with the new coins.
func (w *Sigma) Mint(denoms ...sigma.Denomination) (*ledger.Tx, []*sigma.PrivateCoin, error) {
	if len(denoms) == 0 {
		return nil, nil, errors.New("wallet: nothing to mint")
	}
	tx := &ledger.Tx{}
	var coins []*sigma.PrivateCoin
	for _, d := range denoms {
		c, err := w.ctx.NewPrivateCoin(d)
		if err != nil {
			return nil, nil, err
		}
		pub := c.PublicCoin()
		tx.Outputs = append(tx.Outputs, ledger.TxOut{
			Value:  int64(d),
			Script: script.NewSigmaMint(pub.Value),
		})
		coins = append(coins, c)
	}
	w.coins = append(w.coins, coins...)
	return tx, coins, nil
}

// Spend builds a transaction spending coins into outputs. Each coin proves
// membership in the current anonymity set of its group, and signs the
// transaction with its spend scripts cleared.
func (w *Sigma) Spend(state *ledger.State, coins []*sigma.PrivateCoin,
	outputs []ledger.TxOut) (*ledger.Tx, error) {

	type cited struct {
		set  []sigma.PublicCoin
		meta sigma.SpendMetaData
	}

	tip := state.Chain().Height()
	tx := &ledger.Tx{Outputs: outputs}
	refs := make([]cited, len(coins))
	for i, c := range coins {
		pub := c.PublicCoin()
		_, id := state.GetMintedCoinHeightAndID(ledger.SigmaMint(pub))
		if id < 0 {
			return nil, fmt.Errorf("%w: %v coin %d", ErrCoinNotFound, pub.Denomination, i)
		}
		n, hash, mints := state.GetCoinSetForSpend(tip, ledger.SigmaPool(pub.Denomination), id)
		if n == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", ErrCoinNotFound, id)
		}
		set := make([]sigma.PublicCoin, len(mints))
		for j, m := range mints {
			set[j] = m.Sigma
		}
		refs[i] = cited{set: set}
		refs[i].meta.GroupID = uint32(id)
		refs[i].meta.BlockHash = hash

		tx.Inputs = append(tx.Inputs, ledger.TxIn{
			PrevIndex: uint32(id),
			Script:    []byte{byte(script.SigmaSpend)},
		})
	}

	metaHash := tx.MetadataHash()
	for i, c := range coins {
		refs[i].meta.TxHash = metaHash
		spend, err := w.ctx.NewCoinSpend(c, refs[i].set, &refs[i].meta)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tx.Inputs[i].Script = script.New(script.SigmaSpend, spend.Bytes())
	}
	return tx, nil
}
