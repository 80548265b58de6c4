// spark.go - Spark keys, coin discovery and spend construction.

package wallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"anoncoin/internal/group"
	"anoncoin/internal/ledger"
	"anoncoin/internal/script"
	"anoncoin/internal/spark"
)

// ErrMintValue is returned when a mint's total does not fit a transaction
// output.
var ErrMintValue = errors.New("wallet: mint value out of range")

// OwnedCoin is a Spark coin the wallet can spend.
type OwnedCoin struct {
	Coin    *spark.Coin
	GroupID int
	Data    *spark.IdentifiedCoinData
	Rec     *spark.RecoveredCoinData
}

// Spark derives its keys from a seed and tracks the coins they own.
type Spark struct {
	Name string

	params *spark.Params
	seed   [32]byte
	sk     *spark.SpendKey
	fvk    *spark.FullViewKey
	ivk    *spark.IncomingViewKey

	owned map[string]*OwnedCoin
}

// NewSpark derives the wallet keys from seed.
func NewSpark(params *spark.Params, name string, seed [32]byte) *Spark {
	sk := spark.DeriveSpendKey(params, seed)
	fvk := spark.NewFullViewKey(sk)
	return &Spark{
		Name:   name,
		params: params,
		seed:   seed,
		sk:     sk,
		fvk:    fvk,
		ivk:    spark.NewIncomingViewKey(fvk),
		owned:  make(map[string]*OwnedCoin),
	}
}

func (w *Spark) IncomingViewKey() *spark.IncomingViewKey { return w.ivk }

func (w *Spark) FullViewKey() *spark.FullViewKey { return w.fvk }

// Address returns the address with diversifier index i.
func (w *Spark) Address(i uint64) *spark.Address {
	return spark.NewAddress(w.ivk, i)
}

// Mint builds a transaction minting outputs.
func (w *Spark) Mint(outputs []spark.MintedCoinData) (*ledger.Tx, error) {
	ctx := group.RandomScalar().Bytes()
	mtx, err := spark.NewMintTransaction(w.params, outputs, ctx[:])
	if err != nil {
		return nil, err
	}
	value, err := mtx.Value()
	if err != nil {
		return nil, err
	}
	if value > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrMintValue, value)
	}
	return &ledger.Tx{Outputs: []ledger.TxOut{{
		Value:  int64(value),
		Script: script.New(script.SparkMint, mtx.Bytes()),
	}}}, nil
}

// Scan identifies the wallet's coins in every Spark group of state and
// returns how many new coins it found.
func (w *Spark) Scan(state *ledger.State) int {
	tip := state.Chain().Height()
	found := 0
	for id := 1; id <= state.GetLatestCoinID(ledger.SparkPool); id++ {
		_, _, mints := state.GetCoinSetForSpend(tip, ledger.SparkPool, id)
		for _, m := range mints {
			key := string(m.Bytes())
			if _, ok := w.owned[key]; ok {
				continue
			}
			data, err := m.Spark.Identify(w.ivk)
			if err != nil {
				continue
			}
			rec, err := m.Spark.Recover(w.fvk, data)
			if err != nil {
				continue
			}
			w.owned[key] = &OwnedCoin{Coin: m.Spark, GroupID: id, Data: data, Rec: rec}
			found++
		}
	}
	return found
}

// Unspent returns owned coins whose linking tags the state has not seen.
func (w *Spark) Unspent(state *ledger.State) []*OwnedCoin {
	var out []*OwnedCoin
	for _, c := range w.owned {
		if !state.IsUsedCoinSerial(ledger.SparkSerial(c.Rec.T)) {
			out = append(out, c)
		}
	}
	return out
}

// Spend builds a transaction spending coins into outputs and paying fee.
// Each input cites the current set of its group.
func (w *Spark) Spend(state *ledger.State, coins []*OwnedCoin, fee uint64,
	outputs []spark.OutputCoinData) (*ledger.Tx, error) {

	tip := state.Chain().Height()
	inputs := make([]spark.InputCoinData, 0, len(coins))
	for i, c := range coins {
		n, hash, mints := state.GetCoinSetForSpend(tip, ledger.SparkPool, c.GroupID)
		if n == 0 {
			return nil, fmt.Errorf("%w: spark group %d", ErrCoinNotFound, c.GroupID)
		}
		set := make([]*spark.Coin, len(mints))
		index := -1
		want := c.Coin.Bytes()
		for j, m := range mints {
			set[j] = m.Spark
			if index < 0 && string(m.Bytes()) == string(want) {
				index = j
			}
		}
		if index < 0 {
			return nil, fmt.Errorf("%w: input %d", ErrCoinNotFound, i)
		}
		inputs = append(inputs, spark.InputCoinData{
			CoverSetID:             uint64(c.GroupID),
			CoverSet:               set,
			CoverSetRepresentation: hash[:],
			Index:                  index,
			S:                      c.Rec.S,
			T:                      c.Rec.T,
			V:                      c.Data.V,
			K:                      c.Data.K,
		})
	}

	stx, err := spark.NewSpendTransaction(w.params, w.fvk, w.sk, inputs, fee, outputs)
	if err != nil {
		return nil, err
	}
	return &ledger.Tx{Inputs: []ledger.TxIn{{
		Script: script.New(script.SparkSpend, stx.Bytes()),
	}}}, nil
}

// sparkFile is the on-disk form of a Spark wallet. Coins are rediscovered
// with Scan.
type sparkFile struct {
	Name string `json:"name"`
	Seed string `json:"seed"`
}

// Save writes the wallet seed to path.
func (w *Spark) Save(path string) error {
	b, err := json.MarshalIndent(sparkFile{
		Name: w.Name,
		Seed: hex.EncodeToString(w.seed[:]),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}

// LoadSpark reads a wallet written by Save.
func LoadSpark(params *spark.Params, path string) (*Spark, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f sparkFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", path, err)
	}
	raw, err := hex.DecodeString(f.Seed)
	if err != nil || len(raw) != 32 {
		return nil, errors.New("wallet: seed must be 32 hex-encoded bytes")
	}
	var seed [32]byte
	copy(seed[:], raw)
	return NewSpark(params, f.Name, seed), nil
}
