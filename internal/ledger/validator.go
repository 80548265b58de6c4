// validator.go - Transaction and block validation against the anonymity-set
// state, block connection and mempool admission.

package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	"anoncoin/internal/events"
	"anoncoin/internal/script"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
)

// Config wires a Validator to its collaborators.
type Config struct {
	Sigma  *sigma.Context
	Spark  *spark.Params
	Limits Limits

	// Bus receives state notifications. Optional.
	Bus *events.Bus

	// Persister records connected blocks. Optional.
	Persister *Persister

	// Workers bounds parallel proof verification. Zero means one per CPU.
	Workers int
}

// Validator runs the three coarse phases that touch the state: block
// connection, block disconnection and mempool admission. Each phase holds
// the state lock for its whole duration.
type Validator struct {
	state   *State
	chain   *Chain
	sigma   *sigma.Context
	spark   *spark.Params
	limits  Limits
	bus     *events.Bus
	store   *Persister
	workers int

	halted atomic.Bool
}

func NewValidator(state *State, cfg Config) (*Validator, error) {
	if cfg.Sigma == nil || cfg.Spark == nil {
		return nil, errors.New("ledger: sigma and spark parameters are required")
	}
	err := cfg.Limits.Validate(cfg.Sigma.Params().MaxSetSize(), cfg.Spark.CoverSetSize())
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Validator{
		state:   state,
		chain:   state.Chain(),
		sigma:   cfg.Sigma,
		spark:   cfg.Spark,
		limits:  cfg.Limits,
		bus:     cfg.Bus,
		store:   cfg.Persister,
		workers: workers,
	}, nil
}

func (v *Validator) State() *State { return v.state }

func (v *Validator) Chain() *Chain { return v.chain }

// Halted reports whether a broken invariant stopped the validator.
func (v *Validator) Halted() bool { return v.halted.Load() }

func (v *Validator) halt(err error) error {
	v.halted.Store(true)
	log.Criticalf("Halting after state invariant failure: %v", err)
	return err
}

type sigmaInput struct {
	spend   *sigma.CoinSpend
	groupID uint32
}

// txInfo is a transaction after stateless parsing.
type txInfo struct {
	hash       chainhash.Hash
	metaHash   chainhash.Hash
	mints      []Mint
	sigma      []sigmaInput
	spark      *spark.SpendTransaction
	serials    []Serial
	inputs     int
	spendValue int64
}

func (t *txInfo) isSpend() bool { return len(t.serials) > 0 }

// CheckMint parses a mint output. A coin that is already minted is logged
// and accepted.
func (v *Validator) CheckMint(out TxOut) ([]Mint, error) {
	mints, err := v.parseMint(out)
	if err != nil {
		return nil, err
	}
	for _, m := range mints {
		if v.state.HasCoin(m) {
			log.Warnf("Double mint of %v coin %x", m.Pool, m.Bytes())
		}
	}
	return mints, nil
}

func (v *Validator) parseMint(out TxOut) ([]Mint, error) {
	m, err := script.Classify(out.Script)
	if err != nil {
		return nil, nil
	}
	switch m {
	case script.SigmaMint:
		d, err := sigma.DenominationFromValue(out.Value)
		if err != nil {
			return nil, reject(RejectMalformed, "unknown mint denomination", err)
		}
		p, err := script.ParseSigmaMint(out.Script)
		if err != nil {
			return nil, reject(RejectMalformed, "public coin validation failed", err)
		}
		return []Mint{SigmaMint(sigma.PublicCoin{Denomination: d, Value: p})}, nil

	case script.SparkMint:
		payload, err := script.Payload(script.SparkMint, out.Script)
		if err != nil {
			return nil, reject(RejectMalformed, "spark mint script", err)
		}
		mtx, err := spark.MintTransactionFromBytes(payload)
		if err != nil {
			return nil, reject(RejectMalformed, "spark mint encoding", err)
		}
		if err := mtx.Verify(v.spark); err != nil {
			return nil, reject(RejectInvalid, "spark mint verification failed", err)
		}
		value, err := mtx.Value()
		if err != nil || value > math.MaxInt64 || int64(value) != out.Value {
			return nil, reject(RejectMalformed, "spark mint value does not match output", err)
		}
		mints := make([]Mint, len(mtx.Coins))
		for i, c := range mtx.Coins {
			mints[i] = SparkMint(c)
		}
		return mints, nil
	}
	return nil, nil
}

// parseTx performs every check that needs no state.
func (v *Validator) parseTx(tx *Tx) (*txInfo, error) {
	info := &txInfo{hash: tx.Hash(), metaHash: tx.MetadataHash()}

	var spends, others int
	for _, in := range tx.Inputs {
		if script.IsSpend(in.Script) {
			spends++
		} else {
			others++
		}
	}
	if spends > 0 && others > 0 {
		return nil, reject(RejectMalformed, "can't mix anonymous spend inputs with regular ones", nil)
	}

	for i, in := range tx.Inputs {
		m, err := script.Classify(in.Script)
		if err != nil {
			continue
		}
		switch m {
		case script.SigmaSpend:
			if info.spark != nil {
				return nil, reject(RejectMalformed, "can't mix sigma and spark spends", nil)
			}
			if err := script.CheckGroupID(in.PrevIndex); err != nil {
				return nil, reject(RejectMalformed, "invalid spend transaction", err)
			}
			payload, err := script.Payload(script.SigmaSpend, in.Script)
			if err != nil {
				return nil, reject(RejectMalformed, "invalid spend transaction", err)
			}
			spend, err := sigma.CoinSpendFromBytes(payload)
			if err != nil {
				return nil, reject(RejectMalformed, "invalid spend transaction", err)
			}
			if !spend.Denomination.Valid() {
				return nil, reject(RejectMalformed, "unknown spend denomination", sigma.ErrDenomination)
			}
			info.sigma = append(info.sigma, sigmaInput{spend: spend, groupID: in.PrevIndex})
			info.serials = append(info.serials, SigmaSerial(spend.Serial))
			info.inputs++
			info.spendValue += int64(spend.Denomination)

		case script.SparkSpend:
			if info.spark != nil || len(info.sigma) > 0 {
				return nil, reject(RejectMalformed, fmt.Sprintf("input %d: one spark spend per transaction", i), nil)
			}
			payload, err := script.Payload(script.SparkSpend, in.Script)
			if err != nil {
				return nil, reject(RejectMalformed, "invalid spend transaction", err)
			}
			stx, err := spark.SpendTransactionFromBytes(payload)
			if err != nil {
				return nil, reject(RejectMalformed, "invalid spend transaction", err)
			}
			for u, id := range stx.CoverSetIDs {
				if id > math.MaxUint32 || script.CheckGroupID(uint32(id)) != nil {
					return nil, reject(RejectMalformed, "invalid spend transaction",
						fmt.Errorf("%w: cover set %d", script.ErrGroupID, id))
				}
				if len(stx.CoverSetRepresentations[u]) != chainhash.HashSize {
					return nil, reject(RejectMalformed, "invalid cover set representation", nil)
				}
			}
			info.spark = stx
			for _, t := range stx.T {
				info.serials = append(info.serials, SparkSerial(t))
			}
			for _, c := range stx.Outputs {
				info.mints = append(info.mints, SparkMint(c))
			}
			info.inputs += stx.Inputs()
		}
	}

	seen := make(map[Serial]struct{}, len(info.serials))
	for _, serial := range info.serials {
		if _, dup := seen[serial]; dup {
			return nil, reject(RejectDoubleSpend,
				"two or more spends with same serial in the same transaction", ErrDoubleSpend)
		}
		seen[serial] = struct{}{}
	}

	for _, out := range tx.Outputs {
		mints, err := v.parseMint(out)
		if err != nil {
			return nil, err
		}
		info.mints = append(info.mints, mints...)
	}
	return info, nil
}

// checkSigmaSpend verifies one Sigma input against the anonymity set its
// accumulator block hash selects. Called with the state lock held.
func (v *Validator) checkSigmaSpend(info *txInfo, in sigmaInput) error {
	key := GroupKey{Pool: SigmaPool(in.spend.Denomination), ID: int(in.groupID)}
	set, err := v.state.coinSetAt(key, in.spend.AccumulatorBlockHash)
	if err != nil {
		return reject(RejectInvalid, "no coins were minted with such parameters", err)
	}
	coins := make([]sigma.PublicCoin, len(set))
	for i, m := range set {
		coins[i] = m.Sigma
	}
	meta := &sigma.SpendMetaData{
		GroupID:   in.groupID,
		BlockHash: in.spend.AccumulatorBlockHash,
		TxHash:    info.metaHash,
	}
	if err := v.sigma.Verify(in.spend, coins, meta); err != nil {
		log.Warnf("Sigma spend verification failed in tx %v: %v", info.hash, err)
		return reject(RejectInvalid, "sigma spend verification failed", err)
	}
	return nil
}

// checkSparkSpends verifies Spark transactions in one batch. Called with
// the state lock held.
func (v *Validator) checkSparkSpends(infos []*txInfo) error {
	coverSets := make(map[uint64][]*spark.Coin)
	txs := make([]*spark.SpendTransaction, len(infos))
	for i, info := range infos {
		stx := info.spark
		txs[i] = stx
		for u, id := range stx.CoverSetIDs {
			key := GroupKey{Pool: SparkPool, ID: int(id)}
			var hash chainhash.Hash
			copy(hash[:], stx.CoverSetRepresentations[u])
			set, err := v.state.coinSetAt(key, hash)
			if err != nil {
				return reject(RejectInvalid, "no coins were minted with such parameters", err)
			}
			if uint64(len(set)) != stx.CoverSetSizes[u] {
				return reject(RejectInvalid, fmt.Sprintf("cover set %d has %d coins at %v, spend claims %d",
					id, len(set), hash, stx.CoverSetSizes[u]), ErrNoGroup)
			}
			if _, ok := coverSets[id]; !ok {
				_, _, full := v.state.coinSetForSpend(math.MaxInt32, key)
				coins := make([]*spark.Coin, len(full))
				for j, m := range full {
					coins[j] = m.Spark
				}
				coverSets[id] = coins
			}
		}
	}

	if err := spark.VerifySpends(v.spark, txs, coverSets); err != nil {
		log.Warnf("Spark spend batch of %d failed: %v", len(txs), err)
		if errors.Is(err, spark.ErrBadSemantics) {
			return reject(RejectMalformed, "bad spark transaction semantics", err)
		}
		return reject(RejectInvalid, "spark spend verification failed", err)
	}
	return nil
}

// verify runs every stateful check of infos. Proofs are verified in
// parallel; the state is only read. Called with the state lock held.
func (v *Validator) verify(infos []*txInfo) error {
	for _, info := range infos {
		for _, serial := range info.serials {
			if _, used := v.state.usedSerials[serial]; used {
				return reject(RejectDoubleSpend, "the coin spend serial has been used", ErrDoubleSpend)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(v.workers)

	var sparkTxs []*txInfo
	for _, info := range infos {
		info := info
		for _, in := range info.sigma {
			in := in
			g.Go(func() error { return v.checkSigmaSpend(info, in) })
		}
		if info.spark != nil {
			sparkTxs = append(sparkTxs, info)
		}
	}
	if len(sparkTxs) > 0 {
		g.Go(func() error { return v.checkSparkSpends(sparkTxs) })
	}
	return g.Wait()
}

// CheckTransaction runs all stateless and stateful checks of tx without
// changing any state.
func (v *Validator) CheckTransaction(tx *Tx) error {
	info, err := v.parseTx(tx)
	if err != nil {
		return err
	}
	if err := v.checkTxLimits(info); err != nil {
		return err
	}
	v.state.mu.RLock()
	defer v.state.mu.RUnlock()
	v.logDuplicateMints([]*txInfo{info})
	return v.verify([]*txInfo{info})
}

func (v *Validator) checkTxLimits(info *txInfo) error {
	if info.inputs > v.limits.MaxSpendInputsPerBlock {
		return reject(RejectPolicy, fmt.Sprintf("%d spend inputs exceed the limit of %d",
			info.inputs, v.limits.MaxSpendInputsPerBlock), nil)
	}
	if info.spendValue > v.limits.MaxSpendValuePerBlock {
		return reject(RejectPolicy, fmt.Sprintf("spend value %d exceeds the limit of %d",
			info.spendValue, v.limits.MaxSpendValuePerBlock), nil)
	}
	return v.checkMintCounts([]*txInfo{info})
}

// checkMintCounts caps the coins infos add to each pool, so that no group
// outgrows the set size its proofs can cover.
func (v *Validator) checkMintCounts(infos []*txInfo) error {
	counts := make(map[Pool]int)
	for _, info := range infos {
		for _, m := range info.mints {
			counts[m.Pool]++
			if counts[m.Pool] > v.limits.MaxMintsPerBlock {
				return reject(RejectPolicy, fmt.Sprintf("more than %d %v mints",
					v.limits.MaxMintsPerBlock, m.Pool), nil)
			}
		}
	}
	return nil
}

// CheckBlock parses every transaction of blk and enforces the per-block
// spend and mint caps and serial uniqueness.
func (v *Validator) CheckBlock(blk *Block) error {
	_, err := v.checkBlock(blk)
	return err
}

func (v *Validator) checkBlock(blk *Block) ([]*txInfo, error) {
	infos := make([]*txInfo, 0, len(blk.Txs))
	var inputs int
	var value int64
	seen := make(map[Serial]struct{})
	for _, tx := range blk.Txs {
		info, err := v.parseTx(tx)
		if err != nil {
			return nil, err
		}
		for _, serial := range info.serials {
			if _, dup := seen[serial]; dup {
				return nil, reject(RejectDoubleSpend,
					"two or more spends with same serial in the same block", ErrDoubleSpend)
			}
			seen[serial] = struct{}{}
		}
		inputs += info.inputs
		value += info.spendValue
		infos = append(infos, info)
	}
	if inputs > v.limits.MaxSpendInputsPerBlock || value > v.limits.MaxSpendValuePerBlock {
		return nil, reject(RejectPolicy, fmt.Sprintf("block spends %d inputs worth %d", inputs, value), nil)
	}
	if err := v.checkMintCounts(infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// logDuplicateMints reports coins minted twice. Duplicates are accepted.
// Called with the state lock held.
func (v *Validator) logDuplicateMints(infos []*txInfo) int {
	dups := 0
	seen := make(map[mintKey]struct{})
	for _, info := range infos {
		for _, m := range info.mints {
			k := m.key()
			_, inBlock := seen[k]
			if inBlock || v.state.hasCoin(m) {
				log.Warnf("Double mint of %v coin in tx %v", m.Pool, info.hash)
				dups++
			}
			seen[k] = struct{}{}
		}
	}
	return dups
}

// ConnectBlock validates blk and applies it on top of the tip. Nothing is
// applied unless every check passes.
func (v *Validator) ConnectBlock(blk *Block) (*BlockIndex, error) {
	if v.Halted() {
		return nil, ErrStateCorrupted
	}
	infos, err := v.checkBlock(blk)
	if err != nil {
		v.publishReject(err)
		return nil, err
	}

	index, evs, err := v.connectBlock(blk, infos)
	if err != nil {
		v.publishReject(err)
		return nil, err
	}
	for _, ev := range evs {
		v.bus.Publish(ev)
	}
	return index, nil
}

func (v *Validator) connectBlock(blk *Block, infos []*txInfo) (*BlockIndex, []events.Event, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if tip := v.chain.Tip(); tip != nil && tip.Hash != blk.Parent {
		return nil, nil, fmt.Errorf("%w: parent %v, tip %v", ErrNotTip, blk.Parent, tip.Hash)
	}
	v.logDuplicateMints(infos)
	if err := v.verify(infos); err != nil {
		return nil, nil, err
	}

	hash := blk.Hash()
	index, err := v.chain.Connect(hash, blk.Parent)
	if err != nil {
		return nil, nil, err
	}

	evs := []events.Event{{Kind: events.BlockConnected, Height: index.Height, BlockHash: hash}}

	var serials []Serial
	for _, info := range infos {
		for _, serial := range info.serials {
			s.usedSerials[serial] = struct{}{}
			serials = append(serials, serial)
			evs = append(evs, events.Event{
				Kind:      events.SpendAccepted,
				Height:    index.Height,
				BlockHash: hash,
				TxHash:    info.hash,
				Serial:    []byte(serial),
			})
		}
	}
	index.SpentSerials = serials

	// Mints enter their groups in a canonical order so that every node
	// assigns the same ids.
	var mints []Mint
	for _, info := range infos {
		mints = append(mints, info.mints...)
	}
	sortMints(mints)
	for _, m := range mints {
		id, err := s.addMint(index, m)
		if err != nil {
			return nil, nil, v.halt(err)
		}
		key := GroupKey{Pool: m.Pool, ID: id}
		index.MintedCoins[key] = append(index.MintedCoins[key], m)
		log.Debugf("Mint added pool=%v id=%d height=%d", m.Pool, id, index.Height)
		evs = append(evs, events.Event{
			Kind:         events.MintAdded,
			Height:       index.Height,
			BlockHash:    hash,
			Denomination: int64(m.Pool),
			GroupID:      id,
		})
	}

	if v.store != nil {
		if err := v.store.WriteBlock(index, blk.Parent); err != nil {
			if rerr := s.removeBlock(index); rerr != nil {
				return nil, nil, v.halt(rerr)
			}
			if _, derr := v.chain.Disconnect(); derr != nil {
				return nil, nil, v.halt(derr)
			}
			return nil, nil, fmt.Errorf("persist block %v: %w", hash, err)
		}
	}

	for _, txHash := range s.evictConfirmed(serials) {
		evs = append(evs, events.Event{Kind: events.MempoolRemoved, TxHash: txHash,
			Reason: "spent in block"})
	}
	log.Infof("Connected block %v with %d spends and %d mints", index, len(serials), len(mints))
	return index, evs, nil
}

func sortMints(mints []Mint) {
	keys := make([][]byte, len(mints))
	for i, m := range mints {
		keys[i] = m.Bytes()
	}
	idx := make([]int, len(mints))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := mints[idx[a]], mints[idx[b]]
		if ma.Pool != mb.Pool {
			return ma.Pool < mb.Pool
		}
		return bytes.Compare(keys[idx[a]], keys[idx[b]]) < 0
	})
	sorted := make([]Mint, len(mints))
	for i, j := range idx {
		sorted[i] = mints[j]
	}
	copy(mints, sorted)
}

// DisconnectBlock rolls the tip back. A failed rollback halts the
// validator.
func (v *Validator) DisconnectBlock() (*BlockIndex, error) {
	if v.Halted() {
		return nil, ErrStateCorrupted
	}
	s := v.state
	s.mu.Lock()
	tip := v.chain.Tip()
	if tip == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: empty chain", ErrUnknownBlock)
	}
	if v.store != nil {
		if err := v.store.DeleteBlock(tip); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("unpersist block %v: %w", tip.Hash, err)
		}
	}
	if err := s.removeBlock(tip); err != nil {
		s.mu.Unlock()
		return nil, v.halt(err)
	}
	if _, err := v.chain.Disconnect(); err != nil {
		s.mu.Unlock()
		return nil, v.halt(err)
	}
	s.mu.Unlock()

	log.Infof("Disconnected block %v", tip)
	v.bus.Publish(events.Event{Kind: events.BlockDisconnected, Height: tip.Height, BlockHash: tip.Hash})
	return tip, nil
}

// AcceptToMempool checks tx and reserves its serials. A serial that is
// spent or reserved by another transaction is rejected.
func (v *Validator) AcceptToMempool(tx *Tx) (chainhash.Hash, error) {
	if v.Halted() {
		return chainhash.Hash{}, ErrStateCorrupted
	}
	info, err := v.acceptToMempool(tx)
	if err != nil {
		v.publishReject(err)
		return chainhash.Hash{}, err
	}
	if info.isSpend() {
		v.bus.Publish(events.Event{Kind: events.MempoolAdded, TxHash: info.hash,
			Count: len(info.serials)})
	}
	return info.hash, nil
}

func (v *Validator) acceptToMempool(tx *Tx) (*txInfo, error) {
	info, err := v.parseTx(tx)
	if err != nil {
		return nil, err
	}
	if err := v.checkTxLimits(info); err != nil {
		return nil, err
	}

	s := v.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	v.logDuplicateMints([]*txInfo{info})
	if err := v.verify([]*txInfo{info}); err != nil {
		return nil, err
	}

	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()
	for _, serial := range info.serials {
		if holder, ok := s.mempoolSerials[serial]; ok && holder != info.hash {
			return nil, reject(RejectDoubleSpend,
				fmt.Sprintf("serial %v is reserved by tx %v", serial, holder), ErrDoubleSpend)
		}
	}
	for _, serial := range info.serials {
		s.mempoolSerials[serial] = info.hash
	}
	return info, nil
}

// RemoveFromMempool releases the serials tx reserved.
func (v *Validator) RemoveFromMempool(tx *Tx) error {
	info, err := v.parseTx(tx)
	if err != nil {
		return err
	}
	s := v.state
	s.mempoolMu.Lock()
	removed := 0
	for _, serial := range info.serials {
		if holder, ok := s.mempoolSerials[serial]; ok && holder == info.hash {
			delete(s.mempoolSerials, serial)
			removed++
		}
	}
	s.mempoolMu.Unlock()

	if removed > 0 {
		v.bus.Publish(events.Event{Kind: events.MempoolRemoved, TxHash: info.hash,
			Count: removed, Reason: "removed"})
	}
	return nil
}

func (v *Validator) publishReject(err error) {
	var re *RejectError
	if !errors.As(err, &re) {
		return
	}
	v.bus.Publish(events.Event{Kind: events.SpendRejected, Reason: re.Code.String()})
}
