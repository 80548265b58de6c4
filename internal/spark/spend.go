// spend.go - Spend transactions: building and batch verification.

package spark

import (
	"errors"
	"fmt"
	"sort"

	"anoncoin/internal/bpplus"
	"anoncoin/internal/group"
	"anoncoin/internal/grootle"
)

// InputCoinData describes one coin being spent.
type InputCoinData struct {
	// CoverSetID names the anonymity set; proofs that share an id are
	// batched against the same set.
	CoverSetID uint64

	// CoverSet is the prefix of the anonymity set the proof is built over.
	CoverSet []*Coin

	// CoverSetRepresentation identifies CoverSet to verifiers, such as the
	// hash of the accumulator block it was read at.
	CoverSetRepresentation []byte

	// Index locates the spent coin inside CoverSet.
	Index int

	// S and T come from Coin.Recover; V and K from Coin.Identify.
	S group.Scalar
	T group.Point
	V uint64
	K group.Scalar
}

// OutputCoinData describes one coin being created.
type OutputCoinData struct {
	Address *Address
	V       uint64
	Memo    []byte
}

// SpendTransaction consumes w coins and creates t new ones.
type SpendTransaction struct {
	CoverSetIDs             []uint64
	CoverSetSizes           []uint64
	CoverSetRepresentations [][]byte

	S1, C1, T []group.Point
	Grootle   []*grootle.Proof

	Outputs []*Coin
	Fee     uint64

	Balance SchnorrProof
	Range   *bpplus.Proof
	Chaum   ChaumProof
}

// serialContext is the context of every output coin: the serialized
// linking tags in transaction order.
func serialContext(t []group.Point) []byte {
	var e group.Encoder
	e.PutPoints(t)
	return e.Bytes()
}

// NewSpendTransaction builds and proves a spend of inputs into outputs
// paying fee. Input values must equal output values plus fee.
func NewSpendTransaction(params *Params, fvk *FullViewKey, sk *SpendKey,
	inputs []InputCoinData, fee uint64, outputs []OutputCoinData) (*SpendTransaction, error) {

	w, t := len(inputs), len(outputs)
	if w == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrBadSemantics)
	}
	if t == 0 || t > params.MaxOutputs() {
		return nil, fmt.Errorf("%w: %d outputs, limit %d", ErrBadSemantics, t, params.MaxOutputs())
	}

	var inSum, outSum uint64
	for _, in := range inputs {
		if inSum+in.V < inSum {
			return nil, fmt.Errorf("%w: input value overflow", ErrBadSemantics)
		}
		inSum += in.V
	}
	for _, out := range outputs {
		if outSum+out.V < outSum {
			return nil, fmt.Errorf("%w: output value overflow", ErrBadSemantics)
		}
		outSum += out.V
	}
	if outSum+fee < outSum || inSum != outSum+fee {
		return nil, fmt.Errorf("%w: inputs %d != outputs %d + fee %d",
			ErrBadSemantics, inSum, outSum, fee)
	}

	tx := &SpendTransaction{Fee: fee}
	chaumX := make([]group.Scalar, 0, w)
	chaumY := make([]group.Scalar, 0, w)
	chaumZ := make([]group.Scalar, 0, w)
	var balanceWitness group.Scalar

	for u, in := range inputs {
		size := len(in.CoverSet)
		if size == 0 || size > params.CoverSetSize() {
			return nil, fmt.Errorf("%w: input %d cover set of %d, limit %d",
				ErrBadSemantics, u, size, params.CoverSetSize())
		}
		if in.Index < 0 || in.Index >= size {
			return nil, fmt.Errorf("%w: input %d index %d outside cover set",
				ErrBadSemantics, u, in.Index)
		}

		ser1 := hashSer1(in.S, fvk.D)
		val1 := hashVal1(in.S, fvk.D)
		s1 := params.F.Mul(in.S).Sub(params.H.Mul(ser1)).Add(fvk.D)
		c1 := params.G.Mul(group.ScalarFromUint64(in.V)).Add(params.H.Mul(val1))

		sSet := make([]group.Point, size)
		cSet := make([]group.Point, size)
		for i, c := range in.CoverSet {
			sSet[i] = c.S
			cSet[i] = c.C
		}

		proof, err := params.grootle.Prove(in.Index,
			[]group.Scalar{ser1, hashVal(in.K).Sub(val1)},
			[][]group.Point{sSet, cSet},
			[]group.Point{s1, c1},
			in.CoverSetRepresentation)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", ErrBadSemantics, u, err)
		}

		tx.CoverSetIDs = append(tx.CoverSetIDs, in.CoverSetID)
		tx.CoverSetSizes = append(tx.CoverSetSizes, uint64(size))
		tx.CoverSetRepresentations = append(tx.CoverSetRepresentations,
			append([]byte(nil), in.CoverSetRepresentation...))
		tx.S1 = append(tx.S1, s1)
		tx.C1 = append(tx.C1, c1)
		tx.T = append(tx.T, in.T)
		tx.Grootle = append(tx.Grootle, proof)

		chaumX = append(chaumX, in.S)
		chaumY = append(chaumY, sk.r)
		chaumZ = append(chaumZ, ser1.Neg())
		balanceWitness = balanceWitness.Add(val1)
	}

	ctx := serialContext(tx.T)
	values := make([]uint64, 0, t)
	blinds := make([]group.Scalar, 0, t)
	commits := make([]group.Point, 0, t)
	for _, out := range outputs {
		k := group.RandomNonZeroScalar()
		c, err := NewCoin(params, CoinTypeSpend, k, out.Address, out.V, out.Memo, ctx)
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, c)
		values = append(values, out.V)
		blinds = append(blinds, hashVal(k))
		commits = append(commits, c.C)
		balanceWitness = balanceWitness.Sub(hashVal(k))
	}

	rangeProof, err := params.rng.Prove(values, blinds, commits)
	if err != nil {
		return nil, fmt.Errorf("range proof: %w", err)
	}
	tx.Range = rangeProof

	tx.Balance = proveSchnorr(params.H, balanceWitness,
		balanceStatement(params, tx), nil)

	mu := tx.bindingHash()
	tx.Chaum = proveChaum(params, mu, chaumX, chaumY, chaumZ, tx.S1, tx.T)
	return tx, nil
}

// balanceStatement returns ΣC1 - ΣC_out - G·fee, which is a multiple of H
// exactly when inputs equal outputs plus fee.
func balanceStatement(params *Params, tx *SpendTransaction) group.Point {
	stmt := group.SumPoints(tx.C1)
	for _, c := range tx.Outputs {
		stmt = stmt.Sub(c.C)
	}
	return stmt.Sub(params.G.Mul(group.ScalarFromUint64(tx.Fee)))
}

// bindingHash commits to every component other than the authorizing proof.
func (tx *SpendTransaction) bindingHash() group.Scalar {
	var e group.Encoder
	e.PutUint32(uint32(len(tx.Outputs)))
	for _, c := range tx.Outputs {
		c.Encode(&e)
	}
	e.PutUint64(tx.Fee)
	e.PutUint32(uint32(len(tx.CoverSetIDs)))
	for u := range tx.CoverSetIDs {
		e.PutUint64(tx.CoverSetIDs[u])
		e.PutUint64(tx.CoverSetSizes[u])
		e.PutBytes(tx.CoverSetRepresentations[u])
	}
	e.PutPoints(tx.S1)
	e.PutPoints(tx.C1)
	e.PutPoints(tx.T)
	for _, pr := range tx.Grootle {
		pr.Encode(&e)
	}
	tx.Balance.Encode(&e)
	if tx.Range != nil {
		tx.Range.Encode(&e)
	}
	return group.HashToScalar(labelBind, e.Bytes())
}

// Inputs returns the number of consumed coins.
func (tx *SpendTransaction) Inputs() int { return len(tx.CoverSetIDs) }

// checkSemantics rejects transactions whose shapes are inconsistent.
func (tx *SpendTransaction) checkSemantics(params *Params, coverSets map[uint64][]*Coin) error {
	w := len(tx.CoverSetIDs)
	if w == 0 {
		return fmt.Errorf("%w: no inputs", ErrBadSemantics)
	}
	if len(tx.CoverSetSizes) != w || len(tx.CoverSetRepresentations) != w ||
		len(tx.S1) != w || len(tx.C1) != w || len(tx.T) != w ||
		len(tx.Grootle) != w {
		return fmt.Errorf("%w: per-input vectors disagree with %d inputs",
			ErrBadSemantics, w)
	}
	if len(tx.Outputs) == 0 || len(tx.Outputs) > params.MaxOutputs() || tx.Range == nil {
		return fmt.Errorf("%w: %d outputs", ErrBadSemantics, len(tx.Outputs))
	}
	for _, c := range tx.Outputs {
		if c.Type != CoinTypeSpend {
			return fmt.Errorf("%w: output of type %v", ErrBadSemantics, c.Type)
		}
	}

	seen := make(map[[group.PointSize]byte]struct{}, w)
	for u := 0; u < w; u++ {
		size := tx.CoverSetSizes[u]
		if size == 0 || size > uint64(params.CoverSetSize()) {
			return fmt.Errorf("%w: input %d cover set size %d", ErrBadSemantics, u, size)
		}
		set, ok := coverSets[tx.CoverSetIDs[u]]
		if !ok {
			return fmt.Errorf("%w: unknown cover set %d", ErrBadSemantics, tx.CoverSetIDs[u])
		}
		if uint64(len(set)) < size {
			return fmt.Errorf("%w: cover set %d has %d coins, input %d claims %d",
				ErrBadSemantics, tx.CoverSetIDs[u], len(set), u, size)
		}
		if tx.Grootle[u] == nil {
			return fmt.Errorf("%w: input %d has no membership proof", ErrBadSemantics, u)
		}
		key := tx.T[u].Bytes()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate linking tag", ErrBadSemantics)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// VerifySpend checks a single transaction. coverSets maps every cover set
// id the transaction references to the full known set for that id.
func VerifySpend(params *Params, tx *SpendTransaction, coverSets map[uint64][]*Coin) error {
	return VerifySpends(params, []*SpendTransaction{tx}, coverSets)
}

type grootleRef struct {
	tx, input int
}

// VerifySpends checks a batch of transactions. Authorizing and balance
// proofs are checked per transaction and fail fast; range proofs are then
// verified in one batch and membership proofs in one batch per cover set.
func VerifySpends(params *Params, txs []*SpendTransaction, coverSets map[uint64][]*Coin) error {
	rangeProofs := make([]*bpplus.Proof, 0, len(txs))
	rangeCommits := make([][]group.Point, 0, len(txs))
	buckets := make(map[uint64][]grootleRef)

	for i, tx := range txs {
		if err := tx.checkSemantics(params, coverSets); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}

		mu := tx.bindingHash()
		if !verifyChaum(params, mu, tx.S1, tx.T, &tx.Chaum) {
			log.Debugf("Spend %d: authorizing proof failed", i)
			return fmt.Errorf("transaction %d: %w: authorizing proof", i, ErrInvalidProof)
		}
		if !verifySchnorr(params.H, balanceStatement(params, tx), &tx.Balance, nil) {
			log.Debugf("Spend %d: balance proof failed", i)
			return fmt.Errorf("transaction %d: %w: balance proof", i, ErrInvalidProof)
		}

		commits := make([]group.Point, len(tx.Outputs))
		for j, c := range tx.Outputs {
			commits[j] = c.C
		}
		rangeProofs = append(rangeProofs, tx.Range)
		rangeCommits = append(rangeCommits, commits)

		for u, id := range tx.CoverSetIDs {
			buckets[id] = append(buckets[id], grootleRef{tx: i, input: u})
		}
	}
	if len(txs) == 0 {
		return nil
	}

	if err := params.rng.VerifyBatch(rangeProofs, rangeCommits); err != nil {
		log.Debugf("Range proof batch of %d failed: %v", len(rangeProofs), err)
		return proofError("range proof", err)
	}

	ids := make([]uint64, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	for _, id := range ids {
		refs := buckets[id]
		maxSize := uint64(0)
		statements := make([]grootle.Statement, 0, len(refs))
		for _, ref := range refs {
			tx := txs[ref.tx]
			size := tx.CoverSetSizes[ref.input]
			if size > maxSize {
				maxSize = size
			}
			statements = append(statements, grootle.Statement{
				Proof:   tx.Grootle[ref.input],
				Offsets: []group.Point{tx.S1[ref.input], tx.C1[ref.input]},
				Context: tx.CoverSetRepresentations[ref.input],
				Size:    int(size),
			})
		}

		set := coverSets[id][:maxSize]
		sSet := make([]group.Point, len(set))
		cSet := make([]group.Point, len(set))
		for i, c := range set {
			sSet[i] = c.S
			cSet[i] = c.C
		}
		if err := params.grootle.VerifyBatch([][]group.Point{sSet, cSet}, statements); err != nil {
			log.Debugf("Membership batch for cover set %d failed: %v", id, err)
			return proofError(fmt.Sprintf("membership proof, cover set %d", id), err)
		}
	}
	return nil
}

func proofError(what string, err error) error {
	if errors.Is(err, grootle.ErrBadSemantics) || errors.Is(err, bpplus.ErrBadSemantics) {
		return fmt.Errorf("%w: %s: %v", ErrBadSemantics, what, err)
	}
	return fmt.Errorf("%w: %s", ErrInvalidProof, what)
}
