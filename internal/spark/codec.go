package spark

import (
	"fmt"

	"anoncoin/internal/bpplus"
	"anoncoin/internal/group"
	"anoncoin/internal/grootle"
)

// maxSpendInputs bounds decoded input counts before any allocation.
const maxSpendInputs = 1 << 12

// Bytes returns the encoding of the whole transaction.
func (tx *SpendTransaction) Bytes() []byte {
	var e group.Encoder
	w := len(tx.CoverSetIDs)
	e.PutUint32(uint32(w))
	for u := 0; u < w; u++ {
		e.PutUint64(tx.CoverSetIDs[u])
		e.PutUint64(tx.CoverSetSizes[u])
		e.PutBytes(tx.CoverSetRepresentations[u])
		e.PutPoint(tx.S1[u])
		e.PutPoint(tx.C1[u])
		e.PutPoint(tx.T[u])
		tx.Grootle[u].Encode(&e)
	}
	e.PutUint32(uint32(len(tx.Outputs)))
	for _, c := range tx.Outputs {
		c.Encode(&e)
	}
	e.PutUint64(tx.Fee)
	tx.Balance.Encode(&e)
	tx.Range.Encode(&e)
	tx.Chaum.Encode(&e)
	return e.Bytes()
}

// SpendTransactionFromBytes decodes a transaction. Output coins take the
// serial context implied by the decoded linking tags.
func SpendTransactionFromBytes(b []byte) (*SpendTransaction, error) {
	d := group.NewDecoder(b)
	tx := &SpendTransaction{}

	w := d.Uint32()
	if d.Err() == nil && w > maxSpendInputs {
		return nil, fmt.Errorf("%w: %d inputs", ErrBadSemantics, w)
	}
	for u := uint32(0); u < w && d.Err() == nil; u++ {
		tx.CoverSetIDs = append(tx.CoverSetIDs, d.Uint64())
		tx.CoverSetSizes = append(tx.CoverSetSizes, d.Uint64())
		tx.CoverSetRepresentations = append(tx.CoverSetRepresentations, d.Bytes())
		tx.S1 = append(tx.S1, d.Point())
		tx.C1 = append(tx.C1, d.Point())
		tx.T = append(tx.T, d.Point())
		pr, err := grootle.DecodeProof(d)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", u, err)
		}
		tx.Grootle = append(tx.Grootle, pr)
	}

	t := d.Uint32()
	if d.Err() == nil && t > maxSpendInputs {
		return nil, fmt.Errorf("%w: %d outputs", ErrBadSemantics, t)
	}
	for j := uint32(0); j < t && d.Err() == nil; j++ {
		c, err := DecodeCoin(d)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", j, err)
		}
		tx.Outputs = append(tx.Outputs, c)
	}
	tx.Fee = d.Uint64()
	tx.Balance = decodeSchnorr(d)
	rp, err := bpplus.DecodeProof(d)
	if err != nil {
		return nil, fmt.Errorf("range proof: %w", err)
	}
	tx.Range = rp
	tx.Chaum = decodeChaum(d)
	if err := d.Finish(); err != nil {
		return nil, err
	}

	ctx := serialContext(tx.T)
	for _, c := range tx.Outputs {
		c.SerialContext = ctx
	}
	return tx, nil
}
