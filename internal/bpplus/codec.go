package bpplus

import (
	"fmt"

	"anoncoin/internal/group"
)

// Encode appends the proof to e.
func (pr *Proof) Encode(e *group.Encoder) {
	e.PutPoint(pr.A)
	e.PutPoint(pr.A1)
	e.PutPoint(pr.B)
	e.PutScalar(pr.R1)
	e.PutScalar(pr.S1)
	e.PutScalar(pr.D1)
	e.PutPoints(pr.L)
	e.PutPoints(pr.R)
}

func (pr *Proof) Bytes() []byte {
	var e group.Encoder
	pr.Encode(&e)
	return e.Bytes()
}

// DecodeProof reads a proof from d.
func DecodeProof(d *group.Decoder) (*Proof, error) {
	pr := &Proof{
		A:  d.Point(),
		A1: d.Point(),
		B:  d.Point(),
		R1: d.Scalar(),
		S1: d.Scalar(),
		D1: d.Scalar(),
		L:  d.Points(),
		R:  d.Points(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if len(pr.L) != len(pr.R) {
		return nil, fmt.Errorf("%w: %d L, %d R", ErrBadSemantics, len(pr.L), len(pr.R))
	}
	return pr, nil
}

func ProofFromBytes(b []byte) (*Proof, error) {
	d := group.NewDecoder(b)
	pr, err := DecodeProof(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return pr, nil
}
