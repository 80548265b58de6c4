package grootle

import (
	"fmt"

	"anoncoin/internal/group"
)

// Encode appends the proof to e.
func (pr *Proof) Encode(e *group.Encoder) {
	e.PutPoint(pr.A)
	e.PutPoint(pr.B)
	e.PutPoint(pr.C)
	e.PutPoint(pr.D)
	e.PutUint32(uint32(len(pr.X)))
	for _, row := range pr.X {
		e.PutPoints(row)
	}
	e.PutScalars(pr.F)
	e.PutScalar(pr.ZA)
	e.PutScalar(pr.ZC)
	e.PutScalars(pr.Z)
}

// Bytes returns the standalone encoding of the proof.
func (pr *Proof) Bytes() []byte {
	var e group.Encoder
	pr.Encode(&e)
	return e.Bytes()
}

// DecodeProof reads a proof from d. Shapes are checked against parameters
// at verification time.
func DecodeProof(d *group.Decoder) (*Proof, error) {
	pr := &Proof{
		A: d.Point(),
		B: d.Point(),
		C: d.Point(),
		D: d.Point(),
	}
	rows := d.Uint32()
	if d.Err() == nil && rows > 16 {
		return nil, fmt.Errorf("%w: %d commitment sets", ErrBadSemantics, rows)
	}
	for i := uint32(0); i < rows && d.Err() == nil; i++ {
		pr.X = append(pr.X, d.Points())
	}
	pr.F = d.Scalars()
	pr.ZA = d.Scalar()
	pr.ZC = d.Scalar()
	pr.Z = d.Scalars()
	if err := d.Err(); err != nil {
		return nil, err
	}
	return pr, nil
}

// ProofFromBytes decodes a standalone proof encoding.
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
