// schnorr.go - Proof of knowledge of a discrete logarithm to base H.

package spark

import (
	"anoncoin/internal/group"
	"anoncoin/internal/transcript"
)

// SchnorrProof shows knowledge of w with Y = base·w.
type SchnorrProof struct {
	A group.Point
	T group.Scalar
}

func schnorrChallenge(base, y, a group.Point, context []byte) group.Scalar {
	tr := transcript.New(labelSchnorr)
	tr.AddBytes("context", context)
	tr.AddPoint("base", base)
	tr.AddPoint("Y", y)
	tr.AddPoint("A", a)
	return tr.Challenge("c")
}

// proveSchnorr proves y = base·w. context is bound into the challenge.
func proveSchnorr(base group.Point, w group.Scalar, y group.Point,
	context []byte) SchnorrProof {

	r := group.RandomNonZeroScalar()
	a := base.Mul(r)
	c := schnorrChallenge(base, y, a, context)
	return SchnorrProof{A: a, T: r.Add(c.Mul(w))}
}

// verifySchnorr checks base·t == A + c·Y.
func verifySchnorr(base, y group.Point, pr *SchnorrProof, context []byte) bool {
	if pr.A.IsIdentity() {
		return false
	}
	c := schnorrChallenge(base, y, pr.A, context)
	lhs := base.Mul(pr.T)
	rhs := pr.A.Add(y.Mul(c))
	return lhs.Equal(rhs)
}

func (pr *SchnorrProof) Encode(e *group.Encoder) {
	e.PutPoint(pr.A)
	e.PutScalar(pr.T)
}

func decodeSchnorr(d *group.Decoder) SchnorrProof {
	return SchnorrProof{A: d.Point(), T: d.Scalar()}
}
