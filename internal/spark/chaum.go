// chaum.go - Joint authorizing proof over all spend inputs.
//
// For every input u the prover knows (x, y, z) with
//
//	S1[u] = F·x + G·y + H·z
//	U     = T[u]·x + G·y
//
// Both relations share x and y, which ties each linking tag to the serial
// commitment offset. One challenge, bound to mu, covers every input.

package spark

import (
	"anoncoin/internal/group"
	"anoncoin/internal/transcript"
)

// ChaumProof is the authorizing proof of a spend transaction.
type ChaumProof struct {
	A1, A2     []group.Point
	TX, TY, TZ []group.Scalar
}

func chaumChallenge(params *Params, mu group.Scalar, s1, t, a1, a2 []group.Point) group.Scalar {
	tr := transcript.New(labelChaum)
	tr.AddPoint("F", params.F)
	tr.AddPoint("G", params.G)
	tr.AddPoint("H", params.H)
	tr.AddPoint("U", params.U)
	tr.AddScalar("mu", mu)
	tr.AddPoints("S1", s1)
	tr.AddPoints("T", t)
	tr.AddPoints("A1", a1)
	tr.AddPoints("A2", a2)
	return tr.Challenge("c")
}

func proveChaum(params *Params, mu group.Scalar, x, y, z []group.Scalar,
	s1, t []group.Point) ChaumProof {

	w := len(x)
	rx := make([]group.Scalar, w)
	ry := make([]group.Scalar, w)
	rz := make([]group.Scalar, w)
	pr := ChaumProof{
		A1: make([]group.Point, w),
		A2: make([]group.Point, w),
	}
	for u := 0; u < w; u++ {
		rx[u] = group.RandomNonZeroScalar()
		ry[u] = group.RandomNonZeroScalar()
		rz[u] = group.RandomNonZeroScalar()
		gy := params.G.Mul(ry[u])
		pr.A1[u] = params.F.Mul(rx[u]).Add(gy).Add(params.H.Mul(rz[u]))
		pr.A2[u] = t[u].Mul(rx[u]).Add(gy)
	}

	c := chaumChallenge(params, mu, s1, t, pr.A1, pr.A2)
	pr.TX = make([]group.Scalar, w)
	pr.TY = make([]group.Scalar, w)
	pr.TZ = make([]group.Scalar, w)
	for u := 0; u < w; u++ {
		pr.TX[u] = rx[u].Add(c.Mul(x[u]))
		pr.TY[u] = ry[u].Add(c.Mul(y[u]))
		pr.TZ[u] = rz[u].Add(c.Mul(z[u]))
	}
	return pr
}

func verifyChaum(params *Params, mu group.Scalar, s1, t []group.Point, pr *ChaumProof) bool {
	w := len(s1)
	if len(t) != w || len(pr.A1) != w || len(pr.A2) != w ||
		len(pr.TX) != w || len(pr.TY) != w || len(pr.TZ) != w {
		return false
	}

	c := chaumChallenge(params, mu, s1, t, pr.A1, pr.A2)

	// Both relations of every input are folded into one multi-scalar
	// multiplication with random weights.
	var pts []group.Point
	var scs []group.Scalar
	var fS, gS, hS, uS group.Scalar
	for u := 0; u < w; u++ {
		if t[u].IsIdentity() {
			return false
		}
		w1 := group.RandomNonZeroScalar()
		w2 := group.RandomNonZeroScalar()

		// w1(F·tx + G·ty + H·tz - A1 - c·S1)
		fS = fS.Add(w1.Mul(pr.TX[u]))
		gS = gS.Add(w1.Mul(pr.TY[u]))
		hS = hS.Add(w1.Mul(pr.TZ[u]))
		pts = append(pts, pr.A1[u], s1[u])
		scs = append(scs, w1.Neg(), w1.Mul(c).Neg())

		// w2(T·tx + G·ty - A2 - c·U)
		gS = gS.Add(w2.Mul(pr.TY[u]))
		uS = uS.Sub(w2.Mul(c))
		pts = append(pts, t[u], pr.A2[u])
		scs = append(scs, w2.Mul(pr.TX[u]), w2.Neg())
	}
	pts = append(pts, params.F, params.G, params.H, params.U)
	scs = append(scs, fS, gS, hS, uS)
	return group.MultiScalarMul(pts, scs).IsIdentity()
}

func (pr *ChaumProof) Encode(e *group.Encoder) {
	e.PutPoints(pr.A1)
	e.PutPoints(pr.A2)
	e.PutScalars(pr.TX)
	e.PutScalars(pr.TY)
	e.PutScalars(pr.TZ)
}

func decodeChaum(d *group.Decoder) ChaumProof {
	return ChaumProof{
		A1: d.Points(),
		A2: d.Points(),
		TX: d.Scalars(),
		TY: d.Scalars(),
		TZ: d.Scalars(),
	}
}
