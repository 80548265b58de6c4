// bpplus.go - Aggregated Bulletproofs+ range proofs.
//
// A proof shows that each of M commitments V_j = G·v_j + H·r_j opens to a
// value in [0, 2^64). M is padded to a power of two with identity
// commitments, so the generator vectors must hold 64·M' elements.

package bpplus

import (
	"errors"
	"fmt"

	"anoncoin/internal/group"
	"anoncoin/internal/transcript"
)

// Bits is the width of every range statement.
const Bits = 64

var (
	// ErrBadSemantics is returned for inputs whose shapes do not fit the
	// parameters.
	ErrBadSemantics = errors.New("bpplus: bad semantics")

	// ErrInvalidProof is returned when a well-formed proof fails verification.
	ErrInvalidProof = errors.New("bpplus: invalid proof")
)

// Params holds the generators. G is the value base and H the blinding base
// of the commitments being proven.
type Params struct {
	g, h   group.Point
	gi, hi []group.Point
	maxM   int
}

// NewParams builds parameters for up to maxM aggregated commitments. gi and
// hi must each hold Bits·maxM generators and maxM must be a power of two.
func NewParams(g, h group.Point, gi, hi []group.Point, maxM int) (*Params, error) {
	if maxM < 1 || maxM&(maxM-1) != 0 {
		return nil, fmt.Errorf("%w: maxM %d is not a power of two", ErrBadSemantics, maxM)
	}
	if len(gi) < Bits*maxM || len(hi) < Bits*maxM {
		return nil, fmt.Errorf("%w: need %d generators", ErrBadSemantics, Bits*maxM)
	}
	return &Params{
		g:    g,
		h:    h,
		gi:   append([]group.Point(nil), gi[:Bits*maxM]...),
		hi:   append([]group.Point(nil), hi[:Bits*maxM]...),
		maxM: maxM,
	}, nil
}

// MaxAggregation returns the largest number of commitments a proof may cover.
func (p *Params) MaxAggregation() int { return p.maxM }

// Proof is an aggregated range proof.
type Proof struct {
	A, A1, B group.Point
	R1, S1   group.Scalar
	D1       group.Scalar
	L, R     []group.Point
}

func nextPow2(m int) int {
	n := 1
	for n < m {
		n <<= 1
	}
	return n
}

func log2(n int) int {
	k := 0
	for 1<<k < n {
		k++
	}
	return k
}

// padded returns the commitments extended with identities to a power of two.
func padded(cs []group.Point) []group.Point {
	out := make([]group.Point, nextPow2(len(cs)))
	copy(out, cs)
	return out
}

// weightedInner returns Σ a_i·y^(i+1)·b_i.
func weightedInner(a, b []group.Scalar, y group.Scalar) group.Scalar {
	var acc group.Scalar
	yp := y
	for i := range a {
		acc = acc.Add(a[i].Mul(yp).Mul(b[i]))
		yp = yp.Mul(y)
	}
	return acc
}

func scaleVec(v []group.Scalar, s group.Scalar) []group.Scalar {
	out := make([]group.Scalar, len(v))
	for i := range v {
		out[i] = v[i].Mul(s)
	}
	return out
}

// dVector returns d_{jN+i} = z^(2(j+1))·2^i.
func dVector(z group.Scalar, m int) []group.Scalar {
	d := make([]group.Scalar, m*Bits)
	z2 := z.Square()
	zp := z2
	two := group.ScalarFromUint64(2)
	for j := 0; j < m; j++ {
		v := zp
		for i := 0; i < Bits; i++ {
			d[j*Bits+i] = v
			v = v.Mul(two)
		}
		zp = zp.Mul(z2)
	}
	return d
}

func (p *Params) begin(cs []group.Point) *transcript.Transcript {
	tr := transcript.New("bpplus")
	tr.AddPoints("V", cs)
	return tr
}

// Prove builds a range proof for values opened by blinds. commitments must
// equal G·values[j] + H·blinds[j].
func (p *Params) Prove(values []uint64, blinds []group.Scalar,
	commitments []group.Point) (*Proof, error) {

	m := len(values)
	if m == 0 || len(blinds) != m || len(commitments) != m {
		return nil, fmt.Errorf("%w: %d values, %d blinds, %d commitments",
			ErrBadSemantics, m, len(blinds), len(commitments))
	}
	if m > p.maxM {
		return nil, fmt.Errorf("%w: %d commitments exceed %d", ErrBadSemantics, m, p.maxM)
	}
	for j := range values {
		want := p.g.Mul(group.ScalarFromUint64(values[j])).Add(p.h.Mul(blinds[j]))
		if !want.Equal(commitments[j]) {
			return nil, fmt.Errorf("%w: commitment %d does not open", ErrBadSemantics, j)
		}
	}

	mp := nextPow2(m)
	mn := mp * Bits
	vs := make([]uint64, mp)
	copy(vs, values)
	gammas := make([]group.Scalar, mp)
	copy(gammas, blinds)
	cs := padded(commitments)

	one := group.ScalarFromUint64(1)
	aL := make([]group.Scalar, mn)
	aR := make([]group.Scalar, mn)
	for j := 0; j < mp; j++ {
		for i := 0; i < Bits; i++ {
			if vs[j]>>uint(i)&1 == 1 {
				aL[j*Bits+i] = one
			} else {
				aR[j*Bits+i] = one.Neg()
			}
		}
	}

	gi := p.gi[:mn]
	hi := p.hi[:mn]

	tr := p.begin(cs)
	alpha := group.RandomScalar()
	pr := &Proof{}
	pr.A = group.MultiScalarMul(gi, aL).
		Add(group.MultiScalarMul(hi, aR)).
		Add(p.h.Mul(alpha))
	tr.AddPoint("A", pr.A)
	y := tr.Challenge("y")
	z := tr.Challenge("z")

	// â_L = a_L - z, â_R = a_R + d∘y^(MN-i) + z
	d := dVector(z, mp)
	yPow := group.Powers(y, mn+2)
	a := make([]group.Scalar, mn)
	b := make([]group.Scalar, mn)
	for i := 0; i < mn; i++ {
		a[i] = aL[i].Sub(z)
		b[i] = aR[i].Add(d[i].Mul(yPow[mn-i])).Add(z)
	}
	// α̂ = α + Σ z^(2(j+1))·y^(MN+1)·γ_j
	zp := z.Square()
	for j := 0; j < mp; j++ {
		alpha = alpha.Add(zp.Mul(yPow[mn+1]).Mul(gammas[j]))
		zp = zp.Mul(z.Square())
	}

	gv := append([]group.Point(nil), gi...)
	hv := append([]group.Point(nil), hi...)
	for n := mn; n > 1; n /= 2 {
		h := n / 2
		a1, a2 := a[:h], a[h:]
		b1, b2 := b[:h], b[h:]
		g1, g2 := gv[:h], gv[h:]
		h1, h2 := hv[:h], hv[h:]

		yh := yPow[h]
		yhInv := yh.Inverse()
		cL := weightedInner(a1, b2, y)
		cR := weightedInner(scaleVec(a2, yh), b1, y)
		dL := group.RandomScalar()
		dR := group.RandomScalar()

		L := group.MultiScalarMul(g2, scaleVec(a1, yhInv)).
			Add(group.MultiScalarMul(h1, b2)).
			Add(p.g.Mul(cL)).Add(p.h.Mul(dL))
		R := group.MultiScalarMul(g1, scaleVec(a2, yh)).
			Add(group.MultiScalarMul(h2, b1)).
			Add(p.g.Mul(cR)).Add(p.h.Mul(dR))
		pr.L = append(pr.L, L)
		pr.R = append(pr.R, R)
		tr.AddPoint("L", L)
		tr.AddPoint("R", R)
		e := tr.Challenge("e")
		eInv := e.Inverse()
		e2 := e.Square()
		e2Inv := eInv.Square()

		ng := make([]group.Point, h)
		nh := make([]group.Point, h)
		na := make([]group.Scalar, h)
		nb := make([]group.Scalar, h)
		eyh := e.Mul(yhInv)
		yhe := yh.Mul(eInv)
		for i := 0; i < h; i++ {
			ng[i] = g1[i].Mul(eInv).Add(g2[i].Mul(eyh))
			nh[i] = h1[i].Mul(e).Add(h2[i].Mul(eInv))
			na[i] = a1[i].Mul(e).Add(a2[i].Mul(yhe))
			nb[i] = b1[i].Mul(eInv).Add(b2[i].Mul(e))
		}
		alpha = alpha.Add(dL.Mul(e2)).Add(dR.Mul(e2Inv))
		gv, hv, a, b = ng, nh, na, nb
	}

	r := group.RandomScalar()
	s := group.RandomScalar()
	delta := group.RandomScalar()
	eta := group.RandomScalar()
	pr.A1 = gv[0].Mul(r).
		Add(hv[0].Mul(s)).
		Add(p.g.Mul(r.Mul(y).Mul(b[0]).Add(s.Mul(y).Mul(a[0])))).
		Add(p.h.Mul(delta))
	pr.B = p.g.Mul(r.Mul(y).Mul(s)).Add(p.h.Mul(eta))
	tr.AddPoint("A1", pr.A1)
	tr.AddPoint("B", pr.B)
	e := tr.Challenge("e")

	pr.R1 = r.Add(a[0].Mul(e))
	pr.S1 = s.Add(b[0].Mul(e))
	pr.D1 = eta.Add(delta.Mul(e)).Add(alpha.Mul(e.Square()))
	return pr, nil
}

// Verify checks a single proof.
func (p *Params) Verify(pr *Proof, commitments []group.Point) error {
	return p.VerifyBatch([]*Proof{pr}, [][]group.Point{commitments})
}

// VerifyBatch checks every proof in one multi-scalar multiplication, each
// scaled by an independent random weight.
func (p *Params) VerifyBatch(proofs []*Proof, commitments [][]group.Point) error {
	if len(proofs) != len(commitments) {
		return fmt.Errorf("%w: %d proofs, %d commitment sets",
			ErrBadSemantics, len(proofs), len(commitments))
	}
	maxMN := 0
	for i, pr := range proofs {
		m := len(commitments[i])
		if pr == nil || m == 0 || m > p.maxM {
			return fmt.Errorf("%w: proof %d covers %d commitments", ErrBadSemantics, i, m)
		}
		mn := nextPow2(m) * Bits
		if len(pr.L) != log2(mn) || len(pr.R) != len(pr.L) {
			return fmt.Errorf("%w: proof %d has %d rounds", ErrBadSemantics, i, len(pr.L))
		}
		if mn > maxMN {
			maxMN = mn
		}
	}
	if len(proofs) == 0 {
		return nil
	}

	giScalars := make([]group.Scalar, maxMN)
	hiScalars := make([]group.Scalar, maxMN)
	var gScalar, hScalar group.Scalar
	var pts []group.Point
	var scs []group.Scalar

	for idx, pr := range proofs {
		cs := padded(commitments[idx])
		mp := len(cs)
		mn := mp * Bits
		rounds := len(pr.L)

		tr := p.begin(cs)
		tr.AddPoint("A", pr.A)
		y := tr.Challenge("y")
		z := tr.Challenge("z")
		es := make([]group.Scalar, rounds)
		for k := 0; k < rounds; k++ {
			tr.AddPoint("L", pr.L[k])
			tr.AddPoint("R", pr.R[k])
			es[k] = tr.Challenge("e")
		}
		tr.AddPoint("A1", pr.A1)
		tr.AddPoint("B", pr.B)
		e := tr.Challenge("e")
		for _, c := range es {
			if c.IsZero() {
				return ErrInvalidProof
			}
		}
		if e.IsZero() || y.IsZero() {
			return ErrInvalidProof
		}

		w := group.RandomNonZeroScalar()
		e2 := e.Square()
		we2 := w.Mul(e2)

		yPow := group.Powers(y, mn+2)
		yInv := y.Inverse()
		esInv := group.BatchInverse(es)

		// Unrolled generator weights. Round k halves length mn>>k and
		// decides on bit (rounds-1-k) of the index.
		sG := make([]group.Scalar, mn)
		sH := make([]group.Scalar, mn)
		one := group.ScalarFromUint64(1)
		for i := range sG {
			sG[i] = one
			sH[i] = one
		}
		for k := 0; k < rounds; k++ {
			half := mn >> uint(k+1)
			yhInv := yInv.Pow(uint64(half))
			hi := es[k].Mul(yhInv)
			for i := 0; i < mn; i++ {
				if (i/half)&1 == 0 {
					sG[i] = sG[i].Mul(esInv[k])
					sH[i] = sH[i].Mul(es[k])
				} else {
					sG[i] = sG[i].Mul(hi)
					sH[i] = sH[i].Mul(esInv[k])
				}
			}
		}

		d := dVector(z, mp)
		var sumD group.Scalar
		for _, v := range d {
			sumD = sumD.Add(v)
		}
		var sumY group.Scalar
		for i := 1; i <= mn; i++ {
			sumY = sumY.Add(yPow[i])
		}
		// ζ = (z - z²)·Σy^i - z·y^(MN+1)·Σd
		zeta := z.Sub(z.Square()).Mul(sumY).Sub(z.Mul(yPow[mn+1]).Mul(sumD))

		er1 := e.Mul(pr.R1)
		es1 := e.Mul(pr.S1)
		for i := 0; i < mn; i++ {
			// e²·(-z) - e·r'·s_i
			giScalars[i] = giScalars[i].Sub(we2.Mul(z)).Sub(w.Mul(er1).Mul(sG[i]))
			// e²·(d_i·y^(MN-i) + z) - e·s'·h_i
			hv := d[i].Mul(yPow[mn-i]).Add(z)
			hiScalars[i] = hiScalars[i].Add(we2.Mul(hv)).Sub(w.Mul(es1).Mul(sH[i]))
		}
		gScalar = gScalar.Add(we2.Mul(zeta)).Sub(w.Mul(pr.R1).Mul(y).Mul(pr.S1))
		hScalar = hScalar.Sub(w.Mul(pr.D1))

		pts = append(pts, pr.A, pr.A1, pr.B)
		scs = append(scs, we2, w.Mul(e), w)

		zp := z.Square()
		for j := 0; j < mp; j++ {
			pts = append(pts, cs[j])
			scs = append(scs, we2.Mul(zp).Mul(yPow[mn+1]))
			zp = zp.Mul(z.Square())
		}
		for k := 0; k < rounds; k++ {
			pts = append(pts, pr.L[k], pr.R[k])
			scs = append(scs, we2.Mul(es[k].Square()), we2.Mul(esInv[k].Square()))
		}
	}

	pts = append(pts, p.gi[:maxMN]...)
	scs = append(scs, giScalars...)
	pts = append(pts, p.hi[:maxMN]...)
	scs = append(scs, hiScalars...)
	pts = append(pts, p.g, p.h)
	scs = append(scs, gScalar, hScalar)

	if !group.MultiScalarMul(pts, scs).IsIdentity() {
		return ErrInvalidProof
	}
	return nil
}
