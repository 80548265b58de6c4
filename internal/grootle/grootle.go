// grootle.go - One-of-many proofs over parallel commitment sets.
//
// A proof shows knowledge of an index l and, for every set k, an opening w_k
// such that sets[k][l] - offsets[k] = H·w_k. The index is shared by all sets,
// which is what ties a Spark serial commitment to its value commitment.

package grootle

import (
	"errors"
	"fmt"

	"anoncoin/internal/group"
	"anoncoin/internal/transcript"
)

var (
	// ErrBadSemantics is returned for malformed inputs or proofs whose
	// shapes do not match the parameters.
	ErrBadSemantics = errors.New("grootle: bad semantics")

	// ErrInvalidProof is returned when a well-formed proof fails verification.
	ErrInvalidProof = errors.New("grootle: invalid proof")
)

// Params fixes the decomposition N = n^m and the commitment generators.
type Params struct {
	n, m int
	size int
	h    group.Point
	gens []group.Point
}

// NewParams builds parameters for sets of up to n^m elements. gens must hold
// at least n·m generators independent of h.
func NewParams(h group.Point, gens []group.Point, n, m int) (*Params, error) {
	if n < 2 || m < 1 {
		return nil, fmt.Errorf("%w: n=%d m=%d", ErrBadSemantics, n, m)
	}
	size := 1
	for i := 0; i < m; i++ {
		if size > (1<<30)/n {
			return nil, fmt.Errorf("%w: n^m overflows", ErrBadSemantics)
		}
		size *= n
	}
	if len(gens) < n*m {
		return nil, fmt.Errorf("%w: need %d generators, have %d",
			ErrBadSemantics, n*m, len(gens))
	}
	return &Params{
		n:    n,
		m:    m,
		size: size,
		h:    h,
		gens: append([]group.Point(nil), gens[:n*m]...),
	}, nil
}

// N returns the maximum set size.
func (p *Params) N() int { return p.size }

func (p *Params) Base() int { return p.n }

func (p *Params) Digits() int { return p.m }

// Proof is a one-of-many proof for K commitment sets.
type Proof struct {
	A, B, C, D group.Point
	X          [][]group.Point // K rows of m points
	F          []group.Scalar  // m·(n-1) responses
	ZA, ZC     group.Scalar
	Z          []group.Scalar // K openings
}

// Sets returns the number of commitment sets the proof covers.
func (pr *Proof) Sets() int { return len(pr.Z) }

// commit returns H·r + Σ gens[i]·v[i].
func (p *Params) commit(v []group.Scalar, r group.Scalar) group.Point {
	pts := make([]group.Point, 0, len(v)+1)
	sc := make([]group.Scalar, 0, len(v)+1)
	pts = append(pts, p.h)
	sc = append(sc, r)
	pts = append(pts, p.gens[:len(v)]...)
	sc = append(sc, v...)
	return group.MultiScalarMul(pts, sc)
}

// digits returns the base-n decomposition of l, least significant first.
func (p *Params) digits(l int) []int {
	out := make([]int, p.m)
	for j := range out {
		out[j] = l % p.n
		l /= p.n
	}
	return out
}

func (p *Params) transcript(context []byte, size int, offsets []group.Point,
	pr *Proof) group.Scalar {

	tr := transcript.New("grootle")
	tr.AddUint64("n", uint64(p.n))
	tr.AddUint64("m", uint64(p.m))
	tr.AddUint64("size", uint64(size))
	tr.AddBytes("context", context)
	tr.AddPoints("offsets", offsets)
	tr.AddPoint("A", pr.A)
	tr.AddPoint("B", pr.B)
	tr.AddPoint("C", pr.C)
	tr.AddPoint("D", pr.D)
	for _, row := range pr.X {
		tr.AddPoints("X", row)
	}
	return tr.Challenge("x")
}

// polyMulLinear multiplies the polynomial c (coefficients, lowest first) by
// (a·X + b), writing into a new slice one longer.
func polyMulLinear(c []group.Scalar, a, b group.Scalar) []group.Scalar {
	out := make([]group.Scalar, len(c)+1)
	for k := range c {
		out[k] = out[k].Add(c[k].Mul(b))
		out[k+1] = out[k+1].Add(c[k].Mul(a))
	}
	return out
}

// Prove produces a proof that index l of every set opens to the matching
// witness relative to its offset. Each set must hold between 1 and N
// elements; shorter sets are padded with their last element. context is
// bound into the challenge and must be reproduced by the verifier.
func (p *Params) Prove(l int, witnesses []group.Scalar, sets [][]group.Point,
	offsets []group.Point, context []byte) (*Proof, error) {

	k := len(sets)
	if k == 0 || len(witnesses) != k || len(offsets) != k {
		return nil, fmt.Errorf("%w: %d sets, %d witnesses, %d offsets",
			ErrBadSemantics, k, len(witnesses), len(offsets))
	}
	size := len(sets[0])
	for _, s := range sets {
		if len(s) != size {
			return nil, fmt.Errorf("%w: set sizes differ", ErrBadSemantics)
		}
	}
	if size == 0 || size > p.size {
		return nil, fmt.Errorf("%w: set size %d outside [1, %d]",
			ErrBadSemantics, size, p.size)
	}
	if l < 0 || l >= size {
		return nil, fmt.Errorf("%w: index %d outside set of %d",
			ErrBadSemantics, l, size)
	}

	n, m := p.n, p.m
	lDigits := p.digits(l)

	// sigma is the one-hot encoding of every digit of l; a blinds it with
	// rows summing to zero.
	sigma := make([]group.Scalar, n*m)
	a := make([]group.Scalar, n*m)
	one := group.ScalarFromUint64(1)
	for j := 0; j < m; j++ {
		sigma[j*n+lDigits[j]] = one
		var sum group.Scalar
		for i := 1; i < n; i++ {
			a[j*n+i] = group.RandomScalar()
			sum = sum.Add(a[j*n+i])
		}
		a[j*n] = sum.Neg()
	}

	rA := group.RandomScalar()
	rB := group.RandomScalar()
	rC := group.RandomScalar()
	rD := group.RandomScalar()

	cv := make([]group.Scalar, n*m)
	dv := make([]group.Scalar, n*m)
	for i := range cv {
		// a∘(1-2σ) and -a²
		cv[i] = a[i].Mul(one.Sub(sigma[i].Add(sigma[i])))
		dv[i] = a[i].Square().Neg()
	}

	pr := &Proof{
		A: p.commit(a, rA),
		B: p.commit(sigma, rB),
		C: p.commit(cv, rC),
		D: p.commit(dv, rD),
	}

	// coeffs[i][j] is the X^j coefficient of p_i(X) = Π_j (σ x + a) at the
	// digits of i. Indices at or past size collapse onto the last element.
	coeffs := make([][]group.Scalar, size)
	for i := 0; i < p.size; i++ {
		d := p.digits(i)
		poly := []group.Scalar{one}
		for j := 0; j < m; j++ {
			idx := j*n + d[j]
			poly = polyMulLinear(poly, sigma[idx], a[idx])
		}
		dst := i
		if dst >= size {
			dst = size - 1
		}
		if coeffs[dst] == nil {
			coeffs[dst] = poly
			continue
		}
		for j := range poly {
			coeffs[dst][j] = coeffs[dst][j].Add(poly[j])
		}
	}

	// Σ_i p_{i,j} vanishes for j < m, so offsets drop out of X.
	rho := make([][]group.Scalar, k)
	pr.X = make([][]group.Point, k)
	col := make([]group.Scalar, size)
	for s := 0; s < k; s++ {
		rho[s] = make([]group.Scalar, m)
		pr.X[s] = make([]group.Point, m)
		for j := 0; j < m; j++ {
			for i := 0; i < size; i++ {
				col[i] = coeffs[i][j]
			}
			rho[s][j] = group.RandomScalar()
			pr.X[s][j] = group.MultiScalarMul(sets[s], col).Add(p.h.Mul(rho[s][j]))
		}
	}

	x := p.transcript(context, size, offsets, pr)

	pr.F = make([]group.Scalar, 0, m*(n-1))
	for j := 0; j < m; j++ {
		for i := 1; i < n; i++ {
			pr.F = append(pr.F, sigma[j*n+i].Mul(x).Add(a[j*n+i]))
		}
	}
	pr.ZA = rB.Mul(x).Add(rA)
	pr.ZC = rC.Mul(x).Add(rD)

	xPow := group.Powers(x, m+1)
	pr.Z = make([]group.Scalar, k)
	for s := 0; s < k; s++ {
		z := witnesses[s].Mul(xPow[m])
		for j := 0; j < m; j++ {
			z = z.Sub(rho[s][j].Mul(xPow[j]))
		}
		pr.Z[s] = z
	}
	return pr, nil
}

// Statement is one proof to check against a shared family of sets.
type Statement struct {
	Proof   *Proof
	Offsets []group.Point
	Context []byte

	// Size is the prefix of the shared sets this proof was made over.
	Size int
}

// Verify checks a single proof against sets.
func (p *Params) Verify(sets [][]group.Point, st Statement) error {
	return p.VerifyBatch(sets, []Statement{st})
}

func (p *Params) checkShape(sets [][]group.Point, st *Statement) error {
	pr := st.Proof
	if pr == nil {
		return fmt.Errorf("%w: missing proof", ErrBadSemantics)
	}
	k := len(sets)
	if len(st.Offsets) != k || len(pr.Z) != k || len(pr.X) != k {
		return fmt.Errorf("%w: proof covers %d sets, expected %d",
			ErrBadSemantics, len(pr.Z), k)
	}
	for _, row := range pr.X {
		if len(row) != p.m {
			return fmt.Errorf("%w: X row has %d points", ErrBadSemantics, len(row))
		}
	}
	if len(pr.F) != p.m*(p.n-1) {
		return fmt.Errorf("%w: %d responses", ErrBadSemantics, len(pr.F))
	}
	if st.Size < 1 || st.Size > p.size {
		return fmt.Errorf("%w: size %d outside [1, %d]", ErrBadSemantics,
			st.Size, p.size)
	}
	for _, s := range sets {
		if len(s) < st.Size {
			return fmt.Errorf("%w: set of %d shorter than prefix %d",
				ErrBadSemantics, len(s), st.Size)
		}
	}
	return nil
}

// VerifyBatch checks every statement against prefixes of the same sets in a
// single multi-scalar multiplication. Each equation of each proof is scaled
// by a fresh random weight, so the batch passes only if every proof does
// (up to negligible probability).
func (p *Params) VerifyBatch(sets [][]group.Point, statements []Statement) error {
	if len(sets) == 0 {
		return fmt.Errorf("%w: no sets", ErrBadSemantics)
	}
	maxSize := 0
	for i := range statements {
		if err := p.checkShape(sets, &statements[i]); err != nil {
			return err
		}
		if statements[i].Size > maxSize {
			maxSize = statements[i].Size
		}
	}
	if len(statements) == 0 {
		return nil
	}

	n, m := p.n, p.m
	k := len(sets)

	genScalars := make([]group.Scalar, n*m)
	var hScalar group.Scalar
	setScalars := make([][]group.Scalar, k)
	for s := range setScalars {
		setScalars[s] = make([]group.Scalar, maxSize)
	}

	var pts []group.Point
	var scs []group.Scalar

	for si := range statements {
		st := &statements[si]
		pr := st.Proof
		x := p.transcript(st.Context, st.Size, st.Offsets, pr)

		// Full response matrix with the implicit f_{j,0} = x - Σ f_{j,i}.
		f := make([]group.Scalar, n*m)
		for j := 0; j < m; j++ {
			var sum group.Scalar
			for i := 1; i < n; i++ {
				v := pr.F[j*(n-1)+i-1]
				f[j*n+i] = v
				sum = sum.Add(v)
			}
			f[j*n] = x.Sub(sum)
		}

		w1 := group.RandomNonZeroScalar()
		w2 := group.RandomNonZeroScalar()

		// w1(A + xB - Com(f; zA)) + w2(xC + D - Com(f∘(x-f); zC))
		for i := range f {
			t := f[i].Mul(w1).Add(f[i].Mul(x.Sub(f[i])).Mul(w2))
			genScalars[i] = genScalars[i].Sub(t)
		}
		hScalar = hScalar.Sub(w1.Mul(pr.ZA)).Sub(w2.Mul(pr.ZC))
		pts = append(pts, pr.A, pr.B, pr.C, pr.D)
		scs = append(scs, w1, w1.Mul(x), w2.Mul(x), w2)

		// p_i(x) for every i < n^m, built digit by digit.
		pi := []group.Scalar{group.ScalarFromUint64(1)}
		for j := 0; j < m; j++ {
			next := make([]group.Scalar, len(pi)*n)
			for d := 0; d < n; d++ {
				for i := range pi {
					next[d*len(pi)+i] = pi[i].Mul(f[j*n+d])
				}
			}
			pi = next
		}

		xPow := group.Powers(x, m+1)
		for s := 0; s < k; s++ {
			w3 := group.RandomNonZeroScalar()
			sc := setScalars[s]
			for i, v := range pi {
				dst := i
				if dst >= st.Size {
					dst = st.Size - 1
				}
				sc[dst] = sc[dst].Add(w3.Mul(v))
			}
			// Σ_i p_i(x) = x^m, so the offset contributes -x^m·offset.
			pts = append(pts, st.Offsets[s])
			scs = append(scs, w3.Mul(xPow[m]).Neg())
			for j := 0; j < m; j++ {
				pts = append(pts, pr.X[s][j])
				scs = append(scs, w3.Mul(xPow[j]).Neg())
			}
			hScalar = hScalar.Sub(w3.Mul(pr.Z[s]))
		}
	}

	pts = append(pts, p.gens...)
	scs = append(scs, genScalars...)
	pts = append(pts, p.h)
	scs = append(scs, hScalar)
	for s := 0; s < k; s++ {
		pts = append(pts, sets[s][:maxSize]...)
		scs = append(scs, setScalars[s]...)
	}

	if !group.MultiScalarMul(pts, scs).IsIdentity() {
		return ErrInvalidProof
	}
	return nil
}
