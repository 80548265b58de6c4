package bpplus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"anoncoin/internal/group"
)

func testParams(t *testing.T, maxM int) *Params {
	t.Helper()
	g := group.HashToPoint("bpplus-test-G", nil)
	h := group.HashToPoint("bpplus-test-H", nil)
	gi := group.HashToPoints("bpplus-test-Gi", Bits*maxM)
	hi := group.HashToPoints("bpplus-test-Hi", Bits*maxM)
	p, err := NewParams(g, h, gi, hi, maxM)
	require.NoError(t, err)
	return p
}

func commit(p *Params, values []uint64) ([]group.Scalar, []group.Point) {
	blinds := make([]group.Scalar, len(values))
	cs := make([]group.Point, len(values))
	for i, v := range values {
		blinds[i] = group.RandomScalar()
		cs[i] = p.g.Mul(group.ScalarFromUint64(v)).Add(p.h.Mul(blinds[i]))
	}
	return blinds, cs
}

func TestProveVerify(t *testing.T) {
	p := testParams(t, 4)

	cases := []struct {
		name   string
		values []uint64
	}{
		{"single zero", []uint64{0}},
		{"single max", []uint64{math.MaxUint64}},
		{"two", []uint64{1, 1 << 40}},
		{"three padded", []uint64{7, 0, 12345678}},
		{"four", []uint64{1, 2, 3, 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blinds, cs := commit(p, tc.values)
			pr, err := p.Prove(tc.values, blinds, cs)
			require.NoError(t, err)
			require.NoError(t, p.Verify(pr, cs))

			dec, err := ProofFromBytes(pr.Bytes())
			require.NoError(t, err)
			require.NoError(t, p.Verify(dec, cs))
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	p := testParams(t, 2)
	values := []uint64{10, 20}
	blinds, cs := commit(p, values)
	pr, err := p.Prove(values, blinds, cs)
	require.NoError(t, err)

	t.Run("other commitment", func(t *testing.T) {
		bad := []group.Point{cs[0], cs[1].Add(p.g)}
		require.ErrorIs(t, p.Verify(pr, bad), ErrInvalidProof)
	})

	t.Run("tampered scalar", func(t *testing.T) {
		bad := *pr
		bad.D1 = bad.D1.Add(group.ScalarFromUint64(1))
		require.ErrorIs(t, p.Verify(&bad, cs), ErrInvalidProof)
	})

	t.Run("tampered round", func(t *testing.T) {
		bad := *pr
		bad.L = append([]group.Point(nil), pr.L...)
		bad.L[2] = bad.L[2].Add(p.h)
		require.ErrorIs(t, p.Verify(&bad, cs), ErrInvalidProof)
	})

	t.Run("round count", func(t *testing.T) {
		bad := *pr
		bad.L = pr.L[1:]
		bad.R = pr.R[1:]
		require.ErrorIs(t, p.Verify(&bad, cs), ErrBadSemantics)
	})

	t.Run("too many commitments", func(t *testing.T) {
		extra := append(append([]group.Point(nil), cs...), cs[0])
		require.ErrorIs(t, p.Verify(pr, extra), ErrBadSemantics)
	})
}

func TestProveRejects(t *testing.T) {
	p := testParams(t, 1)
	blinds, cs := commit(p, []uint64{5})

	_, err := p.Prove([]uint64{6}, blinds, cs)
	require.ErrorIs(t, err, ErrBadSemantics)

	_, err = p.Prove([]uint64{5, 5}, append(blinds, blinds[0]), append(cs, cs[0]))
	require.ErrorIs(t, err, ErrBadSemantics)
}

func TestVerifyBatch(t *testing.T) {
	p := testParams(t, 4)

	var proofs []*Proof
	var sets [][]group.Point
	for _, vs := range [][]uint64{{1}, {2, 3}, {4, 5, 6, 7}} {
		blinds, cs := commit(p, vs)
		pr, err := p.Prove(vs, blinds, cs)
		require.NoError(t, err)
		proofs = append(proofs, pr)
		sets = append(sets, cs)
	}
	require.NoError(t, p.VerifyBatch(proofs, sets))

	sets[1] = []group.Point{sets[1][1], sets[1][0]}
	require.ErrorIs(t, p.VerifyBatch(proofs, sets), ErrInvalidProof)
}

func TestNewParams(t *testing.T) {
	g := group.Generator()
	gi := group.HashToPoints("x", Bits*3)

	_, err := NewParams(g, g, gi, gi, 3)
	require.ErrorIs(t, err, ErrBadSemantics)

	_, err = NewParams(g, g, gi[:Bits], gi[:Bits], 2)
	require.ErrorIs(t, err, ErrBadSemantics)
}
