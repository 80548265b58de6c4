// point.go - Group elements of secp256k1.
//
// Points are kept in Jacobian coordinates and encoded as 33-byte compressed
// SEC1 strings. The zero value of Point is the identity.

package group

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fp"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
)

// PointSize is the encoded size of a group element in bytes.
const PointSize = 33

const (
	tagEven = 0x02
	tagOdd  = 0x03
)

// ErrInvalidPoint is returned when a point encoding does not decode to a
// curve point.
var ErrInvalidPoint = errors.New("group: invalid point encoding")

// Point is an element of the secp256k1 group.
type Point struct {
	p secp256k1.G1Jac
}

// Generator returns the standard secp256k1 base point.
func Generator() Point {
	g, _ := secp256k1.Generators()
	return Point{p: g}
}

// Identity returns the neutral element.
func Identity() Point {
	return Point{}
}

func (a Point) Add(b Point) Point {
	r := Point{p: a.p}
	r.p.AddAssign(&b.p)
	return r
}

func (a Point) Sub(b Point) Point {
	r := Point{p: a.p}
	r.p.SubAssign(&b.p)
	return r
}

func (a Point) Neg() Point {
	var r Point
	r.p.Neg(&a.p)
	return r
}

// Mul returns a·s.
func (a Point) Mul(s Scalar) Point {
	if a.IsIdentity() || s.IsZero() {
		return Identity()
	}
	var r Point
	r.p.ScalarMultiplication(&a.p, s.BigInt())
	return r
}

func (a Point) IsIdentity() bool {
	return a.p.Z.IsZero()
}

func (a Point) Equal(b Point) bool {
	return a.p.Equal(&b.p)
}

func (a Point) affine() secp256k1.G1Affine {
	var aff secp256k1.G1Affine
	aff.FromJacobian(&a.p)
	return aff
}

// Bytes returns the compressed encoding of a. The identity encodes as
// PointSize zero bytes.
func (a Point) Bytes() [PointSize]byte {
	var out [PointSize]byte
	if a.IsIdentity() {
		return out
	}
	aff := a.affine()
	x := aff.X.Bytes()
	y := aff.Y.Bytes()
	out[0] = tagEven
	if y[fp.Bytes-1]&1 == 1 {
		out[0] = tagOdd
	}
	copy(out[1:], x[:])
	return out
}

// PointFromBytes decodes a compressed point.
func PointFromBytes(b []byte) (Point, error) {
	if len(b) != PointSize {
		return Point{}, ErrInvalidPoint
	}
	switch b[0] {
	case 0x00:
		for _, c := range b[1:] {
			if c != 0 {
				return Point{}, ErrInvalidPoint
			}
		}
		return Identity(), nil
	case tagEven, tagOdd:
	default:
		return Point{}, ErrInvalidPoint
	}

	var aff secp256k1.G1Affine
	if err := aff.X.SetBytesCanonical(b[1:]); err != nil {
		return Point{}, ErrInvalidPoint
	}

	// y² = x³ + 7
	_, curveB := secp256k1.CurveCoefficients()
	var rhs fp.Element
	rhs.Square(&aff.X).Mul(&rhs, &aff.X).Add(&rhs, &curveB)
	if aff.Y.Sqrt(&rhs) == nil {
		return Point{}, ErrInvalidPoint
	}
	y := aff.Y.Bytes()
	odd := y[fp.Bytes-1]&1 == 1
	if odd != (b[0] == tagOdd) {
		aff.Y.Neg(&aff.Y)
	}
	if !aff.IsOnCurve() {
		return Point{}, ErrInvalidPoint
	}

	var p Point
	p.p.FromAffine(&aff)
	return p, nil
}

// MustPointFromBytes is like PointFromBytes but panics on error. It is meant
// for fixed test vectors only.
func MustPointFromBytes(b []byte) Point {
	p, err := PointFromBytes(b)
	if err != nil {
		panic(err)
	}
	return p
}

func (a Point) String() string {
	return a.p.String()
}

// MultiScalarMul returns Σ points[i]·scalars[i].
func MultiScalarMul(points []Point, scalars []Scalar) Point {
	if len(points) != len(scalars) {
		panic("group: MultiScalarMul length mismatch")
	}

	jac := make([]secp256k1.G1Jac, 0, len(points))
	frs := make([]fr.Element, 0, len(points))
	for i := range points {
		if points[i].IsIdentity() || scalars[i].IsZero() {
			continue
		}
		jac = append(jac, points[i].p)
		frs = append(frs, scalars[i].v)
	}
	if len(jac) == 0 {
		return Identity()
	}

	aff := secp256k1.BatchJacobianToAffineG1(jac)
	var r Point
	if _, err := r.p.MultiExp(aff, frs, ecc.MultiExpConfig{}); err != nil {
		// Lengths are equal by construction, so MultiExp cannot fail here.
		panic(err)
	}
	return r
}

// SumPoints returns the sum of ps.
func SumPoints(ps []Point) Point {
	var acc Point
	for i := range ps {
		acc.p.AddAssign(&ps[i].p)
	}
	return acc
}
