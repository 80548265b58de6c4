// params.go - Spark generators and proof-system sizes.

package spark

import (
	"fmt"
	"sync"

	"anoncoin/internal/bpplus"
	"anoncoin/internal/group"
	"anoncoin/internal/grootle"
)

// Default parameter values.
const (
	DefaultMemoBytes = 32
	DefaultMaxM      = 16
	DefaultGrootleN  = 16
	DefaultGrootleM  = 4
)

// Params holds the public generators and sizes shared by every party.
//
// F carries serial numbers, G values, H blinding factors and U linking tags.
type Params struct {
	F, G, H, U group.Point

	memoBytes int

	grootle *grootle.Params
	rng     *bpplus.Params
}

var (
	defaultOnce   sync.Once
	defaultParams *Params
)

// DefaultParams returns the production parameter set. Generators are
// derived once on first use.
func DefaultParams() *Params {
	defaultOnce.Do(func() {
		defaultParams = MustNewParams(DefaultMemoBytes, DefaultMaxM,
			DefaultGrootleN, DefaultGrootleM)
	})
	return defaultParams
}

// NewParams derives generators for the given sizes. maxM bounds the number
// of outputs per transaction and must be a power of two; cover sets hold up
// to n^m coins.
func NewParams(memoBytes, maxM, n, m int) (*Params, error) {
	if memoBytes < 0 {
		return nil, fmt.Errorf("spark: negative memo size %d", memoBytes)
	}
	p := &Params{
		F:         group.HashToPoint("spark_F", nil),
		G:         group.Generator(),
		H:         group.HashToPoint("spark_H", nil),
		U:         group.HashToPoint("spark_U", nil),
		memoBytes: memoBytes,
	}

	var err error
	p.grootle, err = grootle.NewParams(p.H, group.HashToPoints("spark_grootle", n*m), n, m)
	if err != nil {
		return nil, err
	}
	p.rng, err = bpplus.NewParams(p.G, p.H,
		group.HashToPoints("spark_range_G", bpplus.Bits*maxM),
		group.HashToPoints("spark_range_H", bpplus.Bits*maxM), maxM)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MustNewParams is like NewParams but panics on error.
func MustNewParams(memoBytes, maxM, n, m int) *Params {
	p, err := NewParams(memoBytes, maxM, n, m)
	if err != nil {
		panic(err)
	}
	return p
}

// MemoBytes returns the fixed encrypted memo length.
func (p *Params) MemoBytes() int { return p.memoBytes }

// CoverSetSize returns the largest cover set a spend may reference.
func (p *Params) CoverSetSize() int { return p.grootle.N() }

// MaxOutputs returns the largest number of outputs a transaction may have.
func (p *Params) MaxOutputs() int { return p.rng.MaxAggregation() }
