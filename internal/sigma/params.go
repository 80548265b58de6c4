// params.go - Sigma generators and the explicit crypto context.

package sigma

import (
	"errors"
	"fmt"

	"anoncoin/internal/group"
	"anoncoin/internal/grootle"
)

// Default proof sizes: anonymity sets of up to 4^7 = 16384 coins.
const (
	DefaultN = 4
	DefaultM = 7
)

var (
	// ErrInvalidSpend is returned for any spend that fails verification.
	ErrInvalidSpend = errors.New("sigma: invalid spend")

	// ErrCoinNotInSet is returned when building a spend for a coin that is
	// missing from the anonymity set.
	ErrCoinNotInSet = errors.New("sigma: no such coin in this anonymity set")

	ErrInvalidSerial = errors.New("sigma: invalid serial number")
	ErrDenomination  = errors.New("sigma: unknown denomination")
)

// Params holds the commitment generators. Public coins commit to a serial
// as g·serial + h·randomness.
type Params struct {
	g, h    group.Point
	grootle *grootle.Params
}

// NewParams derives parameters for anonymity sets of up to n^m coins.
func NewParams(n, m int) (*Params, error) {
	p := &Params{
		g: group.Generator(),
		h: group.HashToPoint("sigma_h", nil),
	}
	var err error
	p.grootle, err = grootle.NewParams(p.h, group.HashToPoints("sigma_grootle", n*m), n, m)
	if err != nil {
		return nil, fmt.Errorf("sigma params: %w", err)
	}
	return p, nil
}

// MaxSetSize returns the largest anonymity set a proof may cover.
func (p *Params) MaxSetSize() int { return p.grootle.N() }

// Context carries everything spend creation and verification need. It is
// immutable after construction and safe for concurrent use; callers create
// one and pass it where it is needed.
type Context struct {
	params *Params
}

// NewContext returns a context bound to params.
func NewContext(params *Params) *Context {
	return &Context{params: params}
}

func (c *Context) Params() *Params { return c.params }
