package sigma

import (
	"fmt"
	"strconv"
)

// COIN is the number of base units in one coin.
const COIN = 100_000_000

// Denomination is a fixed coin value in base units.
type Denomination int64

const (
	Denom0_05 Denomination = 5 * COIN / 100
	Denom0_1  Denomination = COIN / 10
	Denom0_5  Denomination = COIN / 2
	Denom1    Denomination = COIN
	Denom10   Denomination = 10 * COIN
	Denom25   Denomination = 25 * COIN
	Denom100  Denomination = 100 * COIN
)

// Denominations lists every valid denomination in ascending order.
var Denominations = []Denomination{
	Denom0_05, Denom0_1, Denom0_5, Denom1, Denom10, Denom25, Denom100,
}

// Valid reports whether d is one of the fixed denominations.
func (d Denomination) Valid() bool {
	for _, v := range Denominations {
		if v == d {
			return true
		}
	}
	return false
}

// String formats d in coins, e.g. "0.05".
func (d Denomination) String() string {
	return strconv.FormatFloat(float64(d)/COIN, 'f', -1, 64)
}

// ParseDenomination parses a coin amount such as "0.1" or "25".
func ParseDenomination(s string) (Denomination, error) {
	for _, d := range Denominations {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrDenomination, s)
}

// DenominationFromValue returns the denomination worth v base units.
func DenominationFromValue(v int64) (Denomination, error) {
	d := Denomination(v)
	if !d.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrDenomination, v)
	}
	return d, nil
}
