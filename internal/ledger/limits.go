package ledger

import (
	"fmt"

	"anoncoin/internal/sigma"
)

// Limits are the consensus caps enforced before any spend is admitted.
type Limits struct {
	// MaxSpendInputsPerBlock caps the spend inputs of a block, and of a
	// single transaction.
	MaxSpendInputsPerBlock int `json:"maxSpendInputsPerBlock"`

	// MaxSpendValuePerBlock caps the total Sigma value spent in a block.
	MaxSpendValuePerBlock int64 `json:"maxSpendValuePerBlock"`

	// MaxMintsPerBlock caps the coins a block adds to any one pool.
	MaxMintsPerBlock int `json:"maxMintsPerBlock"`

	// SigmaCoinsPerGroup and SparkCoinsPerGroup are the soft group
	// capacities. A group below capacity takes every mint of the next
	// block, so capacity plus MaxMintsPerBlock minus one must fit in the
	// proof systems' set size.
	SigmaCoinsPerGroup int `json:"sigmaCoinsPerGroup"`
	SparkCoinsPerGroup int `json:"sparkCoinsPerGroup"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxSpendInputsPerBlock: 50,
		MaxSpendValuePerBlock:  500 * sigma.COIN,
		MaxMintsPerBlock:       1000,
		SigmaCoinsPerGroup:     15000,
		SparkCoinsPerGroup:     60000,
	}
}

// Validate checks the limits against the maximum set sizes of the proof
// parameters in use.
func (l Limits) Validate(sigmaSetSize, sparkSetSize int) error {
	switch {
	case l.MaxSpendInputsPerBlock < 1:
		return fmt.Errorf("max spend inputs per block must be positive")
	case l.MaxSpendValuePerBlock < 1:
		return fmt.Errorf("max spend value per block must be positive")
	case l.MaxMintsPerBlock < 1:
		return fmt.Errorf("max mints per block must be positive")
	case l.SigmaCoinsPerGroup < 1:
		return fmt.Errorf("sigma coins per group must be positive")
	case l.SparkCoinsPerGroup < 1:
		return fmt.Errorf("spark coins per group must be positive")
	case l.groupBound(l.SigmaCoinsPerGroup) > sigmaSetSize:
		return fmt.Errorf("sigma group of %d coins with %d mints per block exceeds the set size %d",
			l.SigmaCoinsPerGroup, l.MaxMintsPerBlock, sigmaSetSize)
	case l.groupBound(l.SparkCoinsPerGroup) > sparkSetSize:
		return fmt.Errorf("spark group of %d coins with %d mints per block exceeds the set size %d",
			l.SparkCoinsPerGroup, l.MaxMintsPerBlock, sparkSetSize)
	}
	return nil
}

// groupBound is the most coins a group of the given capacity can hold: it
// may sit one short of capacity when a block with the maximum number of
// mints arrives.
func (l Limits) groupBound(capacity int) int {
	return capacity + l.MaxMintsPerBlock - 1
}
