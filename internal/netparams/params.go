// Package netparams names the proof parameter sets a network runs with.
package netparams

import (
	"fmt"
	"sync"

	"anoncoin/internal/ledger"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
)

// Params selects the proof systems' set sizes and the group capacities
// that fit them. Generators are derived on first use.
type Params struct {
	Name string

	sigmaN, sigmaM int
	sparkMaxM      int
	sparkN, sparkM int

	SigmaCoinsPerGroup int
	SparkCoinsPerGroup int
	MaxMintsPerBlock   int

	sigmaOnce sync.Once
	sigmaCtx  *sigma.Context
	sparkOnce sync.Once
	sparkPar  *spark.Params
}

// MainNet uses the production set sizes: 16384 Sigma coins and 65536 Spark
// coins per set.
var MainNet = &Params{
	Name:               "mainnet",
	sigmaN:             sigma.DefaultN,
	sigmaM:             sigma.DefaultM,
	sparkMaxM:          spark.DefaultMaxM,
	sparkN:             spark.DefaultGrootleN,
	sparkM:             spark.DefaultGrootleM,
	SigmaCoinsPerGroup: ledger.DefaultLimits().SigmaCoinsPerGroup,
	SparkCoinsPerGroup: ledger.DefaultLimits().SparkCoinsPerGroup,
	MaxMintsPerBlock:   ledger.DefaultLimits().MaxMintsPerBlock,
}

// RegTest holds 16 Sigma and 16 Spark coins per set. A group stops at 8
// coins plus the mints of the block that fills it.
var RegTest = &Params{
	Name:               "regtest",
	sigmaN:             2,
	sigmaM:             4,
	sparkMaxM:          4,
	sparkN:             2,
	sparkM:             4,
	SigmaCoinsPerGroup: 8,
	SparkCoinsPerGroup: 8,
	MaxMintsPerBlock:   8,
}

// Select returns RegTest when regtest is set and MainNet otherwise.
func Select(regtest bool) *Params {
	if regtest {
		return RegTest
	}
	return MainNet
}

// Sigma returns the Sigma proof context.
func (p *Params) Sigma() *sigma.Context {
	p.sigmaOnce.Do(func() {
		sp, err := sigma.NewParams(p.sigmaN, p.sigmaM)
		if err != nil {
			panic(fmt.Sprintf("netparams %s: %v", p.Name, err))
		}
		p.sigmaCtx = sigma.NewContext(sp)
	})
	return p.sigmaCtx
}

// Spark returns the Spark parameters.
func (p *Params) Spark() *spark.Params {
	p.sparkOnce.Do(func() {
		if p == MainNet {
			p.sparkPar = spark.DefaultParams()
			return
		}
		p.sparkPar = spark.MustNewParams(spark.DefaultMemoBytes, p.sparkMaxM, p.sparkN, p.sparkM)
	})
	return p.sparkPar
}

// Limits returns the default limits with this network's group
// capacities and mint cap.
func (p *Params) Limits() ledger.Limits {
	l := ledger.DefaultLimits()
	l.SigmaCoinsPerGroup = p.SigmaCoinsPerGroup
	l.SparkCoinsPerGroup = p.SparkCoinsPerGroup
	l.MaxMintsPerBlock = p.MaxMintsPerBlock
	return l
}
