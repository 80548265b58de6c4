// main.go - anoncoin demo: participants mint Spark and Sigma coins, pay each
// other through the anonymity sets, and watch a reorg roll a spend back.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"anoncoin/internal/events"
	"anoncoin/internal/ledger"
	"anoncoin/internal/netparams"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
	"anoncoin/internal/wallet"
)

const (
	mintUnit     = 1000
	transferUnit = 400
	transferFee  = 10
)

var log = btclog.Disabled

// participant is a Spark wallet with a name.
type participant struct {
	name string
	w    *wallet.Spark
}

func newParticipant(net *netparams.Params, name string) *participant {
	seed := chainhash.HashH([]byte(name))
	return &participant{name: name, w: wallet.NewSpark(net.Spark(), name, seed)}
}

func (p *participant) balance(state *ledger.State) uint64 {
	var sum uint64
	for _, c := range p.w.Unspent(state) {
		sum += c.Data.V
	}
	return sum
}

// demo drives an in-process validator the way a miner would.
type demo struct {
	v         *ledger.Validator
	state     *ledger.State
	timestamp int64
	counts    map[events.Kind]int
}

func newDemo(net *netparams.Params) (*demo, error) {
	bus := events.NewBus()
	state := ledger.NewState(ledger.NewChain(), net.Limits())
	v, err := ledger.NewValidator(state, ledger.Config{
		Sigma:  net.Sigma(),
		Spark:  net.Spark(),
		Limits: net.Limits(),
		Bus:    bus,
	})
	if err != nil {
		return nil, err
	}
	d := &demo{v: v, state: state, counts: make(map[events.Kind]int)}
	bus.SubscribeAll(func(ev events.Event) {
		d.counts[ev.Kind]++
		log.Debugf("%v height=%d group=%d", ev.Kind, ev.Height, ev.GroupID)
	})
	return d, nil
}

// block builds a block holding txs on the current tip.
func (d *demo) block(txs ...*ledger.Tx) *ledger.Block {
	d.timestamp++
	var parent chainhash.Hash
	if tip := d.state.Chain().Tip(); tip != nil {
		parent = tip.Hash
	}
	return &ledger.Block{Parent: parent, Timestamp: d.timestamp, Txs: txs}
}

func (d *demo) mine(txs ...*ledger.Tx) (*ledger.Block, error) {
	blk := d.block(txs...)
	idx, err := d.v.ConnectBlock(blk)
	if err != nil {
		return nil, err
	}
	log.Infof("Connected block %d (%v) with %d transactions", idx.Height, idx.Hash, len(txs))
	return blk, nil
}

// report summarizes a scenario run.
type report struct {
	Height        int32
	Balances      map[string]uint64
	Received      map[string][]byte
	DoubleSpend   ledger.RejectCode
	SigmaConflict ledger.RejectCode
	SigmaSpent    bool
	ReorgUnspent  bool
	Reconnected   bool
	Events        map[events.Kind]int
}

// runScenario has n participants mint Spark coins, pass value around a ring,
// and try a double spend. A Sigma wallet then mints and spends a coin, and a
// reorg disconnects and reconnects the spend.
func runScenario(net *netparams.Params, n int) (*report, error) {
	if n < 2 {
		return nil, errors.New("need at least two participants")
	}
	d, err := newDemo(net)
	if err != nil {
		return nil, err
	}
	rep := &report{
		Balances: make(map[string]uint64),
		Received: make(map[string][]byte),
	}

	// 1. Every participant mints a coin to its first address.
	people := make([]*participant, n)
	var mints []*ledger.Tx
	for i := range people {
		p := newParticipant(net, fmt.Sprintf("participant-%d", i))
		people[i] = p
		tx, err := p.w.Mint([]spark.MintedCoinData{{
			Address: p.w.Address(0),
			V:       uint64(mintUnit * (i + 1)),
			Memo:    []byte("minted by " + p.name),
		}})
		if err != nil {
			return nil, fmt.Errorf("%s mint: %w", p.name, err)
		}
		mints = append(mints, tx)
	}
	if _, err := d.mine(mints...); err != nil {
		return nil, err
	}
	for _, p := range people {
		if found := p.w.Scan(d.state); found != 1 {
			return nil, fmt.Errorf("%s found %d minted coins", p.name, found)
		}
	}

	// 2. Each participant pays the next one, keeping the change.
	spent := make([]*wallet.OwnedCoin, n)
	var spends []*ledger.Tx
	for i, p := range people {
		next := people[(i+1)%n]
		coins := p.w.Unspent(d.state)
		spent[i] = coins[0]
		change := coins[0].Data.V - transferUnit - transferFee
		tx, err := p.w.Spend(d.state, coins[:1], transferFee, []spark.OutputCoinData{
			{Address: next.w.Address(1), V: transferUnit, Memo: []byte("from " + p.name)},
			{Address: p.w.Address(2), V: change},
		})
		if err != nil {
			return nil, fmt.Errorf("%s spend: %w", p.name, err)
		}
		hash, err := d.v.AcceptToMempool(tx)
		if err != nil {
			return nil, fmt.Errorf("%s spend: %w", p.name, err)
		}
		log.Infof("%s paid %s %d in tx %v", p.name, next.name, transferUnit, hash)
		spends = append(spends, tx)
	}
	if _, err := d.mine(spends...); err != nil {
		return nil, err
	}
	for _, p := range people {
		p.w.Scan(d.state)
		rep.Balances[p.name] = p.balance(d.state)
		for _, c := range p.w.Unspent(d.state) {
			if c.Data.V == transferUnit {
				rep.Received[p.name] = c.Data.Memo
			}
		}
	}

	// 3. A coin already spent cannot be spent again.
	replay, err := people[0].w.Spend(d.state, spent[:1], transferFee, []spark.OutputCoinData{
		{Address: people[0].w.Address(3), V: spent[0].Data.V - transferFee},
	})
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	_, err = d.v.AcceptToMempool(replay)
	code, ok := ledger.RejectCodeOf(err)
	if !ok {
		return nil, fmt.Errorf("replay was not rejected: %v", err)
	}
	rep.DoubleSpend = code
	log.Infof("Replayed spend rejected: %v", err)

	// 4. Sigma mint and spend.
	sw := wallet.NewSigma(net.Sigma())
	mintTx, coins, err := sw.Mint(sigma.Denom1, sigma.Denom1)
	if err != nil {
		return nil, err
	}
	if _, err := d.mine(mintTx); err != nil {
		return nil, err
	}
	payee := []ledger.TxOut{{Value: int64(sigma.Denom1), Script: []byte("payee")}}
	spendTx, err := sw.Spend(d.state, coins[:1], payee)
	if err != nil {
		return nil, err
	}
	if _, err := d.v.AcceptToMempool(spendTx); err != nil {
		return nil, err
	}
	other := []ledger.TxOut{{Value: int64(sigma.Denom1), Script: []byte("someone else")}}
	conflict, err := sw.Spend(d.state, coins[:1], other)
	if err != nil {
		return nil, err
	}
	_, err = d.v.AcceptToMempool(conflict)
	if rep.SigmaConflict, ok = ledger.RejectCodeOf(err); !ok {
		return nil, fmt.Errorf("conflicting spend was not rejected: %v", err)
	}
	spendBlock, err := d.mine(spendTx)
	if err != nil {
		return nil, err
	}
	serial := ledger.SigmaSerial(coins[0].Serial())
	rep.SigmaSpent = d.state.IsUsedCoinSerial(serial)

	// 5. Reorg: the spend block goes away and comes back.
	if _, err := d.v.DisconnectBlock(); err != nil {
		return nil, err
	}
	rep.ReorgUnspent = !d.state.IsUsedCoinSerial(serial)
	if _, err := d.v.ConnectBlock(spendBlock); err != nil {
		return nil, err
	}
	rep.Reconnected = d.state.IsUsedCoinSerial(serial)

	rep.Height = d.state.Chain().Height()
	rep.Events = d.counts
	return rep, nil
}

type options struct {
	Participants int    `short:"n" long:"participants" description:"Number of Spark participants" default:"3"`
	DebugLevel   string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}" default:"info"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	backend := btclog.NewBackend(os.Stdout)
	level, ok := btclog.LevelFromString(opts.DebugLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid debug level %q\n", opts.DebugLevel)
		os.Exit(1)
	}
	log = backend.Logger("DEMO")
	log.SetLevel(level)
	ledgerLog := backend.Logger(ledger.Subsystem)
	ledgerLog.SetLevel(level)
	ledger.UseLogger(ledgerLog)

	fmt.Println("=== Anonymous Payment Demo ===")
	rep, err := runScenario(netparams.RegTest, opts.Participants)
	if err != nil {
		log.Errorf("Scenario failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\nChain height: %d\n", rep.Height)
	names := make([]string, 0, len(rep.Balances))
	for name := range rep.Balances {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: balance %d, memo %q\n", name, rep.Balances[name], rep.Received[name])
	}
	fmt.Printf("Replayed Spark spend: %v\n", rep.DoubleSpend)
	fmt.Printf("Conflicting Sigma spend: %v\n", rep.SigmaConflict)
	fmt.Printf("Sigma serial spent: %v, after reorg: %v, reconnected: %v\n",
		rep.SigmaSpent, !rep.ReorgUnspent, rep.Reconnected)
	for _, k := range events.Kinds() {
		fmt.Printf("  %v: %d\n", k, rep.Events[k])
	}
}
