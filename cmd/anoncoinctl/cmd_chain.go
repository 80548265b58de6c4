package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"

	"anoncoin/internal/ledger"
	"anoncoin/internal/rpc"
)

var getInfoCommand = cli.Command{
	Name:     "getinfo",
	Category: "Chain",
	Usage:    "Show the daemon's tip and health.",
	Action:   getInfo,
}

func getInfo(ctx *cli.Context) error {
	client := getClient(ctx)
	tip, err := client.Tip()
	if err != nil {
		return err
	}
	var health json.RawMessage
	if err := client.Get("/health", nil, &health); err != nil {
		return err
	}
	return printJSON(ctx, struct {
		Tip    *rpc.TipReply   `json:"tip"`
		Health json.RawMessage `json:"health"`
	}{tip, health})
}

var poolFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "pool",
		Value: "spark",
		Usage: "spark, or sigma/<denomination> such as sigma/0.1",
	},
	cli.IntFlag{
		Name:  "id",
		Value: 1,
		Usage: "the group id",
	},
}

var coinSetCommand = cli.Command{
	Name:     "coinset",
	Category: "Chain",
	Usage:    "Show the coins of a group a spend can cite.",
	Flags: append([]cli.Flag{
		cli.Int64Flag{
			Name:  "height",
			Value: -1,
			Usage: "the highest block to include, -1 for the tip",
		},
	}, poolFlags...),
	Action: coinSet,
}

func coinSet(ctx *cli.Context) error {
	pool, err := ledger.ParsePool(ctx.String("pool"))
	if err != nil {
		return err
	}
	set, err := getClient(ctx).CoinSet(pool, ctx.Int("id"), int32(ctx.Int64("height")))
	if err != nil {
		return err
	}
	return printJSON(ctx, set)
}

var groupCommand = cli.Command{
	Name:     "group",
	Category: "Chain",
	Usage:    "Show the size and block range of a group.",
	Flags:    poolFlags,
	Action:   group,
}

func group(ctx *cli.Context) error {
	pool, err := ledger.ParsePool(ctx.String("pool"))
	if err != nil {
		return err
	}
	g, err := getClient(ctx).Group(pool, ctx.Int("id"))
	if err != nil {
		return err
	}
	return printJSON(ctx, g)
}

var checkSerialCommand = cli.Command{
	Name:      "checkserial",
	Category:  "Chain",
	Usage:     "Check whether a serial or linking tag is spent.",
	ArgsUsage: "serial",
	Action:    checkSerial,
}

func checkSerial(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "checkserial")
	}
	raw, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("unable to decode serial: %w", err)
	}
	s, err := getClient(ctx).Serial(ledger.Serial(raw))
	if err != nil {
		return err
	}
	return printJSON(ctx, s)
}

// readTx decodes a JSON transaction from path, or from stdin for "-".
func readTx(path string) (*ledger.Tx, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var tx ledger.Tx
	if err := json.NewDecoder(r).Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", path, err)
	}
	return &tx, nil
}

var submitTxCommand = cli.Command{
	Name:      "submittx",
	Category:  "Chain",
	Usage:     "Offer a JSON transaction to the daemon's mempool.",
	ArgsUsage: "file|-",
	Action:    submitTx,
}

func submitTx(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "submittx")
	}
	tx, err := readTx(ctx.Args().First())
	if err != nil {
		return err
	}
	resp, err := getClient(ctx).SubmitTx(tx)
	return printAccepted(ctx, resp, err)
}

var mineCommand = cli.Command{
	Name:      "mine",
	Category:  "Chain",
	Usage:     "Connect a block holding the given transactions on the tip.",
	ArgsUsage: "[file...]",
	Action:    mine,
}

func mine(ctx *cli.Context) error {
	blk := &ledger.Block{Timestamp: time.Now().Unix()}
	for _, path := range ctx.Args() {
		tx, err := readTx(path)
		if err != nil {
			return err
		}
		blk.Txs = append(blk.Txs, tx)
	}

	client := getClient(ctx)
	tip, err := client.Tip()
	if err != nil {
		return err
	}
	blk.Parent = tip.Hash
	resp, err := client.SubmitBlock(blk)
	return printAccepted(ctx, resp, err)
}

var disconnectBlockCommand = cli.Command{
	Name:     "disconnectblock",
	Category: "Chain",
	Usage:    "Roll back the daemon's tip block.",
	Action:   disconnectBlock,
}

func disconnectBlock(ctx *cli.Context) error {
	resp, err := getClient(ctx).DisconnectBlock()
	return printAccepted(ctx, resp, err)
}
