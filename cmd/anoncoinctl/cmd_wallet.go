package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"anoncoin/internal/rpc"
	"anoncoin/internal/spark"
	"anoncoin/internal/wallet"
)

var newWalletCommand = cli.Command{
	Name:     "newwallet",
	Category: "Wallet",
	Usage:    "Create a Spark wallet from a fresh random seed.",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing wallet file",
		},
	},
	Action: newWallet,
}

func newWallet(ctx *cli.Context) error {
	path := walletPath(ctx)
	if _, err := os.Stat(path); err == nil && !ctx.Bool("force") {
		return fmt.Errorf("wallet %s already exists", path)
	}
	if err := os.MkdirAll(ctx.GlobalString("walletdir"), 0700); err != nil {
		return err
	}

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return err
	}
	w := wallet.NewSpark(getNetParams(ctx).Spark(), ctx.GlobalString("wallet"), seed)
	if err := w.Save(path); err != nil {
		return err
	}
	return printJSON(ctx, struct {
		Wallet  string `json:"wallet"`
		Path    string `json:"path"`
		Address string `json:"address"`
	}{w.Name, path, w.Address(0).Encode()})
}

func loadWallet(ctx *cli.Context) (*wallet.Spark, error) {
	return wallet.LoadSpark(getNetParams(ctx).Spark(), walletPath(ctx))
}

var newAddressCommand = cli.Command{
	Name:      "newaddress",
	Category:  "Wallet",
	Usage:     "Derive the wallet address at a diversifier index.",
	ArgsUsage: "[index]",
	Action:    newAddress,
}

func newAddress(ctx *cli.Context) error {
	var index uint64
	if ctx.NArg() > 0 {
		if _, err := fmt.Sscan(ctx.Args().First(), &index); err != nil {
			return fmt.Errorf("unable to decode index: %w", err)
		}
	}
	w, err := loadWallet(ctx)
	if err != nil {
		return err
	}
	return printJSON(ctx, struct {
		Index   uint64 `json:"index"`
		Address string `json:"address"`
	}{index, w.Address(index).Encode()})
}

var parseAddressCommand = cli.Command{
	Name:      "parseaddr",
	Category:  "Wallet",
	Usage:     "Decode an address and check whether the wallet owns it.",
	ArgsUsage: "address",
	Action:    parseAddress,
}

type addressInfo struct {
	Version     string  `json:"version"`
	Diversifier string  `json:"diversifier"`
	Q1          string  `json:"q1"`
	Q2          string  `json:"q2"`
	Owned       bool    `json:"owned"`
	Index       *uint64 `json:"index,omitempty"`
}

func parseAddress(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "parseaddr")
	}
	addr, err := spark.DecodeAddress(getNetParams(ctx).Spark(), ctx.Args().First())
	if err != nil {
		return err
	}
	q1, q2 := addr.Q1.Bytes(), addr.Q2.Bytes()
	info := addressInfo{
		Version:     string(addr.Version),
		Diversifier: hex.EncodeToString(addr.D),
		Q1:          hex.EncodeToString(q1[:]),
		Q2:          hex.EncodeToString(q2[:]),
	}

	w, err := loadWallet(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if i, err := w.IncomingViewKey().VerifyAddress(addr); err == nil {
			info.Owned = true
			info.Index = &i
		}
	}
	return printJSON(ctx, info)
}

var sparkMintCommand = cli.Command{
	Name:      "sparkmint",
	Category:  "Wallet",
	Usage:     "Build a transaction minting a Spark coin to the wallet.",
	ArgsUsage: "value",
	Description: `
	Mint a coin of the given value in base units to the wallet address at
	--index. The transaction is printed as JSON, or sent to the daemon's
	mempool with --submit.
	`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "index",
			Usage: "the diversifier index of the receiving address",
		},
		cli.StringFlag{
			Name:  "memo",
			Usage: "a memo only the recipient can read",
		},
		cli.BoolFlag{
			Name:  "submit",
			Usage: "submit the transaction instead of printing it",
		},
	},
	Action: sparkMint,
}

func sparkMint(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "sparkmint")
	}
	var value uint64
	if _, err := fmt.Sscan(ctx.Args().First(), &value); err != nil {
		return fmt.Errorf("unable to decode value: %w", err)
	}
	w, err := loadWallet(ctx)
	if err != nil {
		return err
	}
	tx, err := w.Mint([]spark.MintedCoinData{{
		Address: w.Address(ctx.Uint64("index")),
		V:       value,
		Memo:    []byte(ctx.String("memo")),
	}})
	if err != nil {
		return err
	}
	if !ctx.Bool("submit") {
		return printJSON(ctx, tx)
	}
	resp, err := getClient(ctx).SubmitTx(tx)
	if err != nil {
		return err
	}
	return printJSON(ctx, resp)
}

// printAccepted prints the daemon's answer to a submission.
func printAccepted(ctx *cli.Context, resp *rpc.AcceptedPayload, err error) error {
	if err != nil {
		return err
	}
	return printJSON(ctx, resp)
}
