// main.go - anoncoinctl: Spark wallet keys and addresses, plus a control
// client for anoncoind.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli"

	"anoncoin/internal/netparams"
	"anoncoin/internal/rpc"
)

const defaultDaemonHostPort = "127.0.0.1:8335"

var defaultWalletDir = btcutil.AppDataDir("anoncoin", false)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[anoncoinctl] %v\n", err)
	os.Exit(1)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "anoncoinctl"
	app.Version = "0.1.0"
	app.Usage = "wallet keys and control plane for anoncoind"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "daemon",
			Value: defaultDaemonHostPort,
			Usage: "The host:port of anoncoind.",
		},
		cli.StringFlag{
			Name:      "walletdir",
			Value:     defaultWalletDir,
			Usage:     "The directory holding wallet files.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:  "wallet, w",
			Value: "default",
			Usage: "The wallet name.",
		},
		cli.BoolFlag{
			Name:  "regtest",
			Usage: "Use the regression test parameters.",
		},
	}
	app.Commands = []cli.Command{
		newWalletCommand,
		newAddressCommand,
		parseAddressCommand,
		sparkMintCommand,
		getInfoCommand,
		coinSetCommand,
		groupCommand,
		checkSerialCommand,
		submitTxCommand,
		mineCommand,
		disconnectBlockCommand,
	}
	return app
}

func getNetParams(ctx *cli.Context) *netparams.Params {
	return netparams.Select(ctx.GlobalBool("regtest"))
}

func getClient(ctx *cli.Context) *rpc.Client {
	return rpc.NewClient(ctx.GlobalString("daemon"), "anoncoinctl")
}

func walletPath(ctx *cli.Context) string {
	return filepath.Join(ctx.GlobalString("walletdir"),
		ctx.GlobalString("wallet")+".json")
}

func printJSON(ctx *cli.Context, resp interface{}) error {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%s\n", b)
	return nil
}
