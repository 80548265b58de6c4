package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"anoncoin/internal/ledger"
	"anoncoin/internal/netparams"
	"anoncoin/internal/rpc"
	"anoncoin/internal/script"
	"anoncoin/internal/spark"
)

// run executes the app with args after the regtest and wallet directory
// flags, and returns what it printed.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"anoncoinctl", "--regtest", "--walletdir", dir}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestWalletCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "newwallet")
	require.NoError(t, err)
	var created struct {
		Path    string `json:"path"`
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Equal(t, filepath.Join(dir, "default.json"), created.Path)
	require.Len(t, created.Address, spark.EncodedAddressLen)

	_, err = run(t, dir, "newwallet")
	require.ErrorContains(t, err, "already exists")

	out, err = run(t, dir, "newaddress", "7")
	require.NoError(t, err)
	var derived struct {
		Index   uint64 `json:"index"`
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &derived))
	require.Equal(t, uint64(7), derived.Index)
	require.NotEqual(t, created.Address, derived.Address)

	t.Run("parse owned address", func(t *testing.T) {
		out, err := run(t, dir, "parseaddr", derived.Address)
		require.NoError(t, err)
		var info addressInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		require.True(t, info.Owned)
		require.Equal(t, uint64(7), *info.Index)
		require.Equal(t, "p", info.Version)
	})

	t.Run("parse foreign address", func(t *testing.T) {
		other := t.TempDir()
		_, err := run(t, other, "newwallet")
		require.NoError(t, err)

		out, err := run(t, other, "parseaddr", derived.Address)
		require.NoError(t, err)
		var info addressInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		require.False(t, info.Owned)
		require.Nil(t, info.Index)
	})

	t.Run("parse without wallet", func(t *testing.T) {
		out, err := run(t, t.TempDir(), "parseaddr", derived.Address)
		require.NoError(t, err)
		require.Contains(t, out, `"owned": false`)
	})

	t.Run("bad checksum", func(t *testing.T) {
		bad := []byte(derived.Address)
		last := len(bad) - 1
		if bad[last] == '0' {
			bad[last] = '1'
		} else {
			bad[last] = '0'
		}
		_, err := run(t, dir, "parseaddr", string(bad))
		require.ErrorIs(t, err, spark.ErrInvalidChecksum)
	})

	t.Run("spark mint", func(t *testing.T) {
		out, err := run(t, dir, "sparkmint", "--memo", "hi", "5000")
		require.NoError(t, err)
		var tx ledger.Tx
		require.NoError(t, json.Unmarshal([]byte(out), &tx))
		require.Len(t, tx.Outputs, 1)
		require.Equal(t, int64(5000), tx.Outputs[0].Value)
		marker, err := script.Classify(tx.Outputs[0].Script)
		require.NoError(t, err)
		require.Equal(t, script.SparkMint, marker)

		payload, err := script.Payload(script.SparkMint, tx.Outputs[0].Script)
		require.NoError(t, err)
		mtx, err := spark.MintTransactionFromBytes(payload)
		require.NoError(t, err)
		require.NoError(t, mtx.Verify(netparams.RegTest.Spark()))
	})
}

// fakeDaemon serves /tip and accepts every block built on its tip.
type fakeDaemon struct {
	tip    rpc.TipReply
	blocks []*ledger.Block
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/tip":
		json.NewEncoder(w).Encode(f.tip)
	case "/health":
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	case "/message":
		var msg rpc.Message
		json.NewDecoder(r.Body).Decode(&msg)
		var blk ledger.Block
		json.Unmarshal(msg.Payload, &blk)
		if msg.Type != rpc.MsgSubmitBlock || blk.Parent != f.tip.Hash {
			raw, _ := json.Marshal(rpc.RejectedPayload{Reason: "not tip"})
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(rpc.Message{Type: rpc.MsgRejected, Payload: raw})
			return
		}
		f.blocks = append(f.blocks, &blk)
		f.tip = rpc.TipReply{Height: f.tip.Height + 1, Hash: blk.Hash()}
		height := f.tip.Height
		raw, _ := json.Marshal(rpc.AcceptedPayload{BlockHash: &f.tip.Hash, Height: &height})
		json.NewEncoder(w).Encode(rpc.Message{Type: rpc.MsgAccepted, Payload: raw})
	default:
		http.NotFound(w, r)
	}
}

func TestChainCommands(t *testing.T) {
	f := &fakeDaemon{tip: rpc.TipReply{Height: 3, Hash: chainhash.Hash{3}}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	daemon := strings.TrimPrefix(srv.URL, "http://")
	dir := t.TempDir()

	out, err := run(t, dir, "--daemon", daemon, "getinfo")
	require.NoError(t, err)
	require.Contains(t, out, `"height": 3`)
	require.Contains(t, out, `"success"`)

	txPath := filepath.Join(dir, "tx.json")
	tx := &ledger.Tx{Outputs: []ledger.TxOut{{Value: 1, Script: []byte("payee")}}}
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(txPath, raw, 0600))

	out, err = run(t, dir, "--daemon", daemon, "mine", txPath)
	require.NoError(t, err)
	require.Contains(t, out, `"height": 4`)
	require.Len(t, f.blocks, 1)
	require.Equal(t, chainhash.Hash{3}, f.blocks[0].Parent)
	require.Equal(t, tx.Hash(), f.blocks[0].Txs[0].Hash())

	_, err = run(t, dir, "--daemon", daemon, "disconnectblock")
	require.ErrorIs(t, err, rpc.ErrRejected)

	_, err = run(t, dir, "--daemon", daemon, "coinset", "--pool", "sigma/3")
	require.Error(t, err)

	_, err = run(t, dir, "--daemon", daemon, "checkserial", "zz")
	require.ErrorContains(t, err, "unable to decode serial")
}
