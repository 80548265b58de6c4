package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"anoncoin/internal/events"
	"anoncoin/internal/ledger"
	"anoncoin/internal/netparams"
	"anoncoin/internal/rpc"
	"anoncoin/internal/script"
	"anoncoin/internal/sigma"
	"anoncoin/internal/wallet"
)

func testConfig(t *testing.T) *Config {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Regtest = true
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.LogFile = ""
	cfg.AuditLogPath = filepath.Join(dir, "audit.log")
	cfg.Listen = "127.0.0.1:0"
	cfg.MaxConcurrency = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

// startDaemon runs a regtest daemon on a free port.
func startDaemon(t *testing.T, cfg *Config) *daemon {
	t.Helper()
	d, err := newDaemon(cfg)
	require.NoError(t, err)
	t.Cleanup(d.close)

	ready := make(chan struct{}, 1)
	require.NoError(t, d.server.StartServer(ready))
	<-ready
	return d
}

// client submits messages to one daemon and builds blocks on its tip.
type client struct {
	*rpc.Client
	t         *testing.T
	d         *daemon
	timestamp int64
}

func newClient(t *testing.T, d *daemon) *client {
	return &client{Client: rpc.NewClient(d.server.Address, "test"), t: t, d: d}
}

func (c *client) rejected(err error) *rpc.RejectError {
	c.t.Helper()
	var rej *rpc.RejectError
	require.ErrorAs(c.t, err, &rej)
	return rej
}

func (c *client) mine(txs ...*ledger.Tx) *rpc.AcceptedPayload {
	c.t.Helper()
	c.timestamp++
	tip, err := c.Tip()
	require.NoError(c.t, err)
	blk := &ledger.Block{Parent: tip.Hash, Timestamp: c.timestamp, Txs: txs}
	p, err := c.SubmitBlock(blk)
	require.NoError(c.t, err)
	require.Equal(c.t, blk.Hash(), *p.BlockHash)
	require.Equal(c.t, tip.Height+1, *p.Height)
	return p
}

func (c *client) get(path string, out interface{}) int {
	c.t.Helper()
	resp, err := http.Get("http://" + c.d.server.Address + path)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServerSigmaFlow(t *testing.T) {
	d := startDaemon(t, testConfig(t))
	c := newClient(t, d)
	w := wallet.NewSigma(netparams.RegTest.Sigma())

	genesis := c.mine()
	require.Equal(t, int32(0), *genesis.Height)

	mintTx, coins, err := w.Mint(sigma.Denom1)
	require.NoError(t, err)
	mintBlock := c.mine(mintTx)

	set, err := c.CoinSet(ledger.SigmaPool(sigma.Denom1), 1, -1)
	require.NoError(t, err)
	require.Equal(t, 1, set.Count)
	require.Equal(t, *mintBlock.BlockHash, set.BlockHash)
	require.Equal(t, hex.EncodeToString(ledger.SigmaMint(coins[0].PublicCoin()).Bytes()), set.Coins[0])

	grp, err := c.Group(ledger.SigmaPool(sigma.Denom1), 1)
	require.NoError(t, err)
	require.Equal(t, rpc.GroupReply{
		Pool: "sigma/1", GroupID: 1, LatestID: 1, NCoins: 1,
		FirstBlock: 1, LastBlock: 1,
	}, *grp)

	_, err = c.CoinSet(ledger.SigmaPool(sigma.Denom1), 1, 0)
	require.ErrorContains(t, err, "404")

	require.Equal(t, http.StatusNotFound, c.get("/coinset?pool=sigma/1&id=2", nil))
	require.Equal(t, http.StatusNotFound, c.get("/coinset?pool=spark&id=1", nil))
	require.Equal(t, http.StatusBadRequest, c.get("/coinset?pool=sigma/3&id=1", nil))
	require.Equal(t, http.StatusBadRequest, c.get("/group?pool=spark&id=0", nil))

	state := d.validator.State()
	spendTx, err := w.Spend(state, coins, []ledger.TxOut{{Value: int64(sigma.Denom1), Script: []byte("payee")}})
	require.NoError(t, err)
	serialID := ledger.SigmaSerial(coins[0].Serial())

	p, err := c.SubmitTx(spendTx)
	require.NoError(t, err)
	require.Equal(t, spendTx.Hash(), *p.TxHash)

	serial, err := c.Serial(serialID)
	require.NoError(t, err)
	require.False(t, serial.Spent)
	require.Equal(t, spendTx.Hash(), *serial.MempoolTx)

	t.Run("conflicting spend", func(t *testing.T) {
		other, err := w.Spend(state, coins, []ledger.TxOut{{Value: 1, Script: []byte("other")}})
		require.NoError(t, err)
		_, err = c.SubmitTx(other)
		r := c.rejected(err)
		require.Equal(t, http.StatusBadRequest, r.Status)
		require.Equal(t, "REJECT_DUPLICATE", r.Code)
	})

	c.mine(spendTx)
	serial, err = c.Serial(serialID)
	require.NoError(t, err)
	require.True(t, serial.Spent)
	require.Nil(t, serial.MempoolTx)

	t.Run("stale parent", func(t *testing.T) {
		blk := &ledger.Block{Parent: chainhash.Hash{9}, Timestamp: 99}
		_, err := c.SubmitBlock(blk)
		r := c.rejected(err)
		require.Equal(t, http.StatusConflict, r.Status)
		require.Empty(t, r.Code)
		require.Contains(t, r.Reason, ledger.ErrNotTip.Error())
	})

	t.Run("disconnect", func(t *testing.T) {
		p, err := c.DisconnectBlock()
		require.NoError(t, err)
		require.Equal(t, int32(2), *p.Height)
		serial, err := c.Serial(serialID)
		require.NoError(t, err)
		require.False(t, serial.Spent)
	})

	t.Run("events", func(t *testing.T) {
		var envs []events.Envelope
		require.Equal(t, http.StatusOK, c.get("/events", &envs))
		kinds := make(map[events.Kind]int)
		for _, env := range envs {
			ev, err := env.Event()
			require.NoError(t, err)
			kinds[ev.Kind]++
		}
		require.Equal(t, 3, kinds[events.BlockConnected])
		require.Equal(t, 1, kinds[events.BlockDisconnected])
		require.Equal(t, 1, kinds[events.MintAdded])
		require.Equal(t, 1, kinds[events.SpendRejected])
	})

	t.Run("metrics", func(t *testing.T) {
		require.Equal(t, 3.0, testutil.ToFloat64(d.metrics.blocks.WithLabelValues("connected")))
		require.Equal(t, 1.0, testutil.ToFloat64(d.metrics.blocks.WithLabelValues("disconnected")))
		require.Equal(t, 1.0, testutil.ToFloat64(d.metrics.rejects.WithLabelValues("REJECT_DUPLICATE")))
		require.Equal(t, 1.0, testutil.ToFloat64(d.metrics.mints.WithLabelValues("sigma/1")))

		resp, err := http.Get("http://" + d.server.Address + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServerBadRequests(t *testing.T) {
	d := startDaemon(t, testConfig(t))
	c := newClient(t, d)
	url := "http://" + d.server.Address + "/message"

	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	for name, body := range map[string]string{
		"not json":     "{",
		"unknown type": `{"type":"nope","payload":{}}`,
		"bad tx":       `{"type":"submit_tx","payload":[1,2]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(url, "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	t.Run("malformed spend", func(t *testing.T) {
		c.mine()
		tx := &ledger.Tx{Inputs: []ledger.TxIn{{
			PrevIndex: 1,
			Script:    script.New(script.SigmaSpend, []byte{1, 2, 3}),
		}}}
		_, err := c.SubmitTx(tx)
		require.Equal(t, "REJECT_MALFORMED", c.rejected(err).Code)
	})

	t.Run("disconnect empty chain", func(t *testing.T) {
		for d.validator.Chain().Tip() != nil {
			_, err := c.DisconnectBlock()
			require.NoError(t, err)
		}
		_, err := c.DisconnectBlock()
		r := c.rejected(err)
		require.Equal(t, http.StatusConflict, r.Status)
		require.Contains(t, r.Reason, ledger.ErrUnknownBlock.Error())
	})

	require.Equal(t, http.StatusBadRequest, c.get("/serial?serial=zz", nil))
}

func TestServerRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	d := startDaemon(t, cfg)
	url := "http://" + d.server.Address + "/message"

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(url, "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	require.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest,
		http.StatusTooManyRequests}, statuses)
	require.Equal(t, 1.0, testutil.ToFloat64(d.metrics.throttled))
	require.Equal(t, 1.0, testutil.ToFloat64(
		d.metrics.requests.WithLabelValues("/message", http.StatusText(http.StatusTooManyRequests))))
}

func TestServerHealth(t *testing.T) {
	d := startDaemon(t, testConfig(t))
	c := newClient(t, d)
	c.mine()

	var resp HealthCheckResponse
	require.Equal(t, http.StatusOK, c.get("/health", &resp))
	require.Equal(t, "success", resp.Status)

	health := d.server.health.CheckHealth()
	require.Equal(t, Healthy, health.OverallStatus)
	require.Equal(t, int32(0), health.Height)
	names := make([]string, len(health.Components))
	for i, comp := range health.Components {
		names[i] = comp.Name
	}
	require.Equal(t, []string{"ledger", "mempool", "store"}, names)
}

func TestDaemonReloadsStore(t *testing.T) {
	cfg := testConfig(t)
	w := wallet.NewSigma(netparams.RegTest.Sigma())

	d := startDaemon(t, cfg)
	c := newClient(t, d)
	c.mine()
	tx, coins, err := w.Mint(sigma.Denom10, sigma.Denom10)
	require.NoError(t, err)
	tip := c.mine(tx)
	d.close()

	d = startDaemon(t, cfg)
	require.Equal(t, int32(1), d.validator.Chain().Height())
	require.Equal(t, *tip.BlockHash, d.validator.Chain().Tip().Hash)
	for i, coin := range coins {
		h, id := d.validator.State().GetMintedCoinHeightAndID(ledger.SigmaMint(coin.PublicCoin()))
		require.Equal(t, int32(1), h, fmt.Sprintf("coin %d", i))
		require.Equal(t, 1, id)
	}
}
