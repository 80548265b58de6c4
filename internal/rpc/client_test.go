package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"anoncoin/internal/ledger"
	"anoncoin/internal/sigma"
)

// stub answers /message with a canned envelope chosen by message type and
// records the last request it saw.
type stub struct {
	last    Message
	lastURL string
}

func (s *stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lastURL = r.URL.String()
	reply := func(status int, typ string, payload interface{}) {
		raw, _ := json.Marshal(payload)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(Message{Type: typ, Payload: raw, SenderID: "stub"})
	}

	switch r.URL.Path {
	case "/message":
		if err := json.NewDecoder(r.Body).Decode(&s.last); err != nil {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		switch s.last.Type {
		case MsgSubmitTx:
			h := chainhash.Hash{1}
			reply(http.StatusOK, MsgAccepted, AcceptedPayload{TxHash: &h})
		case MsgSubmitBlock:
			reply(http.StatusBadRequest, MsgRejected, RejectedPayload{
				Code: "REJECT_INVALID", Reason: "bad proof"})
		case MsgDisconnectBlock:
			reply(http.StatusConflict, MsgRejected, RejectedPayload{Reason: "empty chain"})
		default:
			http.Error(w, "unknown message type", http.StatusBadRequest)
		}
	case "/tip":
		json.NewEncoder(w).Encode(TipReply{Height: 4, Hash: chainhash.Hash{4}})
	case "/coinset":
		http.Error(w, "ledger: no such group/coin", http.StatusNotFound)
	case "/serial":
		json.NewEncoder(w).Encode(SerialReply{Spent: true})
	default:
		http.NotFound(w, r)
	}
}

func TestClient(t *testing.T) {
	s := &stub{}
	srv := httptest.NewServer(s)
	defer srv.Close()
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "tester")

	t.Run("accepted", func(t *testing.T) {
		p, err := c.SubmitTx(&ledger.Tx{})
		require.NoError(t, err)
		require.Equal(t, chainhash.Hash{1}, *p.TxHash)
		require.Equal(t, "tester", s.last.SenderID)

		var tx ledger.Tx
		require.NoError(t, json.Unmarshal(s.last.Payload, &tx))
	})

	t.Run("rejected with code", func(t *testing.T) {
		_, err := c.SubmitBlock(&ledger.Block{})
		require.True(t, errors.Is(err, ErrRejected))
		var rej *RejectError
		require.ErrorAs(t, err, &rej)
		require.Equal(t, http.StatusBadRequest, rej.Status)
		require.Equal(t, "REJECT_INVALID", rej.Code)
		require.Contains(t, err.Error(), "bad proof")
	})

	t.Run("rejected without code", func(t *testing.T) {
		_, err := c.DisconnectBlock()
		var rej *RejectError
		require.ErrorAs(t, err, &rej)
		require.Equal(t, http.StatusConflict, rej.Status)
		require.Empty(t, rej.Code)
	})

	t.Run("no envelope", func(t *testing.T) {
		_, err := c.RemoveTx(&ledger.Tx{})
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrRejected))
	})

	t.Run("queries", func(t *testing.T) {
		tip, err := c.Tip()
		require.NoError(t, err)
		require.Equal(t, int32(4), tip.Height)

		_, err = c.CoinSet(ledger.SigmaPool(sigma.Denom10), 2, 3)
		require.ErrorContains(t, err, "no such group")
		require.Equal(t, "/coinset?height=3&id=2&pool=sigma%2F10", s.lastURL)

		serial, err := c.Serial(ledger.Serial([]byte{0xab}))
		require.NoError(t, err)
		require.True(t, serial.Spent)
		require.Equal(t, "/serial?serial=ab", s.lastURL)
	})
}
